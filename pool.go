/*
 *
 * Copyright 2024 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package grpcmux

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ajith-anz/grpcmux/internal/xstats"
)

// ErrPoolClosed is returned by Acquire once Close has completed.
var ErrPoolClosed = errors.New("grpcmux: pool closed")

// Factory constructs one unconnected Client for endpoint, per spec §6.1's
// "make(host, port, settings) → Client (unconnected)". ClientPool calls
// Connect itself as part of its creation algorithm (spec §4.2.2).
type Factory func(ctx context.Context, endpoint string, settings Settings) (*Client, error)

// PoolOptions holds pool-only knobs that have no meaning for a bare
// Client, per spec §6.3.
type PoolOptions struct {
	// ForceRecreate makes background replacement creation (triggered by a
	// Release(nil, ...)) retry every 500ms until it succeeds, instead of
	// making a single attempt.
	ForceRecreate bool
}

// PoolStats is a read-only snapshot of a ClientPool's bookkeeping,
// supplementing spec.md with an observability surface (not a balancing
// feature).
type PoolStats struct {
	Size int
	Num  int
	Used int
	Idle int
}

// ClientPool cooperatively shares up to Size Clients among concurrent
// callers, per spec §4.2.
type ClientPool struct {
	size     int
	endpoint string
	factory  Factory
	settings Settings
	opts     PoolOptions
	log      *slog.Logger

	mu     sync.Mutex
	num    int
	used   int
	closed bool

	idle chan *Client

	rec *xstats.Recorder
}

// NewClientPool returns a ClientPool that lazily creates up to size
// Clients for endpoint via factory. Settings is shared by every Client the
// pool creates.
func NewClientPool(size int, endpoint string, factory Factory, settings Settings, opts PoolOptions) *ClientPool {
	return &ClientPool{
		size:     size,
		endpoint: endpoint,
		factory:  factory,
		settings: settings,
		opts:     opts,
		log:      slog.Default(),
		idle:     make(chan *Client, size),
	}
}

// SetLogger overrides the pool's logger (defaults to slog.Default()).
func (p *ClientPool) SetLogger(l *slog.Logger) {
	if l != nil {
		p.log = l
	}
}

// SetRecorder wires a telemetry Recorder into the pool: Num/Used/Idle are
// reported on it after every Fill/Acquire/Release/Close. A pool without a
// Recorder behaves identically; this is ambient observability, not a spec
// invariant.
func (p *ClientPool) SetRecorder(r *xstats.Recorder) {
	p.rec = r
}

func (p *ClientPool) reportGauges() {
	if p.rec == nil {
		return
	}
	stats := p.Stats()
	p.rec.SetPoolGauges(stats.Num, stats.Used, stats.Idle)
}

// Fill synchronously creates Clients until Num == Size, per spec §4.2.1. A
// failed creation does not count toward Num; Fill itself never returns a
// factory error, matching the "creation failures never escape" propagation
// rule of spec §7 — callers that want eager-fill guarantees should inspect
// Stats() afterward.
func (p *ClientPool) Fill(ctx context.Context) error {
	p.mu.Lock()
	need := p.size - p.num
	p.mu.Unlock()
	if need <= 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)
	for i := 0; i < need; i++ {
		g.Go(func() error {
			p.makeOne(gctx)
			return nil
		})
	}
	err := g.Wait()
	p.reportGauges()
	return err
}

// makeOne implements the creation algorithm of spec §4.2.2: pre-increment
// num, invoke factory(...).Connect(ctx), and on success release the new
// Client with isNew=true so used is not decremented (it was never checked
// out). On any failure num is rolled back.
func (p *ClientPool) makeOne(ctx context.Context) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.num++
	p.mu.Unlock()

	c, err := p.factory(ctx, p.endpoint, p.settings)
	if err == nil {
		err = c.Connect(ctx)
	}
	if err != nil {
		p.log.Warn("grpcmux: pool client creation failed", "endpoint", p.endpoint, "err", err)
		p.mu.Lock()
		p.num--
		p.mu.Unlock()
		p.reportGauges()
		return false
	}

	p.Release(c, true)
	return true
}

// Acquire blocks for up to timeout (overridden by Settings.ReceiveTimeout
// when >= 0) for an idle Client, opportunistically launching a background
// creation if the pool is not yet at capacity, per spec §4.2.1/§4.2.3.
func (p *ClientPool) Acquire(ctx context.Context, timeout time.Duration) (*Client, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	needsCreate := len(p.idle) == 0 && p.num < p.size
	p.mu.Unlock()

	if needsCreate {
		go p.makeOne(context.Background())
	}

	effective := timeout
	if p.settings.ReceiveTimeout >= 0 {
		effective = p.settings.ReceiveTimeout
	}

	timer := time.NewTimer(effective)
	defer timer.Stop()

	select {
	case c, ok := <-p.idle:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.mu.Lock()
		p.used++
		p.mu.Unlock()
		p.reportGauges()
		return c, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns c to the idle set, per spec §4.2.1. isNew marks a client
// that was never checked out (fresh from creation): used is not
// decremented in that case. A nil c signals a creation failure: num is
// rolled back and a replacement creation is scheduled, looping every 500ms
// while PoolOptions.ForceRecreate is set, or attempting once otherwise. A
// release after Close is a no-op.
func (p *ClientPool) Release(c *Client, isNew bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if c == nil {
		p.num--
		p.mu.Unlock()
		p.reportGauges()
		p.scheduleReplacement()
		return
	}
	if !isNew {
		p.used--
	}
	p.mu.Unlock()

	select {
	case p.idle <- c:
	default:
		// idle has capacity size and num never exceeds size, so this
		// should never block; guard against it anyway rather than risk
		// a deadlocked Release.
		go func() { p.idle <- c }()
	}
	p.reportGauges()
}

func (p *ClientPool) scheduleReplacement() {
	go func() {
		for {
			if p.makeOne(context.Background()) {
				return
			}
			p.mu.Lock()
			retry := p.opts.ForceRecreate && !p.closed
			p.mu.Unlock()
			if !retry {
				return
			}
			time.Sleep(500 * time.Millisecond)
		}
	}()
}

// Close waits for every checked-out Client to be released (polling Used
// every ~500ms, per spec §4.2.4 — a deliberate trade favoring safety for
// in-flight RPCs over drain latency), then closes each idle Client and the
// idle channel. Close is idempotent.
func (p *ClientPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for {
		p.mu.Lock()
		used := p.used
		p.mu.Unlock()
		if used == 0 {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	n := len(p.idle)
	p.mu.Unlock()

	for i := 0; i < n; i++ {
		c := <-p.idle
		if err := c.Close(); err != nil {
			p.log.Warn("grpcmux: error closing pooled client", "endpoint", p.endpoint, "err", err)
		}
	}
	close(p.idle)
	p.reportGauges()
}

// Stats returns a snapshot of the pool's bookkeeping counters.
func (p *ClientPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Size: p.size,
		Num:  p.num,
		Used: p.used,
		Idle: len(p.idle),
	}
}
