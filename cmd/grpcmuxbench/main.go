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

// Binary grpcmuxbench drives a ClientPool against an in-process
// self-replying fake transport and reports a calls/sec throughput number,
// in the tradition of the upstream benchmark/worker binary but scoped to
// this module's own Client/ClientPool surface instead of a full
// driver/server protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajith-anz/grpcmux"
	"github.com/ajith-anz/grpcmux/internal/transport"
	"github.com/ajith-anz/grpcmux/internal/transporttest"
)

var (
	poolSize    = flag.Int("pool_size", 8, "number of Clients in the pool")
	concurrency = flag.Int("concurrency", 32, "number of concurrent callers")
	duration    = flag.Duration("duration", 5*time.Second, "how long to drive load")
	payloadSize = flag.Int("payload_size", 32, "request payload size in bytes")
)

// echoTransport wraps a *transporttest.Fake and immediately delivers a
// canned response for every Send, so the benchmark loop never blocks
// waiting on a real peer.
type echoTransport struct {
	*transporttest.Fake
	reply []byte
}

func (e *echoTransport) Send(ctx context.Context, req *transport.Request) (int, error) {
	streamID, err := e.Fake.Send(ctx, req)
	if err != nil {
		return 0, err
	}
	e.Deliver(&transport.Response{
		StreamID: streamID,
		Data:     transport.Frame(e.reply),
		Pipeline: false,
		Trailers: map[string][]string{"grpc-status": {"0"}},
	})
	return streamID, nil
}

func main() {
	flag.Parse()

	settings := grpcmux.DefaultSettings()
	reply := make([]byte, *payloadSize)

	factory := func(ctx context.Context, endpoint string, settings grpcmux.Settings) (*grpcmux.Client, error) {
		tr := &echoTransport{Fake: transporttest.NewFake(endpoint), reply: reply}
		return grpcmux.New(endpoint, grpcmux.Unary, tr, settings), nil
	}

	pool := grpcmux.NewClientPool(*poolSize, "bench.local:443", factory, settings, grpcmux.PoolOptions{})
	pool.SetLogger(slog.Default())
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	if err := pool.Fill(ctx); err != nil {
		slog.Error("grpcmuxbench: fill failed", "err", err)
	}

	req := make([]byte, *payloadSize)
	var calls atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				client, err := pool.Acquire(ctx, time.Second)
				if err != nil || client == nil {
					continue
				}
				streamID, err := client.Send(ctx, "/bench.Service/Call", req, "proto")
				if err == nil {
					if _, _, err := client.Recv(streamID, time.Second); err == nil {
						calls.Add(1)
					}
				}
				pool.Release(client, false)
			}
		}()
	}

	time.AfterFunc(*duration, cancel)
	wg.Wait()

	total := calls.Load()
	fmt.Printf("calls: %d, elapsed: %s, calls/sec: %.1f\n", total, *duration, float64(total)/duration.Seconds())
}
