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

// Package xstats wires OpenTelemetry metrics and tracing into a Client and
// ClientPool. It is ambient observability, not a spec invariant: the core
// calls it only when a Recorder has been set with SetRecorder, and a
// Client/ClientPool built without a Recorder behaves identically.
package xstats

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ajith-anz/grpcmux"

// Recorder records pool gauges, a reconnect counter, and per-call
// Send/Recv span and latency instrumentation. The zero value is not
// usable; construct with NewRecorder.
type Recorder struct {
	tracer trace.Tracer

	reconnects metric.Int64Counter
	recvLatency metric.Float64Histogram

	num  atomic.Int64
	used atomic.Int64
	idle atomic.Int64
}

// NewRecorder builds a Recorder against the global MeterProvider/
// TracerProvider. Callers that bootstrap their own providers should call
// otel.SetMeterProvider/
// otel.SetTracerProvider before calling NewRecorder.
func NewRecorder() (*Recorder, error) {
	meter := otel.Meter(instrumentationName)

	r := &Recorder{tracer: otel.Tracer(instrumentationName)}

	var err error
	r.reconnects, err = meter.Int64Counter(
		"grpcmux.reconnects",
		metric.WithDescription("count of transport-level reconnects forced by the send path"),
	)
	if err != nil {
		return nil, err
	}

	r.recvLatency, err = meter.Float64Histogram(
		"grpcmux.recv.latency",
		metric.WithDescription("time from a successful Client.Send to the return of the first Client.Recv for that stream"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	if _, err := meter.Int64ObservableGauge(
		"grpcmux.pool.num",
		metric.WithDescription("Clients currently owned by the pool"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(r.num.Load())
			return nil
		}),
	); err != nil {
		return nil, err
	}
	if _, err := meter.Int64ObservableGauge(
		"grpcmux.pool.used",
		metric.WithDescription("Clients currently checked out of the pool"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(r.used.Load())
			return nil
		}),
	); err != nil {
		return nil, err
	}
	if _, err := meter.Int64ObservableGauge(
		"grpcmux.pool.idle",
		metric.WithDescription("Clients currently idle in the pool"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(r.idle.Load())
			return nil
		}),
	); err != nil {
		return nil, err
	}

	return r, nil
}

// SetPoolGauges updates the values the pool gauges report on their next
// collection. Call after every Acquire/Release/Fill.
func (r *Recorder) SetPoolGauges(num, used, idle int) {
	r.num.Store(int64(num))
	r.used.Store(int64(used))
	r.idle.Store(int64(idle))
}

// RecordReconnect increments the reconnect counter for endpoint.
func (r *Recorder) RecordReconnect(endpoint string) {
	r.reconnects.Add(context.Background(), 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// StartCall opens a span covering one Send/Recv pair and returns a func
// that ends it and records recv latency; call it when Recv returns.
func (r *Recorder) StartCall(ctx context.Context, method string) (context.Context, func()) {
	ctx, span := r.tracer.Start(ctx, method, trace.WithAttributes(attribute.String("grpcmux.method", method)))
	start := time.Now()
	return ctx, func() {
		r.recvLatency.Record(ctx, float64(time.Since(start).Milliseconds()))
		span.End()
	}
}
