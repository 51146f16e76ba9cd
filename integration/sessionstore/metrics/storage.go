// Package metrics wraps a session.Storage with Prometheus instrumentation.
//
// Two collectors are registered:
//
//	session_storage_operations_total{backend, operation, result}
//	session_storage_operation_duration_seconds{backend, operation}
//
// result is "ok", "error", or "miss" for lookups that found no record.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/sessions/core/session"
)

const (
	resultOK    = "ok"
	resultError = "error"
	resultMiss  = "miss"
)

// Storage is an instrumented session.Storage decorator.
type Storage struct {
	next     session.Storage
	backend  string
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	_ session.Storage        = (*Storage)(nil)
	_ session.ExpiredCleaner = (*Storage)(nil)
)

// New wraps next and registers the collectors with reg. Collectors already
// registered by another wrapper on the same registry are reused, so several
// backends can share one registry distinguished by the backend label.
func New(next session.Storage, backend string, reg prometheus.Registerer) (*Storage, error) {
	ops := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_storage_operations_total",
			Help: "Session storage operations by backend, operation and result.",
		},
		[]string{"backend", "operation", "result"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "session_storage_operation_duration_seconds",
			Help:    "Session storage operation latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	var err error
	if ops, err = register(reg, ops); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}

	return &Storage{next: next, backend: backend, ops: ops, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Unwrap returns the decorated storage.
func (s *Storage) Unwrap() session.Storage {
	return s.next
}

func (s *Storage) observe(op string, start time.Time, result string) {
	s.duration.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
	s.ops.WithLabelValues(s.backend, op, result).Inc()
}

func resultOf(err error) string {
	if err != nil {
		return resultError
	}
	return resultOK
}

func (s *Storage) Get(ctx context.Context, id string) (session.Data, error) {
	start := time.Now()
	data, err := s.next.Get(ctx, id)
	result := resultOf(err)
	if err == nil && data == nil {
		result = resultMiss
	}
	s.observe("get", start, result)
	return data, err
}

func (s *Storage) Set(ctx context.Context, id string, data session.Data, ttl time.Duration) error {
	start := time.Now()
	err := s.next.Set(ctx, id, data, ttl)
	s.observe("set", start, resultOf(err))
	return err
}

func (s *Storage) Remove(ctx context.Context, id string) error {
	start := time.Now()
	err := s.next.Remove(ctx, id)
	s.observe("remove", start, resultOf(err))
	return err
}

func (s *Storage) Reset(ctx context.Context) error {
	start := time.Now()
	err := s.next.Reset(ctx)
	s.observe("reset", start, resultOf(err))
	return err
}

func (s *Storage) Close(ctx context.Context) error {
	return s.next.Close(ctx)
}

// DeleteExpired forwards to the wrapped storage when it supports sweeping.
func (s *Storage) DeleteExpired(ctx context.Context) (int64, error) {
	cleaner, ok := s.next.(session.ExpiredCleaner)
	if !ok {
		return 0, nil
	}
	start := time.Now()
	n, err := cleaner.DeleteExpired(ctx)
	s.observe("delete_expired", start, resultOf(err))
	return n, err
}
