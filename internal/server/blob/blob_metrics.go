package blob

import (
	"context"
	"errors"
	"time"

	"github.com/openmined/syftblob/internal/server/metrics"
)

type instrumented struct {
	Backend
}

// Instrument records prometheus counters and latencies for every backend call
func Instrument(b Backend) Backend {
	if _, ok := b.(*instrumented); ok {
		return b
	}
	return &instrumented{Backend: b}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	result := "ok"
	switch {
	case errors.Is(err, ErrObjectNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	name := i.Backend.Name()
	metrics.BackendOps.WithLabelValues(name, op, result).Inc()
	metrics.BackendSeconds.WithLabelValues(name, op).Observe(time.Since(start).Seconds())
}

func (i *instrumented) GetObject(ctx context.Context, key string) (*GetObjectResponse, error) {
	start := time.Now()
	resp, err := i.Backend.GetObject(ctx, key)
	i.observe("get", start, err)
	return resp, err
}

func (i *instrumented) PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error) {
	start := time.Now()
	resp, err := i.Backend.PutObject(ctx, params)
	i.observe("put", start, err)
	return resp, err
}

func (i *instrumented) DeleteObject(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := i.Backend.DeleteObject(ctx, key)
	i.observe("delete", start, err)
	return ok, err
}
