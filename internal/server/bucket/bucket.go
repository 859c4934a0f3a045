// Package bucket keeps the set of known buckets as an immutable snapshot that
// request paths read without locking.
package bucket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync/atomic"
	"time"
)

var (
	ErrBucketNotFound = errors.New("bucket not found")
	ErrInvalidBucket  = errors.New("invalid bucket id")
)

var bucketIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,62}$`)

type Bucket struct {
	ID string `json:"id" mapstructure:"id" db:"id"`
	// MaxObjectSize overrides the server limit when > 0
	MaxObjectSize int64 `json:"maxObjectSize" mapstructure:"max_object_size" db:"max_object_size"`
}

func (b *Bucket) Validate() error {
	if !bucketIDPattern.MatchString(b.ID) {
		return fmt.Errorf("%w %q", ErrInvalidBucket, b.ID)
	}
	if b.MaxObjectSize < 0 {
		return fmt.Errorf("bucket %q: max_object_size must be >= 0", b.ID)
	}
	return nil
}

// Loader produces the full current list of buckets
type Loader interface {
	Load(ctx context.Context) ([]Bucket, error)
}

// StaticLoader serves a fixed list
type StaticLoader []Bucket

func (s StaticLoader) Load(context.Context) ([]Bucket, error) {
	return s, nil
}

type snapshot map[string]Bucket

// Registry answers bucket lookups from the last loaded snapshot.
// Refresh builds a new map and swaps the pointer; a published map is never written.
type Registry struct {
	loader   Loader
	interval time.Duration
	current  atomic.Pointer[snapshot]
}

func NewRegistry(loader Loader, interval time.Duration) *Registry {
	r := &Registry{loader: loader, interval: interval}
	empty := snapshot{}
	r.current.Store(&empty)
	return r
}

func (r *Registry) Get(id string) (Bucket, error) {
	b, ok := (*r.current.Load())[id]
	if !ok {
		return Bucket{}, fmt.Errorf("%w: %s", ErrBucketNotFound, id)
	}
	return b, nil
}

func (r *Registry) List() []Bucket {
	snap := *r.current.Load()
	buckets := make([]Bucket, 0, len(snap))
	for _, b := range snap {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].ID < buckets[j].ID })
	return buckets
}

func (r *Registry) Refresh(ctx context.Context) error {
	buckets, err := r.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load buckets: %w", err)
	}

	next := make(snapshot, len(buckets))
	for _, b := range buckets {
		if err := b.Validate(); err != nil {
			slog.Warn("bucket registry skip", "bucket", b.ID, "error", err)
			continue
		}
		next[b.ID] = b
	}
	r.current.Store(&next)
	return nil
}

// Start loads the first snapshot and then refreshes on a ticker until ctx is done
func (r *Registry) Start(ctx context.Context) error {
	if err := r.Refresh(ctx); err != nil {
		return err
	}
	slog.Debug("bucket registry started", "buckets", len(r.List()), "interval", r.interval)

	if r.interval <= 0 {
		return nil
	}

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Debug("bucket registry stopped")
				return
			case <-ticker.C:
				if err := r.Refresh(ctx); err != nil {
					slog.Error("bucket registry refresh", "error", err)
				}
			}
		}
	}()

	return nil
}
