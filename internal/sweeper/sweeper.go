// Package sweeper deletes stored objects by the pointers previously handed to
// callers. Deletes are awaited; a batch returns only after every key has been
// attempted.
package sweeper

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	uerrors "github.com/input-output-hk/catalyst-forge-libs/uploads/errors"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/keycodec"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/objectstore"
)

// Report summarizes a DeleteMany call.
type Report struct {
	// Attempted counts the distinct non-empty pointers processed.
	Attempted int

	// Failures lists pointers whose object could not be deleted, in no
	// particular order.
	Failures []Failure
}

// Failure reports a pointer whose object could not be deleted.
type Failure struct {
	Pointer string
	Key     string
	Err     error
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLimit caps concurrent deletes. Non-positive means unbounded.
func WithLimit(n int) Option {
	return func(s *Sweeper) {
		s.limit = n
	}
}

// WithLogger sets the logger used for per-key outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Sweeper deletes objects from one bucket.
type Sweeper struct {
	store  objectstore.Store
	bucket string
	codec  *keycodec.Codec
	limit  int
	logger *slog.Logger
}

// New creates a Sweeper for bucket. Pointers are turned into keys by codec.
func New(store objectstore.Store, bucket string, codec *keycodec.Codec, opts ...Option) *Sweeper {
	if codec == nil {
		codec = keycodec.New()
	}
	s := &Sweeper{
		store:  store,
		bucket: bucket,
		codec:  codec,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeleteOne removes the object behind pointer. An empty pointer is a no-op.
// Deleting an object that no longer exists succeeds.
func (s *Sweeper) DeleteOne(ctx context.Context, pointer string) error {
	if pointer == "" {
		return nil
	}

	key := s.codec.Extract(pointer)
	if key == "" {
		return uerrors.NewError("deleteOne", uerrors.ErrInvalidInput).
			WithBucket(s.bucket).
			WithMessage("pointer " + pointer + " names no key")
	}

	if err := s.store.Delete(ctx, s.bucket, key); err != nil {
		return uerrors.TransferFailed(err)
	}
	s.logger.Debug("object deleted", "bucket", s.bucket, "key", key)
	return nil
}

// DeleteMany removes every distinct non-empty pointer concurrently and waits
// for all of them. Stores that implement objectstore.BatchDeleter receive the
// keys in one call.
func (s *Sweeper) DeleteMany(ctx context.Context, pointers []string) Report {
	pointers = distinct(pointers)
	if len(pointers) == 0 {
		return Report{}
	}

	if batch, ok := s.store.(objectstore.BatchDeleter); ok {
		return s.deleteBatch(ctx, batch, pointers)
	}

	report := Report{Attempted: len(pointers)}

	results := make([]error, len(pointers))
	var g errgroup.Group
	if s.limit > 0 {
		g.SetLimit(s.limit)
	}
	for i, pointer := range pointers {
		g.Go(func() error {
			results[i] = s.DeleteOne(ctx, pointer)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range results {
		if err != nil {
			report.Failures = append(report.Failures, Failure{
				Pointer: pointers[i],
				Key:     s.codec.Extract(pointers[i]),
				Err:     err,
			})
		}
	}
	return report
}

// deleteBatch sends one request for all keys. Pointers that resolve to the
// same key count as one attempt.
func (s *Sweeper) deleteBatch(ctx context.Context, batch objectstore.BatchDeleter, pointers []string) Report {
	var failures []Failure
	byKey := make(map[string]string, len(pointers))
	keys := make([]string, 0, len(pointers))
	for _, pointer := range pointers {
		key := s.codec.Extract(pointer)
		if key == "" {
			failures = append(failures, Failure{
				Pointer: pointer,
				Err:     uerrors.NewError("deleteMany", uerrors.ErrInvalidInput).WithMessage("pointer names no key"),
			})
			continue
		}
		if _, seen := byKey[key]; !seen {
			keys = append(keys, key)
		}
		byKey[key] = pointer
	}
	if len(keys) == 0 {
		return Report{Attempted: len(failures), Failures: failures}
	}
	attempted := len(keys) + len(failures)

	keyErrs, err := batch.DeleteBatch(ctx, s.bucket, keys)
	if err != nil {
		for _, key := range keys {
			failures = append(failures, Failure{Pointer: byKey[key], Key: key, Err: uerrors.TransferFailed(err)})
		}
		return Report{Attempted: attempted, Failures: failures}
	}

	for _, ke := range keyErrs {
		failures = append(failures, Failure{Pointer: byKey[ke.Key], Key: ke.Key, Err: uerrors.TransferFailed(ke.Err)})
	}
	s.logger.Debug("batch delete finished",
		"bucket", s.bucket,
		"keys", len(keys),
		"failed", len(keyErrs))
	return Report{Attempted: attempted, Failures: failures}
}

// distinct drops empty and repeated pointers, keeping first occurrences.
func distinct(pointers []string) []string {
	seen := make(map[string]struct{}, len(pointers))
	out := make([]string, 0, len(pointers))
	for _, p := range pointers {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
