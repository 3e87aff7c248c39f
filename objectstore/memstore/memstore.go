// Package memstore provides an in-memory objectstore.Store for testing and
// local development. It is safe for concurrent use and records every begin,
// abort and delete so callers can assert on store traffic.
package memstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	uerrors "github.com/input-output-hk/catalyst-forge-libs/uploads/errors"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/objectstore"
)

// DefaultHost is the host suffix used to build locators.
const DefaultHost = "objects.example.com"

// Object is a stored object.
type Object struct {
	Data        []byte
	ContentType string
	ACL         objectstore.ACL
}

// Hooks inject behaviour into store operations. Any hook returning an error
// fails the operation it guards.
type Hooks struct {
	// OnRead runs after each chunk read from an upload body with the running
	// byte count.
	OnRead func(key string, read int64) error

	// BeforeComplete runs after the body is drained, before the object becomes
	// visible.
	BeforeComplete func(ctx context.Context, key string) error

	// OnDelete runs before a key is removed.
	OnDelete func(ctx context.Context, key string) error
}

// Option configures a Store.
type Option func(*Store)

// WithHost replaces DefaultHost.
func WithHost(host string) Option {
	return func(s *Store) {
		s.host = host
	}
}

// WithHooks installs fault injection hooks.
func WithHooks(h Hooks) Option {
	return func(s *Store) {
		s.hooks = h
	}
}

// WithEmptyLocator makes successful uploads report an empty locator, the
// way a misbehaving backend might.
func WithEmptyLocator() Option {
	return func(s *Store) {
		s.emptyLocator = true
	}
}

// Store implements objectstore.Store in memory.
type Store struct {
	mu           sync.RWMutex
	objects      map[string]map[string]Object
	begins       []string
	aborts       []string
	deletes      []string
	host         string
	hooks        Hooks
	emptyLocator bool
}

var _ objectstore.Store = (*Store)(nil)

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		objects: make(map[string]map[string]Object),
		host:    DefaultHost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BaseURL returns "https://<bucket>.<host>".
func (s *Store) BaseURL(bucket string) string {
	return fmt.Sprintf("https://%s.%s", bucket, s.host)
}

// Put stores data directly, bypassing hooks and bookkeeping.
func (s *Store) Put(bucket, key string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket(bucket)[key] = Object{Data: slices.Clone(data)}
	return objectstore.JoinLocator(s.BaseURL(bucket), key)
}

// Object returns the object stored under key.
func (s *Store) Object(bucket, key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[bucket][key]
	return obj, ok
}

// Keys returns the sorted keys present in bucket.
func (s *Store) Keys(bucket string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects[bucket]))
	for k := range s.objects[bucket] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Begins returns the keys of every upload started, in call order.
func (s *Store) Begins() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.begins)
}

// Aborts returns the keys of every aborted upload, in call order.
func (s *Store) Aborts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.aborts)
}

// Deletes returns every key passed to Delete, in call order.
func (s *Store) Deletes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.deletes)
}

func (s *Store) bucket(name string) map[string]Object {
	b, ok := s.objects[name]
	if !ok {
		b = make(map[string]Object)
		s.objects[name] = b
	}
	return b
}

// BeginUpload records the start of an upload.
func (s *Store) BeginUpload(_ context.Context, in objectstore.UploadInput) (objectstore.Upload, error) {
	if in.Body == nil {
		return nil, uerrors.NewObjectError("beginUpload", in.Bucket, in.Key, uerrors.ErrInvalidInput).
			WithMessage("body cannot be nil")
	}

	s.mu.Lock()
	s.begins = append(s.begins, in.Key)
	s.mu.Unlock()

	return &upload{store: s, in: in}, nil
}

type upload struct {
	store *Store
	in    objectstore.UploadInput

	mu       sync.Mutex
	finished bool
}

// Complete drains the body and publishes the object. Any failure aborts the
// upload before returning.
func (u *upload) Complete(ctx context.Context) (*objectstore.Result, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.finished {
		return nil, uerrors.NewObjectError("completeUpload", u.in.Bucket, u.in.Key,
			errors.New("upload already finished"))
	}
	u.finished = true

	data, err := u.drain(ctx)
	if err == nil && u.store.hooks.BeforeComplete != nil {
		err = u.store.hooks.BeforeComplete(ctx, u.in.Key)
	}
	if err != nil {
		u.store.recordAbort(u.in.Key)
		return nil, uerrors.NewObjectError("completeUpload", u.in.Bucket, u.in.Key, err)
	}

	s := u.store
	s.mu.Lock()
	s.bucket(u.in.Bucket)[u.in.Key] = Object{Data: data, ContentType: u.in.ContentType, ACL: u.in.ACL}
	s.mu.Unlock()

	locator := objectstore.JoinLocator(s.BaseURL(u.in.Bucket), u.in.Key)
	if s.emptyLocator {
		locator = ""
	}
	return &objectstore.Result{
		Locator: locator,
		Key:     u.in.Key,
		Size:    int64(len(data)),
	}, nil
}

func (u *upload) drain(ctx context.Context) ([]byte, error) {
	buf := pool.GetCopyBuffer()
	defer pool.PutCopyBuffer(buf)

	var out bytes.Buffer
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := u.in.Body.Read(buf)
		out.Write(buf[:n])
		if n > 0 && u.store.hooks.OnRead != nil {
			if herr := u.store.hooks.OnRead(u.in.Key, int64(out.Len())); herr != nil {
				return nil, herr
			}
		}
		if errors.Is(err, io.EOF) {
			return out.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Abort discards an upload that has not completed.
func (u *upload) Abort(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.finished {
		return nil
	}
	u.finished = true
	u.store.recordAbort(u.in.Key)
	return nil
}

func (s *Store) recordAbort(key string) {
	s.mu.Lock()
	s.aborts = append(s.aborts, key)
	s.mu.Unlock()
}

// Delete removes key. Missing keys succeed.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	s.deletes = append(s.deletes, key)
	s.mu.Unlock()

	if s.hooks.OnDelete != nil {
		if err := s.hooks.OnDelete(ctx, key); err != nil {
			return uerrors.NewObjectError("deleteObject", bucket, key, err)
		}
	}

	s.mu.Lock()
	delete(s.objects[bucket], key)
	s.mu.Unlock()
	return nil
}
