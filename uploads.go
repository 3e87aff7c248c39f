package uploads

import (
	"context"
	"io"
	"path"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/input-output-hk/catalyst-forge-libs/uploads/errors"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/keycodec"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/stream"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/uploadtypes"
)

// step is one planned item of a transfer: either a pointer to return as is,
// or a payload to store under key.
type step struct {
	pointer string
	result  string
	payload uploadtypes.Payload
	key     string
}

// UploadOne turns item into a pointer string.
//
// A pointer Reference is returned unchanged without touching the store. A
// payload Reference is stored under a key derived from target and the
// resulting locator is returned, rewritten if target asks for it. An absent
// Reference yields the WithFallback pointer, or ErrMissingInput when none was
// given.
//
// With WithPrevious, every previous pointer other than the result is deleted
// once the transfer succeeds. Those deletes never fail the call; failures go
// to the orphan handler.
//
// Errors:
//   - ErrInvalidInput: the filename or derived key is unusable
//   - ErrMissingInput: item is absent and no fallback was given
//   - ErrTransferFailed: the store rejected the upload
func (c *Client) UploadOne(
	ctx context.Context,
	item uploadtypes.Reference,
	target uploadtypes.Target,
	opts ...uploadtypes.TransferOption,
) (pointer string, err error) {
	tc := applyTransferOptions(opts)

	ctx, span := c.tracer.Start(ctx, "uploads.UploadOne", trace.WithAttributes(
		attribute.String("uploads.bucket", c.bucket),
		attribute.String("uploads.kind", item.Kind().String()),
	))
	defer func() { endSpan(span, err) }()
	defer c.metrics.Observe("uploadOne", time.Now())

	steps, err := c.plan([]uploadtypes.Reference{item}, target, tc.Fallback)
	if err != nil {
		c.metrics.Transfer(metrics.ResultFailed)
		return "", err
	}

	pointer, err = c.run(ctx, &steps[0], target)
	if err != nil {
		return "", err
	}

	c.reconcile(ctx, tc.Previous, []string{pointer})
	return pointer, nil
}

// UploadMany applies UploadOne to every item concurrently and returns the
// pointers in input order.
//
// Keys for all payloads are derived before any upload starts, so invalid
// input fails the call without store traffic. If any item fails, the call
// fails and the remaining uploads are cancelled; uploads that had already
// completed are kept.
//
// After every item succeeds, the pointers passed through WithPrevious that
// are absent from the result are deleted, each exactly once, and the call
// waits for those deletes. Their failures are reported to the orphan handler
// and never fail the call.
func (c *Client) UploadMany(
	ctx context.Context,
	items []uploadtypes.Reference,
	target uploadtypes.Target,
	opts ...uploadtypes.TransferOption,
) (pointers []string, err error) {
	tc := applyTransferOptions(opts)

	ctx, span := c.tracer.Start(ctx, "uploads.UploadMany", trace.WithAttributes(
		attribute.String("uploads.bucket", c.bucket),
		attribute.Int("uploads.items", len(items)),
		attribute.Int("uploads.previous", len(tc.Previous)),
	))
	defer func() { endSpan(span, err) }()
	defer c.metrics.Observe("uploadMany", time.Now())

	steps, err := c.plan(items, target, tc.Fallback)
	if err != nil {
		c.metrics.Transfer(metrics.ResultFailed)
		return nil, err
	}

	results := make([]string, len(steps))
	g, gctx := errgroup.WithContext(ctx)
	if c.config.BulkConcurrency > 0 {
		g.SetLimit(c.config.BulkConcurrency)
	}
	for i := range steps {
		g.Go(func() error {
			pointer, err := c.run(gctx, &steps[i], target)
			if err != nil {
				return err
			}
			results[i] = pointer
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.reconcile(ctx, tc.Previous, results)
	return results, nil
}

// plan validates items and derives keys. It performs no I/O.
func (c *Client) plan(items []uploadtypes.Reference, target uploadtypes.Target, fallback string) ([]step, error) {
	steps := make([]step, len(items))
	used := make(map[string]struct{}, len(items))

	for i, item := range items {
		switch item.Kind() {
		case uploadtypes.KindPointer:
			pointer, _ := item.Pointer()
			steps[i] = step{pointer: pointer, result: metrics.ResultPassthrough}

		case uploadtypes.KindPayload:
			payload, _ := item.Payload()
			key, err := c.deriveUniqueKey(target, payload.Filename, used)
			if err != nil {
				return nil, err
			}
			if err := c.validatePayload(key, payload); err != nil {
				return nil, err
			}
			steps[i] = step{payload: payload, key: key, result: metrics.ResultUploaded}

		default:
			if fallback == "" {
				return nil, errors.NewError("upload", errors.ErrMissingInput).
					WithBucket(c.bucket).
					WithMessage("no file and no fallback reference")
			}
			steps[i] = step{pointer: fallback, result: metrics.ResultFallback}
		}
	}
	return steps, nil
}

// deriveUniqueKey derives a key that no earlier item of the same call uses.
// Timestamped policies move the clock forward a millisecond per clash.
func (c *Client) deriveUniqueKey(target uploadtypes.Target, filename string, used map[string]struct{}) (string, error) {
	now := c.clock()
	for {
		key, err := keycodec.DeriveKey(target.Folder, filename, target.Naming, now)
		if err != nil {
			return "", errors.NewError("deriveKey", err).WithBucket(c.bucket)
		}
		if _, clash := used[key]; !clash || target.Naming == uploadtypes.NamingOriginal {
			used[key] = struct{}{}
			return key, nil
		}
		now = now.Add(time.Millisecond)
	}
}

// validatePayload rejects payloads the stream uploader would refuse, so a
// batch fails before any sibling reaches the store.
func (c *Client) validatePayload(key string, payload uploadtypes.Payload) error {
	if payload.Open == nil {
		return errors.NewObjectError("upload", c.bucket, key, errors.ErrInvalidInput).
			WithMessage("payload has no content")
	}
	return validation.ValidateContentType(payload.MimeType)
}

// run executes one planned step.
func (c *Client) run(ctx context.Context, s *step, target uploadtypes.Target) (string, error) {
	if s.pointer != "" {
		c.metrics.Transfer(s.result)
		return s.pointer, nil
	}

	res, err := c.streamer.Upload(ctx, stream.Request{
		Bucket:  c.bucket,
		Key:     s.key,
		Payload: s.payload,
	})
	if err != nil {
		c.metrics.Transfer(metrics.ResultFailed)
		return "", err
	}
	c.metrics.Transfer(s.result)
	c.metrics.Uploaded(res.Size)

	pointer := res.Locator
	if rw := target.Rewrite; rw != nil {
		pointer = keycodec.RewriteLocator(pointer, c.store.BaseURL(c.bucket), rw.PublicBase, rw.KeepOriginal)
	}

	c.logger.Info("file uploaded",
		"bucket", c.bucket,
		"key", s.key,
		"filename", s.payload.Filename,
		"size", res.Size)
	return pointer, nil
}

// reconcile deletes previous pointers that are not in current. Failures are
// logged, counted and passed to the orphan handler.
func (c *Client) reconcile(ctx context.Context, previous, current []string) {
	if len(previous) == 0 {
		return
	}

	keep := make(map[string]struct{}, len(current))
	for _, p := range current {
		keep[p] = struct{}{}
	}
	var orphans []string
	for _, p := range previous {
		if _, ok := keep[p]; !ok {
			orphans = append(orphans, p)
		}
	}
	if len(orphans) == 0 {
		return
	}

	ctx, span := c.tracer.Start(ctx, "uploads.reconcile", trace.WithAttributes(
		attribute.Int("uploads.orphans", len(orphans)),
	))
	defer span.End()

	report := c.sweeper.DeleteMany(ctx, orphans)
	c.recordDeletes(report)
	c.metrics.Orphans(len(report.Failures))

	for _, f := range report.Failures {
		c.logger.Warn("orphaned object not deleted",
			"bucket", c.bucket,
			"pointer", f.Pointer,
			"key", f.Key,
			"error", f.Err)
		if c.config.OrphanHandler != nil {
			c.config.OrphanHandler(f.Pointer, f.Err)
		}
	}
	if n := len(report.Failures); n > 0 {
		span.SetAttributes(attribute.Int("uploads.orphans_failed", n))
	}
}

// FileReference returns a payload Reference that reads name from the
// client's filesystem. The file is checked now and opened during the upload.
// An empty mimeType means detect from content.
func (c *Client) FileReference(name, mimeType string) (uploadtypes.Reference, error) {
	info, err := c.fs.Stat(name)
	if err != nil {
		return uploadtypes.Reference{}, errors.NewError("fileReference", errors.ErrInvalidInput).
			WithKey(name).
			WithMessage(err.Error())
	}
	if info.IsDir() {
		return uploadtypes.Reference{}, errors.NewError("fileReference", errors.ErrInvalidInput).
			WithKey(name).
			WithMessage("path is a directory")
	}

	return uploadtypes.FromPayload(uploadtypes.Payload{
		Open: func() (io.ReadCloser, error) {
			return c.fs.Open(name)
		},
		Filename: path.Base(name),
		MimeType: mimeType,
	}), nil
}

func applyTransferOptions(opts []uploadtypes.TransferOption) uploadtypes.TransferConfig {
	var tc uploadtypes.TransferConfig
	for _, opt := range opts {
		opt(&tc)
	}
	return tc
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
