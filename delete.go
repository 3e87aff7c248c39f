package uploads

import (
	"context"
	stderrors "errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/input-output-hk/catalyst-forge-libs/uploads/errors"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/sweeper"
)

// DeleteOne deletes the object behind pointer. An empty pointer is a no-op
// and makes no store call. Deleting an object that is already gone succeeds.
//
// Errors:
//   - ErrInvalidInput: the pointer resolves to an empty key
//   - ErrTransferFailed: the store rejected the delete
func (c *Client) DeleteOne(ctx context.Context, pointer string) (err error) {
	if pointer == "" {
		return nil
	}

	ctx, span := c.tracer.Start(ctx, "uploads.DeleteOne", trace.WithAttributes(
		attribute.String("uploads.bucket", c.bucket),
	))
	defer func() { endSpan(span, err) }()
	defer c.metrics.Observe("deleteOne", time.Now())

	err = c.sweeper.DeleteOne(ctx, pointer)
	c.metrics.Delete(err)
	if err != nil {
		c.logger.Warn("delete failed", "bucket", c.bucket, "pointer", pointer, "error", err)
		return err
	}
	return nil
}

// DeleteMany deletes every distinct non-empty pointer concurrently and returns
// once all deletes have finished. A nil or empty slice is a no-op.
//
// Every failure is returned, joined; errors.Is(err, ErrTransferFailed) holds
// when any delete was rejected by the store.
func (c *Client) DeleteMany(ctx context.Context, pointers []string) (err error) {
	if len(pointers) == 0 {
		return nil
	}

	ctx, span := c.tracer.Start(ctx, "uploads.DeleteMany", trace.WithAttributes(
		attribute.String("uploads.bucket", c.bucket),
		attribute.Int("uploads.pointers", len(pointers)),
	))
	defer func() { endSpan(span, err) }()
	defer c.metrics.Observe("deleteMany", time.Now())

	report := c.sweeper.DeleteMany(ctx, pointers)
	c.recordDeletes(report)

	errs := make([]error, 0, len(report.Failures))
	for _, f := range report.Failures {
		errs = append(errs, errors.NewObjectError("deleteMany", c.bucket, f.Key, f.Err))
	}
	return stderrors.Join(errs...)
}

func (c *Client) recordDeletes(report sweeper.Report) {
	for range report.Attempted - len(report.Failures) {
		c.metrics.Delete(nil)
	}
	for _, f := range report.Failures {
		c.metrics.Delete(f.Err)
	}
}
