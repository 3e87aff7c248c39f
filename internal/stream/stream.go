// Package stream moves a payload's bytes into an object store through a pipe,
// so the store reads at its own pace and never sees the whole file at once.
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	uerrors "github.com/input-output-hk/catalyst-forge-libs/uploads/errors"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/objectstore"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/uploadtypes"
)

const (
	// sniffLen is how much of the body is inspected to detect a content type.
	sniffLen = 3072

	defaultContentType = "application/octet-stream"
)

// ErrEmptyLocator is returned when a store reports success without a locator.
var ErrEmptyLocator = errors.New("store returned an empty locator")

// Request describes one payload to store.
type Request struct {
	Bucket  string
	Key     string
	Payload uploadtypes.Payload
}

// Uploader streams payloads into a store.
type Uploader struct {
	store  objectstore.Store
	logger *slog.Logger
}

// New creates an Uploader over store.
func New(store objectstore.Store, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Uploader{store: store, logger: logger}
}

// Upload stores req.Payload under req.Key with public-read visibility.
//
// The payload is opened once and always closed. Store failures are returned
// wrapped with ErrTransferFailed; by then the store has discarded any parts it
// received.
func (u *Uploader) Upload(ctx context.Context, req Request) (*objectstore.Result, error) {
	if req.Payload.Open == nil {
		return nil, uerrors.NewObjectError("upload", req.Bucket, req.Key, uerrors.ErrInvalidInput).
			WithMessage("payload has no content")
	}
	if err := validation.ValidateContentType(req.Payload.MimeType); err != nil {
		return nil, err
	}

	src, err := req.Payload.Open()
	if err != nil {
		return nil, uerrors.NewObjectError("openPayload", req.Bucket, req.Key,
			fmt.Errorf("%w: %w", uerrors.ErrInvalidInput, err))
	}
	// A producer blocked in src.Read returns only once src is closed: close it
	// when ctx ends and before the producer is awaited.
	var closeOnce sync.Once
	closeSrc := func() { closeOnce.Do(func() { _ = src.Close() }) }
	defer closeSrc()
	stopSrc := context.AfterFunc(ctx, closeSrc)
	defer stopSrc()

	body := bufio.NewReaderSize(src, sniffLen)
	contentType := req.Payload.MimeType
	if contentType == "" {
		contentType = detectContentType(body, req.Payload.Filename)
	}

	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := pool.GetCopyBuffer()
		defer pool.PutCopyBuffer(buf)
		// Hide WriterTo so each pipe write is bounded by buf.
		_, err := io.CopyBuffer(pw, struct{ io.Reader }{body}, buf)
		pw.CloseWithError(err)
	}()

	stop := context.AfterFunc(ctx, func() {
		pr.CloseWithError(ctx.Err())
	})
	defer stop()

	res, err := u.transfer(ctx, req, pr, contentType)

	// Unblock the producer whatever the store did with the body.
	pr.CloseWithError(io.ErrClosedPipe)
	closeSrc()
	<-done

	if err != nil {
		u.logger.Warn("upload failed",
			"bucket", req.Bucket,
			"key", req.Key,
			"error", err)
		return nil, uerrors.TransferFailed(err)
	}

	u.logger.Debug("upload complete",
		"bucket", req.Bucket,
		"key", req.Key,
		"size", res.Size,
		"content_type", contentType)
	return res, nil
}

func (u *Uploader) transfer(
	ctx context.Context,
	req Request,
	body io.Reader,
	contentType string,
) (*objectstore.Result, error) {
	handle, err := u.store.BeginUpload(ctx, objectstore.UploadInput{
		Bucket:      req.Bucket,
		Key:         req.Key,
		Body:        body,
		ContentType: contentType,
		ACL:         objectstore.ACLPublicRead,
	})
	if err != nil {
		return nil, err
	}

	res, err := handle.Complete(ctx)
	if err != nil {
		_ = handle.Abort(context.WithoutCancel(ctx))
		return nil, err
	}
	if res == nil || res.Locator == "" {
		_ = u.store.Delete(context.WithoutCancel(ctx), req.Bucket, req.Key)
		return nil, uerrors.NewObjectError("upload", req.Bucket, req.Key, ErrEmptyLocator)
	}
	return res, nil
}

// detectContentType sniffs the head of body, falling back to the filename
// extension when the content looks generic.
func detectContentType(body *bufio.Reader, filename string) string {
	head, _ := body.Peek(sniffLen)
	detected := mimetype.Detect(head)

	generic := detected.Is(defaultContentType) || detected.Is("text/plain")
	if generic {
		if byExt := mime.TypeByExtension(path.Ext(filename)); byExt != "" {
			return byExt
		}
	}
	return detected.String()
}
