// Package uploads provides functional options for configuring the client and
// individual transfers.
package uploads

import (
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/input-output-hk/catalyst-forge-libs/uploads/uploadtypes"
)

// WithRegion sets the storage region. It takes precedence over the region in
// WithDefaults and in a custom AWS configuration.
func WithRegion(region string) uploadtypes.Option {
	return func(c *uploadtypes.ClientConfig) {
		c.Region = region
	}
}

// WithBucket sets the bucket objects are written to and deleted from.
func WithBucket(bucket string) uploadtypes.Option {
	return func(c *uploadtypes.ClientConfig) {
		c.Bucket = bucket
	}
}

// WithDefaults supplies process-wide fallbacks, typically loaded once by the
// env package. Explicit options always win over defaults.
func WithDefaults(d uploadtypes.Defaults) uploadtypes.Option {
	return func(c *uploadtypes.ClientConfig) {
		c.Defaults = d
	}
}

// WithEndpoint sets a custom S3 endpoint URL.
// This is useful for S3-compatible services or local testing with LocalStack.
func WithEndpoint(endpoint string) uploadtypes.Option {
	return func(c *uploadtypes.ClientConfig) {
		c.Endpoint = endpoint
	}
}

// WithForcePathStyle forces path-style bucket addressing.
func WithForcePathStyle(forcePathStyle bool) uploadtypes.Option {
	return func(c *uploadtypes.ClientConfig) {
		c.ForcePathStyle = forcePathStyle
	}
}

// WithPartSize sets the multipart chunk size. Default is 8MB; values below
// 5MB are raised to 5MB.
func WithPartSize(partSize int64) uploadtypes.Option {
	return func(c *uploadtypes.ClientConfig) {
		if partSize > 0 {
			c.PartSize = partSize
		}
	}
}

// WithPartConcurrency sets how many parts of a single upload may be in flight.
// Default is 5.
func WithPartConcurrency(n int) uploadtypes.Option {
	return func(c *uploadtypes.ClientConfig) {
		if n > 0 {
			c.PartConcurrency = n
		}
	}
}

// WithBulkConcurrency caps how many items of an UploadMany call, and how many
// deletes of a DeleteMany call, run at once. By default every item starts
// immediately, so memory and connections grow with the batch size.
func WithBulkConcurrency(n int) uploadtypes.Option {
	return func(c *uploadtypes.ClientConfig) {
		c.BulkConcurrency = n
	}
}

// WithAWSConfig allows providing a custom AWS configuration.
// This overrides the default configuration loading behavior.
func WithAWSConfig(config *aws.Config) uploadtypes.Option {
	return func(c *uploadtypes.ClientConfig) {
		c.CustomAWSConfig = config
	}
}

// WithLogger sets the structured logger. Logging is discarded by default.
func WithLogger(logger *slog.Logger) uploadtypes.Option {
	return func(c *uploadtypes.ClientConfig) {
		c.Logger = logger
	}
}

// WithClock replaces time.Now for key derivation.
func WithClock(clock func() time.Time) uploadtypes.Option {
	return func(c *uploadtypes.ClientConfig) {
		c.Clock = clock
	}
}

// WithFilesystem sets the filesystem used by FileReference.
// Default is the OS filesystem rooted at /.
func WithFilesystem(filesystem fs.Filesystem) uploadtypes.Option {
	return func(c *uploadtypes.ClientConfig) {
		c.Filesystem = filesystem
	}
}

// WithMetricsRegisterer enables Prometheus metrics on reg.
func WithMetricsRegisterer(reg prometheus.Registerer) uploadtypes.Option {
	return func(c *uploadtypes.ClientConfig) {
		c.Registerer = reg
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
// Default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) uploadtypes.Option {
	return func(c *uploadtypes.ClientConfig) {
		c.TracerProvider = tp
	}
}

// WithOrphanHandler receives every replaced object that could not be deleted
// after a successful transfer, so cleanup can be retried out-of-band.
func WithOrphanHandler(h uploadtypes.OrphanHandler) uploadtypes.Option {
	return func(c *uploadtypes.ClientConfig) {
		c.OrphanHandler = h
	}
}

// WithPublicBases lists extra public prefixes, such as CDN hosts used in
// URL rewrites, under which previously issued pointers may appear.
func WithPublicBases(bases ...string) uploadtypes.Option {
	return func(c *uploadtypes.ClientConfig) {
		c.PublicBases = append(c.PublicBases, bases...)
	}
}

// WithFallback is returned by UploadOne when the item is absent. In
// UploadMany it stands in for every absent item.
func WithFallback(pointer string) uploadtypes.TransferOption {
	return func(c *uploadtypes.TransferConfig) {
		c.Fallback = pointer
	}
}

// WithPrevious names the pointers being replaced. After a successful transfer,
// every previous pointer missing from the result is deleted.
func WithPrevious(pointers ...string) uploadtypes.TransferOption {
	return func(c *uploadtypes.TransferConfig) {
		c.Previous = append(c.Previous, pointers...)
	}
}
