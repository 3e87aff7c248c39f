package uploads

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	"github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/input-output-hk/catalyst-forge-libs/uploads/errors"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/keycodec"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/stream"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/sweeper"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/objectstore"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/objectstore/s3store"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/uploadtypes"
)

const tracerName = "github.com/input-output-hk/catalyst-forge-libs/uploads"

// Client uploads and deletes objects in one bucket.
// It is safe for concurrent use; the underlying store is shared read-only.
type Client struct {
	store  objectstore.Store
	bucket string
	config uploadtypes.ClientConfig

	codec    *keycodec.Codec
	streamer *stream.Uploader
	sweeper  *sweeper.Sweeper

	logger  *slog.Logger
	clock   func() time.Time
	fs      fs.Filesystem
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// New creates a client backed by Amazon S3 or an S3-compatible endpoint.
//
// The bucket and region are resolved from the explicit options first, then
// from WithDefaults; the region of a custom AWS configuration counts as
// explicit. If either remains empty, New fails with ErrConfigMissing before
// any network call. Credentials come from the default AWS credential chain
// unless WithAWSConfig is given.
//
// Example:
//
//	defaults, err := env.Load()
//	if err != nil {
//	    return err
//	}
//	client, err := uploads.New(ctx,
//	    uploads.WithDefaults(defaults),
//	    uploads.WithBucket("avatars"),
//	)
func New(ctx context.Context, opts ...uploadtypes.Option) (*Client, error) {
	cfg := applyOptions(opts)

	bucket, err := resolveBucket(cfg)
	if err != nil {
		return nil, err
	}

	region := firstNonEmpty(cfg.Region, customRegion(cfg.CustomAWSConfig), cfg.Defaults.Region)
	if region == "" {
		return nil, errors.NewError("newClient", errors.ErrConfigMissing).
			WithMessage("region is not configured")
	}

	var awsCfg aws.Config
	if cfg.CustomAWSConfig != nil {
		awsCfg = cfg.CustomAWSConfig.Copy()
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(region))
		if err != nil {
			return nil, errors.NewError("newClient", err)
		}
	}
	awsCfg.Region = region

	store := s3store.NewFromConfig(awsCfg,
		s3store.WithEndpoint(firstNonEmpty(cfg.Endpoint, cfg.Defaults.Endpoint)),
		s3store.WithForcePathStyle(cfg.ForcePathStyle || cfg.Defaults.ForcePathStyle),
		s3store.WithPartSize(cfg.PartSize),
		s3store.WithPartConcurrency(cfg.PartConcurrency),
	)

	return newClient(store, bucket, cfg)
}

// NewWithStore creates a client over an existing store, such as
// miniostore or memstore. Region options are ignored.
func NewWithStore(store objectstore.Store, opts ...uploadtypes.Option) (*Client, error) {
	if store == nil {
		return nil, errors.NewError("newClient", errors.ErrInvalidInput).
			WithMessage("store cannot be nil")
	}

	cfg := applyOptions(opts)
	bucket, err := resolveBucket(cfg)
	if err != nil {
		return nil, err
	}
	return newClient(store, bucket, cfg)
}

func newClient(store objectstore.Store, bucket string, cfg uploadtypes.ClientConfig) (*Client, error) {
	m, err := metrics.New(cfg.Registerer)
	if err != nil {
		return nil, errors.NewError("newClient", err)
	}

	c := &Client{
		store:   store,
		config:  cfg,
		logger:  cfg.Logger,
		clock:   cfg.Clock,
		fs:      cfg.Filesystem,
		metrics: m,
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.fs == nil {
		c.fs = billy.NewOSFS("/")
	}

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	c.tracer = tp.Tracer(tracerName)

	c.streamer = stream.New(store, c.logger)
	c.bind(bucket)
	return c, nil
}

// bind points c at bucket and rebuilds the bucket-scoped collaborators.
func (c *Client) bind(bucket string) {
	c.bucket = bucket

	bases := append([]string{c.store.BaseURL(bucket), c.config.Defaults.PublicBase}, c.config.PublicBases...)
	c.codec = keycodec.New(bases...)
	c.sweeper = sweeper.New(c.store, bucket, c.codec,
		sweeper.WithLimit(c.config.BulkConcurrency),
		sweeper.WithLogger(c.logger),
	)
}

// Bucket returns the bucket this client writes to.
func (c *Client) Bucket() string {
	return c.bucket
}

// ForBucket returns a client for another bucket that shares this client's
// store and configuration. Use one per asset category.
func (c *Client) ForBucket(bucket string) (*Client, error) {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return nil, err
	}
	clone := *c
	clone.bind(bucket)
	return &clone, nil
}

func applyOptions(opts []uploadtypes.Option) uploadtypes.ClientConfig {
	var cfg uploadtypes.ClientConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func resolveBucket(cfg uploadtypes.ClientConfig) (string, error) {
	bucket := firstNonEmpty(cfg.Bucket, cfg.Defaults.Bucket)
	if bucket == "" {
		return "", errors.NewError("newClient", errors.ErrConfigMissing).
			WithMessage("bucket is not configured")
	}
	if err := validation.ValidateBucketName(bucket); err != nil {
		return "", err
	}
	return bucket, nil
}

func customRegion(cfg *aws.Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.Region
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
