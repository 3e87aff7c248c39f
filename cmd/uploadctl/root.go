package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/input-output-hk/catalyst-forge-libs/uploads"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/env"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/uploadtypes"
)

// clientFactory builds the client used by every subcommand.
type clientFactory func(ctx context.Context, opts ...uploadtypes.Option) (*uploads.Client, error)

type cli struct {
	newClient clientFactory

	envFiles []string
	logLevel string

	v      *viper.Viper
	logger *slog.Logger
}

func newRootCommand(factory clientFactory) *cobra.Command {
	c := &cli{newClient: factory}

	cmd := &cobra.Command{
		Use:           "uploadctl",
		Short:         "Upload files to object storage and delete stored objects",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("bucket", "", "target bucket (env "+env.KeyBucket+")")
	flags.String("region", "", "bucket region (env "+env.KeyRegion+")")
	flags.String("endpoint", "", "S3-compatible endpoint URL (env "+env.KeyEndpoint+")")
	flags.StringSliceVar(&c.envFiles, "env-file", nil, "dotenv files to load (default .env)")
	flags.StringVar(&c.logLevel, "log-level", "warn", "log level: debug, info, warn or error")

	cmd.AddCommand(newUploadCommand(c))
	cmd.AddCommand(newDeleteCommand(c))
	return cmd
}

// init loads env files, binds the global flags over them and sets up logging.
func (c *cli) init(cmd *cobra.Command) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", c.logLevel, err)
	}
	c.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	v, err := env.New(c.envFiles...)
	if err != nil {
		return err
	}
	bindings := map[string]string{
		env.KeyBucket:   "bucket",
		env.KeyRegion:   "region",
		env.KeyEndpoint: "endpoint",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	c.v = v
	return nil
}

// client resolves the merged flag and env defaults and builds a client.
func (c *cli) client(ctx context.Context) (*uploads.Client, error) {
	defaults := env.Resolve(c.v)
	c.logger.Debug("resolved configuration",
		"bucket", defaults.Bucket,
		"region", defaults.Region,
		"endpoint", defaults.Endpoint)

	return c.newClient(ctx,
		uploads.WithDefaults(defaults),
		uploads.WithLogger(c.logger),
	)
}
