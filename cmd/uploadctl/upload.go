package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/uploads"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/env"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/errors"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/uploadtypes"
)

type uploadFlags struct {
	folder       string
	naming       string
	mimeType     string
	keepOriginal bool
	replace      []string
}

func newUploadCommand(c *cli) *cobra.Command {
	var f uploadFlags

	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload files and print one pointer per line, in argument order",
		Example: `  uploadctl upload --bucket avatars --folder users/42 me.png
  uploadctl upload --folder docs --naming original --replace https://media.s3.amazonaws.com/docs/old.pdf new.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			naming, ok := uploadtypes.ParseNamingPolicy(f.naming)
			if !ok {
				return errors.NewError("upload", errors.ErrInvalidInput).
					WithMessage(fmt.Sprintf("unknown naming policy %q", f.naming))
			}
			if err := c.v.BindPFlag(env.KeyPublicBase, cmd.Flags().Lookup("public-base")); err != nil {
				return err
			}

			client, err := c.client(cmd.Context())
			if err != nil {
				return err
			}

			items := make([]uploadtypes.Reference, 0, len(args))
			for _, arg := range args {
				name, err := filepath.Abs(arg)
				if err != nil {
					return err
				}
				ref, err := client.FileReference(filepath.ToSlash(name), f.mimeType)
				if err != nil {
					return err
				}
				items = append(items, ref)
			}

			target := uploadtypes.Target{Folder: f.folder, Naming: naming}
			if base := c.v.GetString(env.KeyPublicBase); base != "" {
				target.Rewrite = &uploadtypes.URLRewrite{PublicBase: base, KeepOriginal: f.keepOriginal}
			}

			pointers, err := client.UploadMany(cmd.Context(), items, target, uploads.WithPrevious(f.replace...))
			if err != nil {
				return err
			}
			for _, p := range pointers {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.folder, "folder", "", "key prefix for stored objects")
	flags.StringVar(&f.naming, "naming", "timestamped", "naming policy: timestamped, timestamp-ext or original")
	flags.StringVar(&f.mimeType, "content-type", "", "content type for every file (default: detect)")
	flags.String("public-base", "", "rewrite returned pointers onto this base (env "+env.KeyPublicBase+")")
	flags.BoolVar(&f.keepOriginal, "keep-original", false, "return store locators even when a public base is set")
	flags.StringSliceVar(&f.replace, "replace", nil, "previous pointers to delete once the upload succeeds")
	return cmd
}
