// Package env reads upload defaults from .env files and the process
// environment. It is meant to run once at process start; the result is passed
// to uploads.WithDefaults.
package env

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/input-output-hk/catalyst-forge-libs/uploads/uploadtypes"
)

// Recognized variables.
const (
	KeyBucket         = "FILES_S3_BUCKET"
	KeyRegion         = "FILES_S3_REGION"
	KeyEndpoint       = "FILES_S3_ENDPOINT"
	KeyPublicBase     = "FILES_S3_PUBLIC_BASE"
	KeyForcePathStyle = "FILES_S3_FORCE_PATH_STYLE"
)

// DefaultFile is loaded when New is called without files.
const DefaultFile = ".env"

// Keys lists every recognized variable.
var Keys = []string{KeyBucket, KeyRegion, KeyEndpoint, KeyPublicBase, KeyForcePathStyle}

// New loads files into the process environment and returns a viper instance
// bound to Keys. Variables already set in the environment are not overridden.
// Missing files are skipped; unreadable or malformed ones are an error.
func New(files ...string) (*viper.Viper, error) {
	if len(files) == 0 {
		files = []string{DefaultFile}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	v := viper.New()
	for _, key := range Keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return v, nil
}

// Resolve reads the defaults from v. Keys bound to flags resolve through them.
func Resolve(v *viper.Viper) uploadtypes.Defaults {
	return uploadtypes.Defaults{
		Bucket:         v.GetString(KeyBucket),
		Region:         v.GetString(KeyRegion),
		Endpoint:       v.GetString(KeyEndpoint),
		PublicBase:     v.GetString(KeyPublicBase),
		ForcePathStyle: v.GetBool(KeyForcePathStyle),
	}
}

// Load is New followed by Resolve.
func Load(files ...string) (uploadtypes.Defaults, error) {
	v, err := New(files...)
	if err != nil {
		return uploadtypes.Defaults{}, err
	}
	return Resolve(v), nil
}
