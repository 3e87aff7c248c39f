// Package keycodec derives storage keys from uploaded filenames and recovers
// them from the public pointers handed back to callers. It performs no I/O.
package keycodec

import (
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/uploadtypes"
)

// HostMarker separates the host of a legacy pointer from its key.
const HostMarker = ".com/"

// DeriveKey builds "<folder>/<basename>" for filename under policy. The
// basename is salted with now in milliseconds unless policy is NamingOriginal.
func DeriveKey(folder, filename string, policy uploadtypes.NamingPolicy, now time.Time) (string, error) {
	if err := validation.ValidateFilename(filename); err != nil {
		return "", err
	}

	millis := strconv.FormatInt(now.UnixMilli(), 10)

	var base string
	switch policy {
	case uploadtypes.NamingOriginal:
		base = filename
	case uploadtypes.NamingTimestampExt:
		base = millis + path.Ext(filename)
	default:
		base = millis + "-" + filename
	}

	key := base
	if folder = strings.Trim(folder, "/"); folder != "" {
		key = folder + "/" + base
	}

	if err := validation.ValidateObjectKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// ExtractKey strips everything up to and including the first HostMarker.
// Inputs without the marker are returned unchanged, so bare keys pass through.
func ExtractKey(pointer string) string {
	if i := strings.Index(pointer, HostMarker); i >= 0 {
		return pointer[i+len(HostMarker):]
	}
	return pointer
}

// RewriteLocator substitutes fromHost with toHost in locator. The locator is
// returned unchanged when keepOriginal is set or toHost is empty.
func RewriteLocator(locator, fromHost, toHost string, keepOriginal bool) string {
	if keepOriginal || toHost == "" || fromHost == "" {
		return locator
	}
	return strings.Replace(locator, fromHost, strings.TrimRight(toHost, "/"), 1)
}

// Codec recovers keys from pointers issued under a known set of bases.
type Codec struct {
	bases []string
}

// New returns a Codec that recognizes pointers beginning with any of bases.
// Longer bases are tried first.
func New(bases ...string) *Codec {
	c := &Codec{}
	for _, b := range bases {
		b = strings.TrimRight(b, "/")
		if b != "" {
			c.bases = append(c.bases, b)
		}
	}
	slices.SortStableFunc(c.bases, func(a, b string) int { return len(b) - len(a) })
	return c
}

// Extract returns the storage key for pointer. A pointer under a known base
// loses exactly that base and is URL-unescaped; anything else goes through
// ExtractKey.
func (c *Codec) Extract(pointer string) string {
	for _, base := range c.bases {
		if rest, ok := strings.CutPrefix(pointer, base+"/"); ok {
			if key, err := url.PathUnescape(rest); err == nil {
				return key
			}
			return rest
		}
	}
	return ExtractKey(pointer)
}
