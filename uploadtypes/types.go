// Package uploadtypes provides shared type definitions for the uploads module.
package uploadtypes

import (
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Kind identifies which shape a Reference holds.
type Kind int

const (
	// KindAbsent is the zero Reference: no pointer and no payload.
	KindAbsent Kind = iota

	// KindPointer is a previously issued public pointer string.
	KindPointer

	// KindPayload is a fresh file payload that still has to be uploaded.
	KindPayload
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindPointer:
		return "pointer"
	case KindPayload:
		return "payload"
	default:
		return "absent"
	}
}

// Payload describes fresh file content supplied by a caller.
type Payload struct {
	// Open returns a new reader over the file content. It is called at most
	// once per transfer and the returned reader is always closed.
	Open func() (io.ReadCloser, error)

	// Filename is the original client-side filename
	Filename string

	// MimeType is the declared content type; empty means detect
	MimeType string
}

// Reference is either an already stored object's pointer, a fresh payload, or
// absent. The zero value is absent. References are immutable.
type Reference struct {
	kind    Kind
	pointer string
	payload Payload
}

// Pointer returns a Reference to an already stored object. An empty pointer
// yields an absent Reference.
func Pointer(pointer string) Reference {
	if pointer == "" {
		return Reference{}
	}
	return Reference{kind: KindPointer, pointer: pointer}
}

// FromPayload returns a Reference to fresh content.
func FromPayload(p Payload) Reference {
	return Reference{kind: KindPayload, payload: p}
}

// Kind reports which shape the reference holds.
func (r Reference) Kind() Kind {
	return r.kind
}

// Pointer returns the pointer string and whether the reference holds one.
func (r Reference) Pointer() (string, bool) {
	return r.pointer, r.kind == KindPointer
}

// Payload returns the payload and whether the reference holds one.
func (r Reference) Payload() (Payload, bool) {
	return r.payload, r.kind == KindPayload
}

// NamingPolicy controls how the basename of a storage key is built.
type NamingPolicy int

const (
	// NamingTimestamped produces "<epoch-millis>-<filename>"
	NamingTimestamped NamingPolicy = iota

	// NamingTimestampExt produces "<epoch-millis><ext>", dropping the original name
	NamingTimestampExt

	// NamingOriginal keeps the filename verbatim; collisions are the caller's concern
	NamingOriginal
)

// String returns the policy name as accepted by ParseNamingPolicy.
func (p NamingPolicy) String() string {
	switch p {
	case NamingTimestampExt:
		return "timestamp-ext"
	case NamingOriginal:
		return "original"
	default:
		return "timestamped"
	}
}

// ParseNamingPolicy converts a policy name into a NamingPolicy.
func ParseNamingPolicy(name string) (NamingPolicy, bool) {
	switch name {
	case "", "timestamped":
		return NamingTimestamped, true
	case "timestamp-ext":
		return NamingTimestampExt, true
	case "original":
		return NamingOriginal, true
	default:
		return NamingTimestamped, false
	}
}

// URLRewrite replaces the bucket's default public host in returned pointers.
type URLRewrite struct {
	// PublicBase is the replacement base, e.g. "https://cdn.example.com"
	PublicBase string

	// KeepOriginal disables the rewrite while keeping the configuration in place
	KeepOriginal bool
}

// Target describes where and how a fresh payload becomes a stored object.
type Target struct {
	// Folder is the key prefix; empty stores the basename at the bucket root
	Folder string

	// Naming selects the basename scheme
	Naming NamingPolicy

	// Rewrite optionally rewrites the returned locator
	Rewrite *URLRewrite
}

// Defaults are process-wide fallbacks, typically loaded once from the environment.
type Defaults struct {
	Region         string
	Bucket         string
	Endpoint       string
	PublicBase     string
	ForcePathStyle bool
}

// ClientConfig holds configuration for the uploads client.
type ClientConfig struct {
	Region          string
	Bucket          string
	Defaults        Defaults
	Endpoint        string
	ForcePathStyle  bool
	PartSize        int64
	PartConcurrency int
	BulkConcurrency int
	CustomAWSConfig *aws.Config
	Logger          *slog.Logger
	Clock           func() time.Time
	Filesystem      fs.Filesystem
	Registerer      prometheus.Registerer
	TracerProvider  trace.TracerProvider
	OrphanHandler   OrphanHandler
	PublicBases     []string
}

// OrphanHandler receives reconciliation deletions that failed. The transfer
// itself has already succeeded when it is called.
type OrphanHandler func(pointer string, err error)

// TransferConfig holds per-call configuration for upload operations.
type TransferConfig struct {
	Fallback string
	Previous []string
}

// Option is a functional option for configuring the uploads client.
type (
	Option func(*ClientConfig)
	// TransferOption is a functional option for configuring a single upload call.
	TransferOption func(*TransferConfig)
)
