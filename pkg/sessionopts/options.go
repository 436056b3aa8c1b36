// Package sessionopts holds the functional-options configuration shared by
// the session and hidlink packages, the same role the teacher's pkg/options
// plays for its device package.
package sessionopts

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"time"
)

// Options collects every knob a Session or a device lookup needs. Zero
// value fields are filled in by NewOptions' defaults.
type Options struct {
	Logger  *slog.Logger
	Context context.Context

	// NonceSource supplies the 8 random bytes for the CTAPHID_INIT
	// handshake. Tests substitute a deterministic reader here.
	NonceSource io.Reader

	InitTimeout    time.Duration
	CommandTimeout time.Duration

	// Paths, when set, restricts device discovery to these HID paths
	// instead of enumerating the bus.
	Paths []string

	VendorID  uint16
	ProductID uint16

	UseNamedPipe bool

	// ColorDiagnostics enables ANSI-colored severity markers on the
	// deprecated, extension-specific and vendor-specific status
	// diagnostics a Session logs.
	ColorDiagnostics bool
}

// Option mutates an Options value.
type Option func(*Options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

func WithContext(ctx context.Context) Option {
	return func(o *Options) { o.Context = ctx }
}

func WithNonceSource(r io.Reader) Option {
	return func(o *Options) { o.NonceSource = r }
}

func WithInitTimeout(d time.Duration) Option {
	return func(o *Options) { o.InitTimeout = d }
}

func WithCommandTimeout(d time.Duration) Option {
	return func(o *Options) { o.CommandTimeout = d }
}

func WithPaths(paths ...string) Option {
	return func(o *Options) { o.Paths = paths }
}

func WithVendorProduct(vid, pid uint16) Option {
	return func(o *Options) {
		o.VendorID = vid
		o.ProductID = pid
	}
}

func WithUseNamedPipes() Option {
	return func(o *Options) { o.UseNamedPipe = true }
}

// WithColorDiagnostics sets whether ANSI-colored severity markers are used
// when logging deprecated, extension-specific or vendor-specific CTAP2
// status diagnostics.
func WithColorDiagnostics(enabled bool) Option {
	return func(o *Options) { o.ColorDiagnostics = enabled }
}

// NewOptions applies opts over a set of defaults: the default slog logger,
// crypto/rand as the nonce source, a background context, and the spec's
// RECEIVE_TIMEOUT of 5000ms bounding both the INIT handshake and a single
// command's reception.
func NewOptions(opts ...Option) *Options {
	oo := &Options{
		Logger:         slog.Default(),
		Context:        context.Background(),
		NonceSource:    rand.Reader,
		InitTimeout:    5 * time.Second,
		CommandTimeout: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(oo)
	}

	return oo
}
