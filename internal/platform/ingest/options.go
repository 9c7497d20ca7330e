package ingest

import (
	"net/http"
	"time"
)

const (
	// DefaultMaxEntrySize bounds a single archive entry or file body.
	DefaultMaxEntrySize int64 = 32 << 20
	// DefaultTimeout bounds the whole package fetch.
	DefaultTimeout = 60 * time.Second
)

type options struct {
	client          *http.Client
	timeout         time.Duration
	maxErrorDetails int
	maxEntrySize    int64
}

func defaultOptions() options {
	return options{
		timeout:         DefaultTimeout,
		maxErrorDetails: DefaultMaxErrorDetails,
		maxEntrySize:    DefaultMaxEntrySize,
	}
}

// Option configures a PackageIngester or DirectoryLoader.
type Option func(*options)

// WithHTTPClient sets the client used to fetch packages. Its Timeout is
// left alone when already set.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithTimeout sets the fetch timeout for the default client.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxErrorDetails sets how many failure messages a Report keeps.
func WithMaxErrorDetails(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxErrorDetails = n
		}
	}
}

// WithMaxEntrySize sets the largest entry body that is read.
func WithMaxEntrySize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEntrySize = n
		}
	}
}

func (o options) httpClient() *http.Client {
	if o.client == nil {
		return &http.Client{Timeout: o.timeout}
	}
	if o.client.Timeout == 0 {
		c := *o.client
		c.Timeout = o.timeout
		return &c
	}
	return o.client
}
