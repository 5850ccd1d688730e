// Package options holds the source map uploader's plugin options and their
// validation rules.
package options

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultEndpoint is the Rollbar source map ingestion URL.
	DefaultEndpoint = "https://api.rollbar.com/api/1/sourcemap"

	// DefaultRetries means a single attempt with no retry.
	DefaultRetries = 1

	// DefaultRetryInterval is the fixed pause between attempts.
	DefaultRetryInterval = 100 * time.Millisecond
)

// Options configures one plugin instance. It is treated as immutable once the
// plugin is constructed.
type Options struct {
	AccessToken   string        `mapstructure:"access_token"`
	Version       string        `mapstructure:"version"`
	PublicPath    string        `mapstructure:"public_path"`
	IncludeChunks []string      `mapstructure:"include_chunks"`
	Silent        bool          `mapstructure:"silent"`
	Retries       int           `mapstructure:"retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	IgnoreErrors  bool          `mapstructure:"ignore_errors"`
	Endpoint      string        `mapstructure:"endpoint"`
}

// Defaults returns options with every optional field at its default.
func Defaults() Options {
	return Options{
		Retries:       DefaultRetries,
		RetryInterval: DefaultRetryInterval,
		Endpoint:      DefaultEndpoint,
	}
}

// Normalize strips trailing slashes from the public path and fills in the
// endpoint and retry interval when they are unset.
func Normalize(o Options) Options {
	o.PublicPath = strings.TrimRight(o.PublicPath, "/")
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if len(o.IncludeChunks) > 0 {
		o.IncludeChunks = append([]string(nil), o.IncludeChunks...)
	}
	return o
}

// Attempts is the number of submissions made per pair.
func (o Options) Attempts() int {
	if o.Retries < 1 {
		return 1
	}
	return o.Retries
}

// ValidationError names one option that failed validation.
type ValidationError struct {
	Field       string
	Expectation string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid option %s: %s", e.Field, e.Expectation)
}

// Validate checks every option independently and returns one error per
// violated field. A valid configuration yields an empty result.
func Validate(o Options) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(o.AccessToken) == "" {
		errs = append(errs, ValidationError{Field: "accessToken", Expectation: "required, must be a non-empty string"})
	}
	if strings.TrimSpace(o.Version) == "" {
		errs = append(errs, ValidationError{Field: "version", Expectation: "required, must be a non-empty string"})
	}
	if strings.TrimSpace(o.PublicPath) == "" {
		errs = append(errs, ValidationError{Field: "publicPath", Expectation: "required, must be a non-empty string"})
	} else if strings.TrimSpace(Normalize(o).PublicPath) == "" {
		errs = append(errs, ValidationError{Field: "publicPath", Expectation: fmt.Sprintf("must be a base URL, %q is empty once trailing slashes are removed", o.PublicPath)})
	}
	if o.Retries < 0 {
		errs = append(errs, ValidationError{
			Field:       "retries",
			Expectation: fmt.Sprintf("must be a non-negative integer, got %d", o.Retries),
		})
	}
	for i, chunk := range o.IncludeChunks {
		if chunk == "" {
			errs = append(errs, ValidationError{
				Field:       "includeChunks",
				Expectation: fmt.Sprintf("must be a list of chunk names, entry %d is empty", i),
			})
			break
		}
	}

	return errs
}
