// Package plugin attaches the source map uploader to a build tool's
// after-emit lifecycle event.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/efebarandurmaz/smupload/internal/assets"
	"github.com/efebarandurmaz/smupload/internal/options"
	"github.com/efebarandurmaz/smupload/internal/upload"
)

// EventAfterEmit is the host event fired once output assets are on disk.
const EventAfterEmit = "after-emit"

// Compilation is the host's view of one finished build pass. The plugin only
// reads the snapshot and assets, and appends to the error and warning lists.
type Compilation interface {
	Snapshot() *assets.Snapshot
	Asset(name string) ([]byte, error)
	AddError(err error)
	AddWarning(err error)
}

// Hook handles a lifecycle event. It must call done exactly once.
type Hook func(comp Compilation, done func())

// Compiler is the host capability plugins register hooks with.
type Compiler interface {
	Plugin(event string, hook Hook)
}

// Plugin uploads a compilation's source maps after emit.
type Plugin struct {
	opts        options.Options
	client      *upload.Client
	coordinator *upload.Coordinator
	logger      *slog.Logger
	onResult    func(upload.Result)
}

// Option customizes a Plugin.
type Option func(*Plugin)

// WithClient replaces the default ingestion client.
func WithClient(c *upload.Client) Option {
	return func(p *Plugin) { p.client = c }
}

// WithLogger sets the logger used for upload messages.
func WithLogger(l *slog.Logger) Option {
	return func(p *Plugin) { p.logger = l }
}

// WithResultHandler registers fn to receive every completed upload cycle.
func WithResultHandler(fn func(upload.Result)) Option {
	return func(p *Plugin) { p.onResult = fn }
}

// New creates a plugin for opts. Options are not validated until the hook runs
// so that misconfiguration is reported through the compilation.
func New(opts options.Options, optFns ...Option) *Plugin {
	p := &Plugin{opts: opts, logger: slog.Default()}
	for _, fn := range optFns {
		if fn != nil {
			fn(p)
		}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.client == nil {
		p.client = upload.NewClient(options.Normalize(opts).Endpoint, nil)
	}
	p.coordinator = upload.NewCoordinator(p.client, opts, p.logger)
	return p
}

// Apply registers the plugin's after-emit hook.
func (p *Plugin) Apply(c Compiler) {
	c.Plugin(EventAfterEmit, p.AfterEmit)
}

// AfterEmit runs the upload cycle in the background and calls done when every
// pair has settled. Failures, including panics, are reported through comp.
func (p *Plugin) AfterEmit(comp Compilation, done func()) {
	go func() {
		defer done()
		defer func() {
			if r := recover(); r != nil {
				comp.AddError(fmt.Errorf("source map upload panicked: %v", r))
			}
		}()
		_, _ = p.Run(context.Background(), comp)
	}()
}

// Run validates options, resolves pairs and uploads them. Findings are pushed
// to comp; the returned error is nil when nothing failed or when failures were
// demoted to warnings.
func (p *Plugin) Run(ctx context.Context, comp Compilation) (upload.Result, error) {
	if verrs := options.Validate(p.opts); len(verrs) > 0 {
		errs := make([]error, 0, len(verrs))
		for _, v := range verrs {
			comp.AddError(v)
			errs = append(errs, v)
		}
		return upload.Result{}, errors.Join(errs...)
	}

	pairs := assets.Resolve(comp.Snapshot(), p.opts.IncludeChunks)
	result := p.coordinator.UploadAll(ctx, pairs, comp)
	if p.onResult != nil {
		p.onResult(result)
	}

	if result.Err == nil {
		return result, nil
	}

	for _, f := range result.Err.Failures {
		if p.opts.IgnoreErrors {
			comp.AddWarning(f)
		} else {
			comp.AddError(f)
		}
	}
	if p.opts.IgnoreErrors {
		if !p.opts.Silent {
			p.logger.Warn("source map upload failures ignored", "failed", len(result.Err.Failures))
		}
		return result, nil
	}
	return result, result.Err
}
