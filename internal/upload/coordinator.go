package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/iter"

	"github.com/efebarandurmaz/smupload/internal/assets"
	"github.com/efebarandurmaz/smupload/internal/observability"
	"github.com/efebarandurmaz/smupload/internal/options"
)

// AssetSource gives access to the emitted bytes of a compilation's assets.
type AssetSource interface {
	Asset(name string) ([]byte, error)
}

// Outcome is the terminal result of uploading one pair.
type Outcome struct {
	Pair     assets.Pair
	State    State
	Attempts int
	Duration time.Duration
	Err      *UploadError
}

// Result is everything one upload cycle produced. Err is nil when every pair
// succeeded.
type Result struct {
	CycleID  string
	Outcomes []Outcome
	Err      *AggregateError
}

// Succeeded returns the outcomes that reached StateSucceeded.
func (r Result) Succeeded() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.State == StateSucceeded {
			out = append(out, o)
		}
	}
	return out
}

// Coordinator uploads every pair of a build concurrently and gathers the
// outcomes.
type Coordinator struct {
	client *Client
	opts   options.Options
	logger *slog.Logger
}

// NewCoordinator creates a coordinator. opts are normalized; a nil logger
// falls back to slog.Default().
func NewCoordinator(client *Client, opts options.Options, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		client: client,
		opts:   options.Normalize(opts),
		logger: logger,
	}
}

// UploadAll uploads each pair in its own task and waits for all of them to
// settle. Cancelling ctx does not cut uploads short; every pair runs to a
// terminal state.
func (c *Coordinator) UploadAll(ctx context.Context, pairs []assets.Pair, src AssetSource) Result {
	ctx = context.WithoutCancel(ctx)
	cycleID := uuid.NewString()

	ctx, span := observability.StartCycleSpan(ctx, cycleID, len(pairs))
	defer span.End()

	// One goroutine per pair, independent of GOMAXPROCS.
	mapper := iter.Mapper[assets.Pair, Outcome]{MaxGoroutines: max(len(pairs), 1)}
	outcomes := mapper.Map(pairs, func(p *assets.Pair) Outcome {
		return c.upload(ctx, *p, src)
	})

	result := Result{CycleID: cycleID, Outcomes: outcomes}
	var failures []*UploadError
	for _, o := range outcomes {
		if o.Err != nil {
			failures = append(failures, o.Err)
			continue
		}
		if !c.opts.Silent {
			c.logger.Info(fmt.Sprintf("Uploaded %s to Rollbar", o.Pair.SourceMap),
				"cycle_id", cycleID,
				"source_map", o.Pair.SourceMap,
				"minified_url", c.minifiedURL(o.Pair),
				"attempts", o.Attempts,
			)
		}
	}
	if len(failures) > 0 {
		result.Err = &AggregateError{Failures: failures}
	}

	observability.RecordCycleResult(span, len(failures), c.opts.IgnoreErrors)
	return result
}

func (c *Coordinator) minifiedURL(p assets.Pair) string {
	return c.opts.PublicPath + "/" + p.Bundle
}

func (c *Coordinator) upload(ctx context.Context, pair assets.Pair, src AssetSource) Outcome {
	start := time.Now()
	ctx, span := observability.StartUploadSpan(ctx, pair.Chunk, pair.SourceMap)
	defer span.End()

	t := newTracker(c.opts.Attempts())
	out := Outcome{Pair: pair}
	finish := func(err *UploadError) Outcome {
		_ = t.finish(err == nil)
		out.State = t.state
		out.Attempts = t.attempt
		out.Duration = time.Since(start)
		out.Err = err

		var spanErr error
		if err != nil {
			spanErr = err
		}
		observability.RecordUploadResult(span, out.Attempts, out.Duration, spanErr)
		return out
	}

	data, err := src.Asset(pair.SourceMap)
	if err != nil {
		return finish(&UploadError{SourceMap: pair.SourceMap, Err: err})
	}

	form := Form{
		AccessToken:   c.opts.AccessToken,
		Version:       c.opts.Version,
		MinifiedURL:   c.minifiedURL(pair),
		SourceMapName: pair.SourceMap,
		SourceMap:     data,
	}

	var last *Response
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if err := t.begin(); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		last = nil

		resp, err := c.client.Send(ctx, form)
		if err != nil {
			return struct{}{}, err
		}
		last = resp
		if resp.StatusCode != http.StatusOK {
			return struct{}{}, &statusError{resp: resp}
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.opts.RetryInterval)),
		backoff.WithMaxTries(uint(c.opts.Attempts())),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Debug("source map upload attempt failed",
				"source_map", pair.SourceMap,
				"endpoint", c.client.Endpoint(),
				"attempt", t.attempt,
				"retry_in", next,
				"error", err,
			)
		}),
	)
	if err == nil {
		return finish(nil)
	}
	return finish(classify(pair.SourceMap, last, err))
}

// classify turns the final attempt into an UploadError. A transport failure
// is kept as the cause; a rejected response is described by its status and
// the server's message, with any body parse failure chained beneath.
func classify(sourceMap string, resp *Response, err error) *UploadError {
	var se *statusError
	if resp == nil || !errors.As(err, &se) {
		return &UploadError{SourceMap: sourceMap, Err: err}
	}

	ue := &UploadError{SourceMap: sourceMap, StatusCode: resp.StatusCode}

	var body struct {
		Message *string `json:"message"`
	}
	if jerr := json.Unmarshal(resp.Body, &body); jerr != nil {
		ue.Err = &ParseError{Body: string(resp.Body), Err: jerr}
		return ue
	}
	if body.Message == nil || *body.Message == "" {
		ue.Err = &ParseError{Body: string(resp.Body), Err: ErrNoMessage}
		return ue
	}
	ue.Message = *body.Message
	return ue
}
