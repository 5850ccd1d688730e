package upload

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoMessage is the parse cause recorded when a failure body is valid JSON
// but carries no message.
var ErrNoMessage = errors.New("response body has no message field")

// UploadError is the terminal failure for one source map. Err, when set, is the
// underlying transport or parse failure.
type UploadError struct {
	SourceMap  string
	StatusCode int
	Message    string
	Err        error
}

func (e *UploadError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to upload %s to Rollbar", e.SourceMap)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " with status code %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *UploadError) Unwrap() error { return e.Err }

// ParseError records a failure response body that could not be read as
// {"message": "..."}.
type ParseError struct {
	Body string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %q: %v", e.Body, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// AggregateError collects every failed pair from one upload cycle, in pair
// order.
type AggregateError struct {
	Failures []*UploadError
}

func (e *AggregateError) Error() string {
	if len(e.Failures) == 1 {
		return e.Failures[0].Error()
	}
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("%d source maps failed to upload: %s", len(e.Failures), strings.Join(msgs, "; "))
}

func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// statusError marks an attempt that reached the server but was not accepted.
type statusError struct {
	resp *Response
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.resp.StatusCode)
}
