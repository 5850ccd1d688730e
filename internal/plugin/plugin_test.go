package plugin_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/smupload/internal/assets"
	"github.com/efebarandurmaz/smupload/internal/host"
	"github.com/efebarandurmaz/smupload/internal/options"
	"github.com/efebarandurmaz/smupload/internal/plugin"
	"github.com/efebarandurmaz/smupload/internal/upload"
)

func newCompilation(t *testing.T) *host.Compilation {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, name := range []string{"app.js", "app.js.map", "vendor.js", "vendor.js.map"} {
		require.NoError(t, afero.WriteFile(fs, "/"+name, []byte("{}"), 0o644))
	}
	snap := &assets.Snapshot{Chunks: []assets.Chunk{
		{Name: "app", Files: []string{"app.js", "app.js.map"}},
		{Name: "vendor", Files: []string{"vendor.js", "vendor.js.map"}},
	}}
	return host.NewCompilation(snap, fs)
}

// ingest rejects vendor uploads and accepts everything else.
func ingest(calls *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if strings.HasSuffix(r.FormValue("minified_url"), "/vendor.js") {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"bad token"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func baseOptions(endpoint string) options.Options {
	o := options.Defaults()
	o.AccessToken = "tok"
	o.Version = "1.2.3"
	o.PublicPath = "https://cdn.example.com"
	o.Endpoint = endpoint
	o.RetryInterval = time.Millisecond
	return o
}

func runAfterEmit(t *testing.T, p *plugin.Plugin, comp *host.Compilation) {
	t.Helper()
	compiler := host.NewCompiler()
	p.Apply(compiler)
	require.Equal(t, 1, compiler.Hooks(plugin.EventAfterEmit))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, compiler.Emit(ctx, plugin.EventAfterEmit, comp))
}

func TestAfterEmit_InvalidOptions(t *testing.T) {
	var calls atomic.Int32
	srv := ingest(&calls)
	defer srv.Close()

	opts := baseOptions(srv.URL)
	opts.AccessToken = ""
	opts.Version = ""

	comp := newCompilation(t)
	runAfterEmit(t, plugin.New(opts, plugin.WithClient(upload.NewClient(srv.URL, srv.Client()))), comp)

	errs := comp.Errors()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "accessToken")
	assert.Contains(t, errs[1].Error(), "version")
	assert.Empty(t, comp.Warnings())
	assert.EqualValues(t, 0, calls.Load())
}

func TestAfterEmit_SlashOnlyPublicPath(t *testing.T) {
	var calls atomic.Int32
	srv := ingest(&calls)
	defer srv.Close()

	opts := baseOptions(srv.URL)
	opts.PublicPath = "/"

	comp := newCompilation(t)
	runAfterEmit(t, plugin.New(opts, plugin.WithClient(upload.NewClient(srv.URL, srv.Client()))), comp)

	errs := comp.Errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "publicPath")
	assert.EqualValues(t, 0, calls.Load())
}

func TestAfterEmit_FailuresAreErrors(t *testing.T) {
	var calls atomic.Int32
	srv := ingest(&calls)
	defer srv.Close()

	var logs bytes.Buffer
	p := plugin.New(baseOptions(srv.URL),
		plugin.WithClient(upload.NewClient(srv.URL, srv.Client())),
		plugin.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)

	comp := newCompilation(t)
	runAfterEmit(t, p, comp)

	require.Len(t, comp.Errors(), 1)
	assert.Contains(t, comp.Errors()[0].Error(), "failed to upload vendor.js.map")
	assert.Contains(t, comp.Errors()[0].Error(), "bad token")
	assert.Empty(t, comp.Warnings())
	assert.Contains(t, logs.String(), "Uploaded app.js.map to Rollbar")
}

func TestAfterEmit_IgnoreErrorsDemotesToWarnings(t *testing.T) {
	var calls atomic.Int32
	srv := ingest(&calls)
	defer srv.Close()

	opts := baseOptions(srv.URL)
	opts.IgnoreErrors = true

	var logs bytes.Buffer
	p := plugin.New(opts,
		plugin.WithClient(upload.NewClient(srv.URL, srv.Client())),
		plugin.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)

	comp := newCompilation(t)
	runAfterEmit(t, p, comp)

	assert.Empty(t, comp.Errors())
	require.Len(t, comp.Warnings(), 1)
	assert.Contains(t, comp.Warnings()[0].Error(), "vendor.js.map")
	assert.Contains(t, logs.String(), "Uploaded app.js.map to Rollbar")
}

func TestAfterEmit_SilentSuppressesLogs(t *testing.T) {
	var calls atomic.Int32
	srv := ingest(&calls)
	defer srv.Close()

	opts := baseOptions(srv.URL)
	opts.Silent = true
	opts.IgnoreErrors = true

	var logs bytes.Buffer
	p := plugin.New(opts,
		plugin.WithClient(upload.NewClient(srv.URL, srv.Client())),
		plugin.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)

	comp := newCompilation(t)
	runAfterEmit(t, p, comp)

	assert.Empty(t, logs.String())
	assert.Len(t, comp.Warnings(), 1)
}

func TestRun_IncludeChunks(t *testing.T) {
	var calls atomic.Int32
	srv := ingest(&calls)
	defer srv.Close()

	opts := baseOptions(srv.URL)
	opts.IncludeChunks = []string{"app"}

	var got upload.Result
	p := plugin.New(opts,
		plugin.WithClient(upload.NewClient(srv.URL, srv.Client())),
		plugin.WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
		plugin.WithResultHandler(func(r upload.Result) { got = r }),
	)

	comp := newCompilation(t)
	res, err := p.Run(context.Background(), comp)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, "app.js.map", res.Outcomes[0].Pair.SourceMap)
	assert.Equal(t, res.CycleID, got.CycleID)
	assert.EqualValues(t, 1, calls.Load())
	assert.Empty(t, comp.Errors())
}

type panickyCompilation struct {
	*host.Compilation
}

func (panickyCompilation) Snapshot() *assets.Snapshot { panic("snapshot unavailable") }

func TestAfterEmit_RecoversPanics(t *testing.T) {
	comp := panickyCompilation{Compilation: newCompilation(t)}
	p := plugin.New(baseOptions("http://ingest.invalid"))

	done := make(chan struct{})
	p.AfterEmit(comp, func() { close(done) })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("done was never called")
	}
	require.Len(t, comp.Errors(), 1)
	assert.Contains(t, comp.Errors()[0].Error(), "snapshot unavailable")
}
