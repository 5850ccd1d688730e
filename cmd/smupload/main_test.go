package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBuild(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"stats.json": `{"chunks":[
			{"names":["app"],"files":["app.js","app.js.map"]},
			{"names":["vendor"],"files":["vendor.js"]}
		]}`,
		"app.js":     "console.log(1)",
		"app.js.map": `{"version":3,"sources":["app.ts"]}`,
		"vendor.js":  "",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestUploadCommand(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := writeBuild(t)
	out, err := execute("upload",
		"--stats", filepath.Join(dir, "stats.json"),
		"--access-token", "tok",
		"--version", "v1",
		"--public-path", "https://cdn.example.com",
		"--endpoint", srv.URL,
		"--json",
	)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())

	var rep struct {
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, 0, rep.Failed)
}

func TestUploadCommand_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid access token"}`))
	}))
	defer srv.Close()

	dir := writeBuild(t)
	args := []string{"upload",
		"--stats", filepath.Join(dir, "stats.json"),
		"--access-token", "tok",
		"--version", "v1",
		"--public-path", "https://cdn.example.com",
		"--endpoint", srv.URL,
		"--retry-interval", "1ms",
	}

	out, err := execute(args...)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errBuildFailed))
	assert.Contains(t, out, "invalid access token")

	_, err = execute(append(args, "--ignore-errors")...)
	assert.NoError(t, err)
}

func TestUploadCommand_InvalidOptions(t *testing.T) {
	dir := writeBuild(t)
	out, err := execute("upload", "--stats", filepath.Join(dir, "stats.json"))
	require.Error(t, err)
	assert.Contains(t, out, "accessToken")
}

func TestValidateCommand(t *testing.T) {
	out, err := execute("validate", "--access-token", "tok", "--version", "v1", "--public-path", "https://cdn.example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "options are valid")

	out, err = execute("validate", "--retries", "-1")
	require.Error(t, err)
	assert.Contains(t, out, "retries")
	assert.Contains(t, out, "publicPath")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute("version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestValidateCommand_AccessTokenFile(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenPath, []byte("tok-from-file\n"), 0o600))

	out, err := execute("validate",
		"--access-token-file", tokenPath,
		"--version", "v1",
		"--public-path", "https://cdn.example.com",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "options are valid")
}
