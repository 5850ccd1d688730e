package secrets

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memFile(t *testing.T, path, body string) func(string) ([]byte, error) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0o600))
	return func(name string) ([]byte, error) { return afero.ReadFile(fs, name) }
}

func TestEnvProvider_Get(t *testing.T) {
	t.Setenv("ROLLBAR_ACCESS_TOKEN", "from-env")

	p := NewEnvProvider("")
	val, err := p.Get(context.Background(), KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "from-env", val)

	_, err = p.Get(context.Background(), "nonexistent_secret_xyz")
	assert.Error(t, err)
}

func TestFileProvider_PlainToken(t *testing.T) {
	p := NewFileProvider("/run/token", memFile(t, "/run/token", "tok-123\n"))

	val, err := p.Get(context.Background(), KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", val)
}

func TestFileProvider_JSON(t *testing.T) {
	p := NewFileProvider("/secrets.json", memFile(t, "/secrets.json", `{"access_token":"tok-json"}`))

	val, err := p.Get(context.Background(), KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-json", val)

	_, err = p.Get(context.Background(), "other")
	assert.Error(t, err)
}

func TestFileProvider_Missing(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := NewFileProvider("/nope", func(name string) ([]byte, error) { return afero.ReadFile(fs, name) })

	_, err := p.Get(context.Background(), KeyAccessToken)
	assert.ErrorContains(t, err, "reading secrets file")
}

func TestNewManager_UnknownProvider(t *testing.T) {
	_, err := NewManager(Config{Provider: "vault"}, nil)
	assert.Error(t, err)

	_, err = NewManager(Config{Provider: "file"}, nil)
	assert.Error(t, err)
}

func TestManager_FileFallsBackToEnv(t *testing.T) {
	t.Setenv("CI_ACCESS_TOKEN", "from-env")
	fs := afero.NewMemMapFs()

	m, err := NewManager(Config{Provider: "file", File: "/missing", EnvPrefix: "CI_"},
		func(name string) ([]byte, error) { return afero.ReadFile(fs, name) })
	require.NoError(t, err)

	val, err := m.Get(context.Background(), KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "from-env", val)
}

func TestManager_ResolveAccessToken(t *testing.T) {
	m, err := NewManager(Config{Provider: "file", File: "/token", EnvPrefix: "SMUPLOAD_TEST_UNSET_"},
		memFile(t, "/token", "tok-file"))
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, "explicit", m.ResolveAccessToken(ctx, "explicit"))
	assert.Equal(t, "tok-file", m.ResolveAccessToken(ctx, ""))

	empty, err := NewManager(Config{EnvPrefix: "SMUPLOAD_TEST_UNSET_"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "", empty.ResolveAccessToken(ctx, ""))
}
