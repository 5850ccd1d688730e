package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// FileProvider reads secrets from a file. A JSON object maps keys to values;
// any other content is taken as the access token itself, which matches the
// single-line token files CI systems mount.
type FileProvider struct {
	path     string
	readFile func(string) ([]byte, error)

	once sync.Once
	data map[string]string
	err  error
}

// NewFileProvider creates a provider that reads path on first use.
func NewFileProvider(path string, readFile func(string) ([]byte, error)) *FileProvider {
	return &FileProvider{path: path, readFile: readFile}
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Get(ctx context.Context, key string) (string, error) {
	p.once.Do(func() { p.data, p.err = p.load() })
	if p.err != nil {
		return "", p.err
	}

	val, ok := p.data[key]
	if !ok {
		return "", fmt.Errorf("secret not found in %s: %s", p.path, key)
	}
	return val, nil
}

func (p *FileProvider) load() (map[string]string, error) {
	raw, err := p.readFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}

	raw = bytes.TrimSpace(raw)
	if bytes.HasPrefix(raw, []byte("{")) {
		data := make(map[string]string)
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("parsing secrets file: %w", err)
		}
		return data, nil
	}
	return map[string]string{KeyAccessToken: string(raw)}, nil
}
