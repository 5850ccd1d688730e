// Package assets turns a build's chunk listing into bundle/source map pairs.
package assets

import (
	"encoding/json"
	"fmt"
	"io"
)

// Chunk is one named group of emitted output files.
type Chunk struct {
	Name  string
	Files []string
}

// Snapshot is a read-only view of one compilation's chunks, in emit order.
type Snapshot struct {
	Chunks []Chunk
}

// statsFile mirrors the subset of `webpack --json` output we read.
type statsFile struct {
	Chunks []struct {
		Names []string `json:"names"`
		Files []string `json:"files"`
	} `json:"chunks"`
}

// ParseStats decodes bundler stats JSON. A chunk's name is the first entry of
// its names list, or empty when the chunk is anonymous.
func ParseStats(r io.Reader) (*Snapshot, error) {
	var raw statsFile
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding stats: %w", err)
	}

	snap := &Snapshot{Chunks: make([]Chunk, 0, len(raw.Chunks))}
	for _, c := range raw.Chunks {
		var name string
		if len(c.Names) > 0 {
			name = c.Names[0]
		}
		snap.Chunks = append(snap.Chunks, Chunk{Name: name, Files: c.Files})
	}
	return snap, nil
}
