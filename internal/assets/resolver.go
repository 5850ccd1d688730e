package assets

import "strings"

const (
	bundleSuffix    = ".js"
	sourceMapSuffix = ".js.map"
)

// Pair is a bundle file and the source map emitted alongside it.
type Pair struct {
	Chunk     string
	Bundle    string
	SourceMap string
}

// IsBundle reports whether name looks like a JavaScript bundle.
func IsBundle(name string) bool {
	return strings.HasSuffix(name, bundleSuffix)
}

// IsSourceMap reports whether name looks like a JavaScript source map.
func IsSourceMap(name string) bool {
	return strings.HasSuffix(name, sourceMapSuffix)
}

// Resolve walks the snapshot's chunks in order and returns one pair for every
// chunk that has both a bundle and a source map. When allow is non-empty,
// chunks whose name is not listed are skipped. The first matching file of each
// kind wins.
func Resolve(snap *Snapshot, allow []string) []Pair {
	if snap == nil {
		return nil
	}

	allowed := make(map[string]struct{}, len(allow))
	for _, name := range allow {
		allowed[name] = struct{}{}
	}

	var pairs []Pair
	for _, chunk := range snap.Chunks {
		if len(allowed) > 0 {
			if _, ok := allowed[chunk.Name]; !ok {
				continue
			}
		}

		var bundle, sourceMap string
		for _, file := range chunk.Files {
			switch {
			case IsSourceMap(file):
				if sourceMap == "" {
					sourceMap = file
				}
			case IsBundle(file):
				if bundle == "" {
					bundle = file
				}
			}
		}

		// Vendor chunks built without maps land here.
		if bundle == "" || sourceMap == "" {
			continue
		}
		pairs = append(pairs, Pair{Chunk: chunk.Name, Bundle: bundle, SourceMap: sourceMap})
	}
	return pairs
}
