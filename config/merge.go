package config

import "strings"

// mergeMaps deep-merges src into dst, src winning on conflicts. Keys are
// folded to lower case so that a camelCase key from a file and the same key
// spelled in upper case by the environment land on one entry; decoding
// matches field tags case-insensitively.
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		k = strings.ToLower(k)
		mv, isMap := v.(map[string]any)
		if !isMap {
			dst[k] = v
			continue
		}
		existing, ok := dst[k].(map[string]any)
		if !ok {
			existing = make(map[string]any, len(mv))
			dst[k] = existing
		}
		mergeMaps(existing, mv)
	}
}

// Merge deep-merges src into dst with keys folded to lower case.
func Merge(dst, src map[string]any) { mergeMaps(dst, src) }
