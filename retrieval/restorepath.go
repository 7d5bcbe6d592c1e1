package retrieval

import (
	"path/filepath"
	"strings"

	"github.com/AshleyT3/atbu-go"
)

// CommonDiscoveryPrefix returns the longest common directory prefix of
// every distinct DiscoveryPath among bfis, normalized to '/' separators and
// with no trailing separator — the prefix spec.md §4.7's default
// auto-mapping strips from each file's path_without_root before joining it
// under the restore destination.
func CommonDiscoveryPrefix(bfis []*atbu.BackupFileInformation) string {
	seen := map[string]bool{}
	var roots []string
	for _, bfi := range bfis {
		root := filepath.ToSlash(bfi.DiscoveryPath)
		if !seen[root] {
			seen[root] = true
			roots = append(roots, root)
		}
	}
	if len(roots) == 0 {
		return ""
	}
	prefix := roots[0]
	for _, r := range roots[1:] {
		prefix = commonStringPrefix(prefix, r)
	}
	// Keep the whole common string when it ends on a directory boundary
	// in every root; otherwise cut back to the last separator.
	whole := true
	for _, r := range roots {
		if len(r) > len(prefix) && r[len(prefix)] != '/' {
			whole = false
		}
	}
	if whole {
		return strings.TrimSuffix(prefix, "/")
	}
	if idx := strings.LastIndex(prefix, "/"); idx >= 0 {
		prefix = prefix[:idx]
	} else {
		prefix = ""
	}
	return prefix
}

func commonStringPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

// AutoMapper builds the FileSink.MapPath function for spec.md §4.7's
// default auto-mapping: strip prefix (as returned by CommonDiscoveryPrefix)
// from each incoming path_without_root. Passing "" leaves paths untouched,
// which is also what --no-auto-mapping wants (original relative paths
// preserved, modulo the leading separator every path_without_root already
// carries).
func AutoMapper(prefix string) func(string) string {
	return func(pathWithoutRoot string) string {
		norm := filepath.ToSlash(pathWithoutRoot)
		if prefix != "" {
			norm = strings.TrimPrefix(norm, prefix)
		}
		return strings.TrimPrefix(norm, "/")
	}
}
