package digest

import "os"

// statTimeToFloat converts a file's modification time to POSIX fractional
// seconds, the representation spec.md §3 uses for BFI timestamps.
func statTimeToFloat(fi os.FileInfo) float64 {
	t := fi.ModTime()
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// ModifiedTime is the exported form of statTimeToFloat, for callers outside
// this package (the orchestrator's stat-refresh stage) that need the same
// POSIX-fractional-seconds conversion FileHasher uses internally.
func ModifiedTime(fi os.FileInfo) float64 {
	return statTimeToFloat(fi)
}
