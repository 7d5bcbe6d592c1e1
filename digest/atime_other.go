//go:build !unix

package digest

import "os"

// AccessedTime falls back to ModTime on platforms without a POSIX atime
// field readily available from os.FileInfo.Sys().
func AccessedTime(fi os.FileInfo) float64 {
	return statTimeToFloat(fi)
}
