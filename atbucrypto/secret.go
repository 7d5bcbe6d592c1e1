package atbucrypto

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret implements the three-way credential reference contract of
// spec.md §6: a secret reference is either (a) the secret value itself,
// (b) a path to a file containing the secret, or (c) the name of an
// environment variable whose value is such a path. This is a superset of
// what spec.md's distillation states and follows
// original_source/src/atbu/tools/backup/credentials.py, which resolves the
// env-var case by treating its value as a file path rather than as the
// secret directly.
//
// Resolution order: if ref names an existing environment variable, its
// value is treated as a file path and read; else if ref names an existing
// file, its contents are read; else ref is used verbatim as the secret.
// Trailing newlines are trimmed, matching how a shell redirection or editor
// would produce such a file.
func ResolveSecret(ref string) (*KeyMaterial, error) {
	if ref == "" {
		return nil, fmt.Errorf("atbucrypto: empty secret reference")
	}
	if envVal, ok := os.LookupEnv(ref); ok && envVal != "" {
		b, err := os.ReadFile(envVal)
		if err != nil {
			return nil, fmt.Errorf("atbucrypto: secret reference %q names env var pointing at unreadable file %q: %w", ref, envVal, err)
		}
		return NewKeyMaterial(trimSecret(b)), nil
	}
	if b, err := os.ReadFile(ref); err == nil {
		return NewKeyMaterial(trimSecret(b)), nil
	}
	return NewKeyMaterial([]byte(ref)), nil
}

func trimSecret(b []byte) []byte {
	return []byte(strings.TrimRight(string(b), "\r\n"))
}
