// Package storagedef defines the storage-definition contract the core
// consumes but never parses or persists itself (spec.md §6): a fully
// resolved description of one backup destination, built by the host process
// from whatever on-disk config format, keyring, or CLI flags it supports.
package storagedef

import "strings"

// Definition is the resolved configuration for one storage destination.
// Host processes construct it from their own config file / credential
// resolution and hand it to orchestrator.Options / retrieval.Options; this
// package has no knowledge of how a Definition was produced.
type Definition struct {
	// Name identifies this storage definition (the `<name>` in
	// `storage:<name>`/`storage-def:<name>` selectors, spec.md §4.8), and
	// is also the config file's base name:
	// "atbu-stgdef--<name>.json".
	Name string

	// DriverKind names the storage backend ("filesystem" is the only
	// driver this repository implements; cloud drivers are external
	// collaborators per spec.md §1). The core never switches on this
	// value itself — it exists so the host process can select which
	// objectstore.Store constructor to call.
	DriverKind string
	// ContainerName is the container/bucket this definition resolves to
	// within its driver.
	ContainerName string
	// Root is the filesystem driver's root directory, meaningful only
	// when DriverKind == "filesystem".
	Root string

	// PassphraseRef, when non-empty, is a credential reference in the
	// three-way form atbucrypto.ResolveSecret resolves (spec.md §6
	// Environment): the secret value itself, a path to a file containing
	// it, or the name of an environment variable whose value is such a
	// path. Empty means the destination is unencrypted.
	PassphraseRef string

	DedupMode                 string
	SneakyCorruptionDetection bool

	// PrimaryBIDPath is where the primary BID for this definition lives
	// — normally under the per-user config directory's backup-info-dir
	// subfolder (spec.md §6 "Persisted state layout"); a filesystem
	// storage definition may additionally keep a secondary copy under
	// "<root>/.atbu/".
	PrimaryBIDPath    string
	SecondaryBIDPaths []string
}

// Placeholder tokens a config file may embed in path fields (spec.md §6).
const (
	DefaultConfigDirPlaceholder = "{DEFAULT_CONFIG_DIR}"
	ConfigDirPlaceholder        = "{CONFIG_DIR}"
)

// ExpandPath replaces DefaultConfigDirPlaceholder and ConfigDirPlaceholder
// in path with defaultConfigDir and configDir respectively. Host processes
// call this once per path field after loading a Definition's backing config
// file and before using any path it carries.
func ExpandPath(path, defaultConfigDir, configDir string) string {
	path = strings.ReplaceAll(path, DefaultConfigDirPlaceholder, defaultConfigDir)
	path = strings.ReplaceAll(path, ConfigDirPlaceholder, configDir)
	return path
}

// ConfigFileName returns the per-user config file name for a storage
// definition named name (spec.md §6: "atbu-stgdef--<name>.json").
func ConfigFileName(name string) string {
	return "atbu-stgdef--" + name + ".json"
}
