package bid

import (
	"fmt"

	"github.com/AshleyT3/atbu-go"
)

// Arena resolves BackingFIKey references across SpecificBackupInformation
// boundaries. spec.md §9 calls for storing BFIs in an arena keyed by
// (sbi_index, bfi_index) and resolving backing_fi lazily at load time by
// walking SBIs newest to oldest, filling in keys as physically-backed BFIs
// are discovered — a physically-backed BFI is only known to be "the"
// backing entry for a (path, digest) pair once every newer SBI has been
// considered.
type Arena struct {
	byKey map[atbu.BackingFIKey]*atbu.BackupFileInformation
	byBFI map[*atbu.BackupFileInformation]atbu.BackingFIKey
}

// NewArena constructs an empty Arena.
func NewArena() *Arena {
	return &Arena{
		byKey: map[atbu.BackingFIKey]*atbu.BackupFileInformation{},
		byBFI: map[*atbu.BackupFileInformation]atbu.BackingFIKey{},
	}
}

// Put registers bfi under key.
func (a *Arena) Put(key atbu.BackingFIKey, bfi *atbu.BackupFileInformation) {
	a.byKey[key] = bfi
	a.byBFI[bfi] = key
}

// Get resolves key to its BFI, or nil if unknown.
func (a *Arena) Get(key atbu.BackingFIKey) *atbu.BackupFileInformation {
	return a.byKey[key]
}

// KeyOf reverse-resolves bfi to the key it was Put under, for callers (the
// dedup decision stage) that already hold a *BackupFileInformation pointer
// to an existing, possibly cross-path, entry and need to record it as a
// BackingFI reference directly rather than rely on the path-keyed
// newest-to-oldest walk ResolveBackingFIs performs.
func (a *Arena) KeyOf(bfi *atbu.BackupFileInformation) (atbu.BackingFIKey, bool) {
	key, ok := a.byBFI[bfi]
	return key, ok
}

// ResolveBackingFIs walks sbis newest to oldest, and for every BFI with
// IsUnchangedSinceLast set but whose BackingFI key is unresolved (nil or
// pointing outside the arena), finds the most recent physically-backed BFI
// for the same path among older SBIs and points BackingFI at it. Returns
// atbu.ErrBIDIntegrity if no candidate is found.
func (a *Arena) ResolveBackingFIs(sbis []*atbu.SpecificBackupInformation) error {
	// pending collects, per normalized path, the unresolved unchanged BFIs
	// met so far in newer SBIs; the next physically-backed BFI found at
	// that path further back in time becomes their backing entry.
	pending := map[string][]*atbu.BackupFileInformation{}

	for sbiIdx := len(sbis) - 1; sbiIdx >= 0; sbiIdx-- {
		sbi := sbis[sbiIdx]
		for bfiIdx, bfi := range sbi.BackupFiles {
			key := atbu.BackingFIKey{SBIIndex: sbiIdx, BFIIndex: bfiIdx}
			path := normalizePath(bfi.PathWithoutRoot)

			if bfi.IsUnchangedSinceLast {
				if bfi.BackingFI == nil || a.Get(*bfi.BackingFI) == nil {
					pending[path] = append(pending[path], bfi)
				}
				continue
			}
			// A physically-backed, successful BFI backs every unchanged
			// BFI still waiting for this path in newer SBIs.
			if bfi.IsSuccessful {
				for _, waiting := range pending[path] {
					k := key
					waiting.BackingFI = &k
				}
				delete(pending, path)
			}
		}
	}
	for _, unresolved := range pending {
		return fmt.Errorf("%w: no backing BFI found for unchanged path %q", atbu.ErrBIDIntegrity, unresolved[0].PathWithoutRoot)
	}
	return nil
}

// Physical follows bfi.BackingFI (if set) to the physically-backed BFI
// that actually carries the digest/IV/object name, returning bfi itself
// when it is already physical.
func (a *Arena) Physical(bfi *atbu.BackupFileInformation) *atbu.BackupFileInformation {
	seen := map[*atbu.BackupFileInformation]bool{}
	cur := bfi
	for cur != nil && cur.IsUnchangedSinceLast && cur.BackingFI != nil {
		if seen[cur] {
			return nil // cyclic reference; integrity violation
		}
		seen[cur] = true
		next := a.Get(*cur.BackingFI)
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}
