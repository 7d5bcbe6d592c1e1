package orchestrator

import "github.com/AshleyT3/atbu-go"

// fakeLookup is a bidLookup test double letting each test set only the
// query it exercises.
type fakeLookup struct {
	dateSizeChanged   func(fi *atbu.BackupFileInformation) (bool, *atbu.BackupFileInformation)
	digestChanged     func(algo string, fi *atbu.BackupFileInformation) (bool, *atbu.BackupFileInformation)
	duplicate         func(mode atbu.DeduplicationOption, algo string, fi *atbu.BackupFileInformation) *atbu.BackupFileInformation
	sneakyCorruption  func(algo string, fi *atbu.BackupFileInformation) (bool, *atbu.BackupFileInformation)
	mostRecentForPath func(path string) *atbu.BackupFileInformation
	keyOf             func(fi *atbu.BackupFileInformation) (atbu.BackingFIKey, bool)
}

func (f *fakeLookup) DateSizeChanged(fi *atbu.BackupFileInformation) (bool, *atbu.BackupFileInformation) {
	if f.dateSizeChanged == nil {
		return true, nil
	}
	return f.dateSizeChanged(fi)
}

func (f *fakeLookup) DigestChanged(algo string, fi *atbu.BackupFileInformation) (bool, *atbu.BackupFileInformation) {
	if f.digestChanged == nil {
		return true, nil
	}
	return f.digestChanged(algo, fi)
}

func (f *fakeLookup) Duplicate(mode atbu.DeduplicationOption, algo string, fi *atbu.BackupFileInformation) *atbu.BackupFileInformation {
	if f.duplicate == nil {
		return nil
	}
	return f.duplicate(mode, algo, fi)
}

func (f *fakeLookup) SneakyCorruption(algo string, fi *atbu.BackupFileInformation) (bool, *atbu.BackupFileInformation) {
	if f.sneakyCorruption == nil {
		return false, nil
	}
	return f.sneakyCorruption(algo, fi)
}

func (f *fakeLookup) MostRecentForPath(path string) *atbu.BackupFileInformation {
	if f.mostRecentForPath == nil {
		return nil
	}
	return f.mostRecentForPath(path)
}

func (f *fakeLookup) KeyOf(fi *atbu.BackupFileInformation) (atbu.BackingFIKey, bool) {
	if f.keyOf == nil {
		return atbu.BackingFIKey{}, false
	}
	return f.keyOf(fi)
}
