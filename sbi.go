package atbu

import "time"

// SpecificBackupInformation (SBI) records one backup session against one
// storage definition (spec.md §3).
type SpecificBackupInformation struct {
	BackupBaseName     string     `json:"backup_base_name"`
	SpecificBackupName string     `json:"specific_backup_name"` // "<base>-YYYYMMDD-HHMMSS" in UTC, unique within a BID
	BackupStartTimeUTC time.Time  `json:"backup_start_time_utc"`
	BackupType         BackupType `json:"backup_type"`

	// ObjectNameHashSalt is 32 random bytes chosen once per session and
	// used to salt the path -> object-name mapping so object names do not
	// leak source paths (spec.md §6).
	ObjectNameHashSalt [32]byte `json:"object_name_hash_salt"`

	BackupFiles []*BackupFileInformation `json:"backup_files"`
}

// Stats summarizes a completed session for the end-of-session report
// (spec.md §7).
type Stats struct {
	TotalFiles          int
	UnchangedSkipped     int
	BackupOperations     int
	Errors               int
	BytesBackedUp        int64
	SuccessfulBackups     int
	// CompressionRatios maps file extension to a compression ratio.
	// Compute returns it empty; nothing in this module fills it, so the
	// end-of-session report carries no per-extension ratios.
	CompressionRatios map[string]float64
}

// Compute derives Stats from the session's BFIs.
func (s *SpecificBackupInformation) Compute() Stats {
	var st Stats
	st.CompressionRatios = map[string]float64{}
	st.TotalFiles = len(s.BackupFiles)
	for _, bfi := range s.BackupFiles {
		if bfi.IsUnchangedSinceLast {
			st.UnchangedSkipped++
			continue
		}
		st.BackupOperations++
		if !bfi.IsSuccessful {
			st.Errors++
			continue
		}
		st.SuccessfulBackups++
		st.BytesBackedUp += bfi.SizeInBytes
	}
	return st
}
