package core

import (
	"errors"
	"fmt"
)

var (
	// ErrSnapshotAndManifestsBothSet is returned when a scan pins both a snapshot and a manifest list.
	ErrSnapshotAndManifestsBothSet = errors.New("Cannot set both snapshot and manifests.")
	// ErrSnapshotNotFound is returned when a snapshot id has no file on storage.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrTagNotFound is returned when a named tag does not exist.
	ErrTagNotFound = errors.New("tag not found")
	// ErrDirectoryNotEmpty is returned by FileIO when a non-recursive delete hits a non-empty directory.
	ErrDirectoryNotEmpty = errors.New("directory not empty")
)

// CorruptionError reports an entry sequence that cannot come from a valid commit history,
// e.g. adding a file twice.
type CorruptionError struct {
	Message  string
	FileName string
}

func (e *CorruptionError) Error() string {
	return e.Message
}

// NewDuplicateAddError builds the error for a file added twice in the same merge.
func NewDuplicateAddError(fileName string) *CorruptionError {
	return &CorruptionError{
		FileName: fileName,
		Message:  fmt.Sprintf("Trying to add file %s which is already added. Manifest might be corrupted.", fileName),
	}
}

// NewOrphanDeleteError builds the error for a delete whose add was never seen.
func NewOrphanDeleteError(fileName string) *CorruptionError {
	return &CorruptionError{
		FileName: fileName,
		Message:  fmt.Sprintf("Trying to delete file %s which is not previously added. Manifest might be corrupted.", fileName),
	}
}

// IsCorruptionError checks if an error is a CorruptionError.
func IsCorruptionError(err error) bool {
	var corruption *CorruptionError
	return errors.As(err, &corruption)
}

// BucketMismatchError is returned by a scan that observes a file written with a different
// bucket count than the table currently declares.
type BucketMismatchError struct {
	PartitionInfo   string
	TotalBuckets    int32
	ExpectedBuckets int32
}

func (e *BucketMismatchError) Error() string {
	return fmt.Sprintf("Try to write %s with a new bucket num %d, but the previous bucket num is %d. "+
		"Please switch to batch mode, and perform INSERT OVERWRITE to rescale current data layout first.",
		e.PartitionInfo, e.ExpectedBuckets, e.TotalBuckets)
}

// IsBucketMismatchError checks if an error is a BucketMismatchError.
func IsBucketMismatchError(err error) bool {
	var mismatch *BucketMismatchError
	return errors.As(err, &mismatch)
}

// ScanModeError is returned when an incremental scan meets a snapshot it cannot read.
type ScanModeError struct {
	CommitKind string
}

func (e *ScanModeError) Error() string {
	return fmt.Sprintf("Incremental scan does not accept %s snapshot", e.CommitKind)
}

// IsScanModeError checks if an error is a ScanModeError.
func IsScanModeError(err error) bool {
	var modeErr *ScanModeError
	return errors.As(err, &modeErr)
}

// FilteredBucketError is returned when a caller pins a partition/bucket that the manifest cache
// filter already rejects.
type FilteredBucketError struct {
	Partition BinaryRow
	Bucket    int32
}

func (e *FilteredBucketError) Error() string {
	return fmt.Sprintf("The partition %s and bucket %d is filtered!", e.Partition, e.Bucket)
}

// ValidationError is a custom error type for invalid arguments or configuration values.
type ValidationError struct {
	Message string
	Field   string
	Value   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s '%s': %s", e.Field, e.Value, e.Message)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}
