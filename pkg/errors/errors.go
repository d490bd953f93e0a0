// Package errors defines the sentinel errors shared by the index, the
// evaluator and the command line. Callers match them with errors.Is.
package errors

import "errors"

var (
	// Configuration errors ⚙️
	ErrInvalidConfig          = errors.New("❌ invalid configuration")
	ErrAssetDirMissing        = errors.New("❌ asset directory does not exist")
	ErrEmptyIndex             = errors.New("❌ no files found under any asset directory")
	ErrInvalidLevelResolution = errors.New("❌ level resolution must be within [1, 100]")
	ErrStoreContentMismatch   = errors.New("❌ store directory has unexpected content")

	// Selection errors 🎲
	ErrSelectionExhausted = errors.New("❌ no existing file found after rebuilding the index")

	// Evaluation errors 📊
	ErrScoreOutOfRange   = errors.New("❌ score out of range")
	ErrDestinationExists = errors.New("❌ destination file already exists")

	// Lock errors 🔒
	ErrLocked = errors.New("❌ another piceval process holds the lock")
)
