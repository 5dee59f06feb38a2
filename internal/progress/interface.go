package progress

import "io"

// UI defines the interface for progress reporting during a multi-file
// upload run. Concurrent uploads each get their own FileBarHandle so
// the caller never has to serialize progress updates itself.
type UI interface {
	// AddFileBar creates a new progress bar for a file upload.
	AddFileBar(index int, localPath string, size int64) FileBarHandle

	// Wait blocks until all progress bars complete.
	Wait()

	// Writer returns an io.Writer that safely outputs above the
	// progress bars. Returns mpb's writer in terminal mode, otherwise
	// os.Stderr.
	Writer() io.Writer

	// IsTerminal returns true if output is to a terminal (progress
	// bars are active).
	IsTerminal() bool
}

// FileBarHandle represents a handle to a single file's progress bar.
type FileBarHandle interface {
	// UpdateProgress updates the progress bar based on a fraction
	// (0.0 to 1.0) of the file's total size.
	UpdateProgress(fraction float64)

	// SetRetry updates the retry counter and visually marks the bar.
	SetRetry(count int)

	// Complete marks the upload as finished and prints a summary.
	// result is the server-reported location of the merged file, if any.
	Complete(result string, err error)

	// ResetStartTime resets the start time to now (used to exclude
	// fingerprinting time from the reported transfer rate).
	ResetStartTime()
}
