package storage

type errClosed struct{}

func (errClosed) Error() string { return "storage: engine is closed" }

// ErrClosed is returned by any operation attempted after Close.
var ErrClosed = errClosed{}

type errCorrupted struct{ reason string }

func (e errCorrupted) Error() string { return "storage: corrupted record: " + e.reason }

// ErrCorrupted wraps a checksum or decode failure encountered while loading
// persisted state.
func ErrCorrupted(reason string) error { return errCorrupted{reason: reason} }
