// Package kverr defines the error taxonomy shared by every flatkv
// subsystem. Every fallible operation returns one of these sentinels,
// wrapped with github.com/cockroachdb/errors so a caller can still
// errors.Is against the sentinel while the wrapped error keeps a
// stack trace for diagnostics.
package kverr

import "github.com/cockroachdb/errors"

// Sentinel kinds. NotFound is a normal return value, never logged or
// treated as exceptional; the rest indicate the store is in trouble.
var (
	// NotFound: key absent. Returned from get/find, and from rename
	// when the old key is absent.
	NotFound = errors.New("flatkv: not found")

	// AlreadyExists: put with overwrite=false on an existing key.
	AlreadyExists = errors.New("flatkv: already exists")

	// Corrupt: block contents fail a codec or invariant check.
	Corrupt = errors.New("flatkv: corrupt")

	// IoError: underlying read/write/seek failed.
	IoError = errors.New("flatkv: io error")

	// BadVersion: header major/minor or BLOCKSIZE/B mismatch.
	BadVersion = errors.New("flatkv: bad version")

	// NotOpen: operation attempted on a closed store.
	NotOpen = errors.New("flatkv: not open")

	// InvalidArgument: key too long, empty path, or similar.
	InvalidArgument = errors.New("flatkv: invalid argument")
)

// Wrap marks err as belonging to the given sentinel kind while keeping
// err's own message and stack as the cause.
func Wrap(kind error, err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), kind)
}

// Is reports whether err is (or wraps) the given sentinel kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
