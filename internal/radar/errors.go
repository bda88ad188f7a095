package radar

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnknownSource is returned when an ingest batch names an unregistered source.
	ErrUnknownSource = errors.New("unknown source")
	// ErrCookieMissing is returned when no usable cookie bag is stored for a platform.
	ErrCookieMissing = errors.New("cookie missing")
	// ErrTaskExists is returned when a task id is created twice.
	ErrTaskExists = errors.New("task already exists")
)
