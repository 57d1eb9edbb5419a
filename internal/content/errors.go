package content

import "errors"

// ErrNotFound is returned when a requested node, edge, or text is absent
// from the installed artifact.
var ErrNotFound = errors.New("content: not found")

// ErrUnavailable names a store that has not been initialized via Open;
// there is no implicit lazy init. No Store method returns it: a *Store
// exists only once Open or NewFromDB has built it.
var ErrUnavailable = errors.New("content: store unavailable")
