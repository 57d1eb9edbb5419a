package memory

import "errors"

// ErrStorage wraps any underlying database failure. Per spec.md §4.2 the
// repository surfaces storage errors unchanged and never retries.
var ErrStorage = errors.New("memory: storage error")
