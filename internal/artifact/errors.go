package artifact

import "errors"

var (
	// ErrStabilityViolation means the candidate artifact drops a ukey
	// present in the installed baseline (node ids are not compared).
	ErrStabilityViolation = errors.New("artifact: stability check failed")
	// ErrInvalid means the candidate file is not a well-formed content
	// artifact (missing schema_version, unreadable archive).
	ErrInvalid = errors.New("artifact: invalid artifact")
)
