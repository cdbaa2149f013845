package sebal

import "errors"

// ErrEndmemberUnavailable is returned when no usable cold or hot pixel can
// be found: an empty candidate pool, both endmembers on the same pixel, or
// a hot endmember no warmer than the cold one.
var ErrEndmemberUnavailable = errors.New("endmember unavailable")
