package hal

import "errors"

// ErrBusy is returned by Register when a vector already carries a
// non-default handler (spec.md §4.2).
var ErrBusy = errors.New("hal: handler already registered")

// ErrBadVector is returned for an out-of-range vector or IRQ number.
var ErrBadVector = errors.New("hal: vector out of range")
