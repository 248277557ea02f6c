// Package repository defines error values that are reused across
// multiple repositories. These sentinels allow higher layers to
// distinguish failure scenarios without parsing error strings; the
// service layer translates them into its own taxonomy.
package repository

import "errors"

// ErrNoChange is returned when a guarded UPDATE matched no rows, for
// example decrementing available_copies that is already zero or
// incrementing it past total_copies. The caller decides whether that
// means a business conflict or an invariant breach.
var ErrNoChange = errors.New("no change")
