// Package assert halts the process on broken invariants. Unlike debug-only
// assertions these checks are always compiled in: a failed check means a bug in
// the caller, never bad input.
package assert

import (
	"fmt"
	"runtime/debug"
)

func Assert(condition bool) {
	if !condition {
		panic("assertion failed:\n" + string(debug.Stack()))
	}
}

func Assertf(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assertion failed: "+format+"\n", args...) + string(debug.Stack()))
	}
}
