// Package debugdump renders arbitrary Go values as deep, cycle-safe
// structured dumps for the CLI's -dr flag (via ember.DumpRuntimeError).
// The stdlib natives do not use it. It is a thin, pre-configured wrapper around
// davecgh/go-spew so every call site gets the same indentation,
// pointer-address suppression and cycle handling.
package debugdump

import (
	"io"

	"github.com/davecgh/go-spew/spew"
)

// config disables method dispatch (so a dumped Value never
// re-enters its own String() and recurses through the object graph
// it is trying to describe) and pointer addresses (noise in a
// reproducible dump), while keeping spew's built-in cycle detection
// on — this object model's closures, prototypes and coroutine frames
// are full of reference cycles that spew is built to survive.
var config = spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// Dump renders v as a multi-line structured string.
func Dump(v any) string {
	return config.Sdump(v)
}

// Fprint writes the same structured dump Dump returns to w (e.g. a
// log sink) instead of building a string.
func Fprint(w io.Writer, v any) {
	config.Fdump(w, v)
}
