package vm

import (
	"os"
	"runtime/debug"
	"strconv"
)

// RunFast is Run with the garbage collector disabled for the duration of
// dispatch, restoring whatever GOGC was set to (or 100, its default)
// afterward. Memory is allocated up front during New (pools, store); the
// dispatch loop itself allocates little, so suspending the collector during
// the tight per-opcode loop avoids paying for collections a short-lived run
// does not need.
func (v *VM) RunFast() ([]Value, error) {
	key, ok := os.LookupEnv("GOGC")
	if !ok {
		key = "100"
	}
	gcPercent, err := strconv.ParseInt(key, 10, 32)
	if err != nil {
		gcPercent = 100
	}

	defer debug.SetGCPercent(int(gcPercent))
	debug.SetGCPercent(-1)

	return v.Run()
}
