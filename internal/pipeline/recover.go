package pipeline

import (
	"fmt"
	"runtime/debug"
)

// recoverAsError converts a worker panic into an ordinary error so one bad
// chunk cannot take down the whole process. The stack is preserved in the
// error for the log.
func recoverAsError(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}
