//go:build linux

package thread

import (
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Pin locks the calling goroutine to its OS thread and restricts that
// thread to one CPU core. The returned func undoes both.
func Pin(core int) (func(), error) {
	if core < 0 {
		return nil, errors.Errorf("thread: negative core %d", core)
	}

	runtime.LockOSThread()

	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		runtime.UnlockOSThread()
		return nil, errors.Wrap(err, "thread: get affinity")
	}
	if !prev.IsSet(core) {
		runtime.UnlockOSThread()
		return nil, errors.Errorf("thread: core %d is not in the allowed set", core)
	}

	var set unix.CPUSet
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		runtime.UnlockOSThread()
		return nil, errors.Wrapf(err, "thread: pin to core %d", core)
	}

	return func() {
		unix.SchedSetaffinity(0, &prev)
		runtime.UnlockOSThread()
	}, nil
}
