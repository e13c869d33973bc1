//go:build !linux

package thread

import "github.com/pkg/errors"

func Pin(core int) (func(), error) {
	return nil, errors.New("thread: CPU pinning is only supported on linux")
}
