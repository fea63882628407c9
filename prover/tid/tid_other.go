//go:build !linux
// +build !linux

package tid

import "errors"

var ErrUnsupported = errors.New("not supported on this platform")

func Gettid() int {
	return -1
}

func SetName(string) error {
	return ErrUnsupported
}

func Pin(int) error {
	return ErrUnsupported
}

func AllowedCPUs() ([]int, error) {
	return nil, ErrUnsupported
}
