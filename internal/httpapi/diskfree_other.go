//go:build !linux && !darwin

package httpapi

import "errors"

func diskFree(string) (uint64, error) {
	return 0, errors.New("disk free not supported on this platform")
}
