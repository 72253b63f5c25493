//go:build !linux && !windows
// +build !linux,!windows

package affinity

import "errors"

// setAffinityPlatform reports pinning as unavailable on every platform
// besides Linux and Windows; the worker falls back to running unpinned.
func setAffinityPlatform(cpuID int) error {
	return errors.New("not supported on this platform")
}
