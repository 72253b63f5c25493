//go:build windows
// +build windows

package affinity

import (
	"syscall"
)

// setAffinityPlatform pins the calling thread to cpuID via
// SetThreadAffinityMask, the only per-worker pinning primitive Windows
// exposes at this granularity.
func setAffinityPlatform(cpuID int) error {
	kernel32 := syscall.NewLazyDLL("kernel32.dll")
	procSetThreadAffinityMask := kernel32.NewProc("SetThreadAffinityMask")
	procGetCurrentThread := kernel32.NewProc("GetCurrentThread")
	hThread, _, _ := procGetCurrentThread.Call()
	mask := uintptr(1) << cpuID
	ret, _, err := procSetThreadAffinityMask.Call(hThread, mask)
	if ret == 0 {
		return err
	}
	return nil
}
