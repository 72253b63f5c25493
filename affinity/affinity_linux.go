//go:build linux
// +build linux

package affinity

/*
#define _GNU_SOURCE
#include <sched.h>
#include <pthread.h>
#include <errno.h>

// go_setaffinity pins the calling pthread (the worker's locked OS thread) to
// one CPU.
int go_setaffinity(int cpu) {
	cpu_set_t set;
	CPU_ZERO(&set);
	CPU_SET(cpu, &set);
	return pthread_setaffinity_np(pthread_self(), sizeof(set), &set);
}
*/
import "C"
import "fmt"

// setAffinityPlatform pins the calling thread to cpuID via
// pthread_setaffinity_np, the mechanism a worker goroutine's locked OS
// thread actually runs on under Linux.
func setAffinityPlatform(cpuID int) error {
	ret := C.go_setaffinity(C.int(cpuID))
	if ret != 0 {
		return fmt.Errorf("pthread_setaffinity_np failed, code %d", ret)
	}
	return nil
}
