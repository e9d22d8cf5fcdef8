package reactor

import "golang.org/x/sys/unix"

// setAffinity binds the calling OS thread to a single CPU.
func setAffinity(cpu int) error {
	var mask unix.CPUSet
	mask.Set(cpu)
	return unix.SchedSetaffinity(unix.Gettid(), &mask)
}
