//go:build !linux && !darwin && !freebsd && !openbsd && !netbsd && !dragonfly

package sysmem

func probe() (uint64, bool) { return 0, false }
