//go:build darwin || freebsd || openbsd || netbsd || dragonfly

package sysmem

import "golang.org/x/sys/unix"

// hw.memsize is macOS; the BSDs expose hw.physmem, FreeBSD also hw.realmem.
var sysctlNames = []string{"hw.memsize", "hw.physmem", "hw.realmem"}

func probe() (uint64, bool) {
	for _, name := range sysctlNames {
		if n, err := unix.SysctlUint64(name); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}
