//go:build linux || darwin || freebsd || netbsd || openbsd

package vm

import (
	"golang.org/x/sys/unix"
)

// mapMemory reserves an anonymous, private read/write mapping
func mapMemory(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func unmapMemory(memory []byte) error {
	return unix.Munmap(memory)
}
