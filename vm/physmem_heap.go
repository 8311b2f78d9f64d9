//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package vm

// mapMemory falls back to a heap allocation where anonymous mappings
// are not available through x/sys/unix
func mapMemory(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func unmapMemory(memory []byte) error {
	return nil
}
