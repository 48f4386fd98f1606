//go:build !linux

package mem

// newArena falls back to a heap-allocated slice on non-linux hosts,
// where an anonymous golang.org/x/sys/unix mmap isn't available.
func newArena(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func closeArena(buf []byte) error { return nil }
