package device

import (
	"bytes"
	"sync"
)

// console is a simulated VGA-text-mode backend: in the absence of a
// real framebuffer it accumulates output in memory so tests and the
// boot-and-hello scenario (spec.md §8) can assert on exact bytes.
type console struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *console) Init() error { return nil }

func (c *console) Write(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(buf)
}

// Captured returns everything written so far, for tests.
func (c *console) Captured() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buf.Bytes()...)
}

// Console exposes the concrete type for callers (tests, boot) that
// need Captured in addition to the Stdout interface.
type Console = console

// NewConsole constructs a simulated console backend directly.
func NewConsole() *Console { return &console{} }
