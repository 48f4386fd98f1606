package device

import (
	"bytes"
	"os"
	"sync"

	"golang.org/x/text/encoding/charmap"
)

// jtag models a JTAG debug-mailbox console. Boards that expose this
// backend typically drive a VGA-text-style glyph table over the
// mailbox rather than raw ASCII, so output is recoded through
// CodePage437 before being emitted — matching the glyph table the
// corpus's bare-metal sibling (gopher-os) draws its console attributes
// from.
type jtag struct {
	mu sync.Mutex
}

func (j *jtag) Init() error { return nil }

func (j *jtag) Write(buf []byte) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	encoded, err := charmap.CodePage437.NewEncoder().Bytes(buf)
	if err != nil {
		// Not every byte sequence has an exact CP437 glyph; fall
		// back to emitting the original bytes rather than dropping
		// the line, since a partially-mistranslated log line still
		// beats a missing one on a debug mailbox.
		encoded = bytes.Clone(buf)
	}
	if _, err := os.Stdout.Write(encoded); err != nil {
		return 0, err
	}
	return len(buf), nil
}
