package claudecli

import (
	"strings"
	"sync"
)

// tailBuffer keeps the last N lines written to it.
type tailBuffer struct {
	mu       sync.Mutex
	lines    []string
	maxLines int
}

func newTailBuffer(maxLines int) *tailBuffer {
	return &tailBuffer{
		lines:    make([]string, 0, maxLines),
		maxLines: maxLines,
	}
}

func (b *tailBuffer) Write(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) >= b.maxLines {
		// drop oldest
		b.lines = b.lines[1:]
	}
	b.lines = append(b.lines, line)
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}
