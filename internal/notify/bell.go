// Package notify plays the send and receive cues on the terminal.
package notify

import (
	"io"
	"sync"
)

// Bell rings the terminal bell. Stderr is the usual target so the bell
// does not interleave with the UI's frames on stdout.
type Bell struct {
	mu  sync.Mutex
	out io.Writer

	// OnSend also rings when the user sends. Off by default; one ring per
	// exchange is enough in a terminal.
	OnSend bool
}

func NewBell(out io.Writer) *Bell {
	return &Bell{out: out}
}

func (b *Bell) PlaySend() {
	if b.OnSend {
		b.ring()
	}
}

func (b *Bell) PlayReceive() { b.ring() }

func (b *Bell) ring() {
	if b == nil || b.out == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, _ = io.WriteString(b.out, "\a")
}

// Silent satisfies the notifier interface without making noise.
type Silent struct{}

func (Silent) PlaySend()    {}
func (Silent) PlayReceive() {}
