package shell

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"
)

// pausableInput is the line editor's view of the terminal. The editor reads
// continuously from a background goroutine, so reads are held while a job
// owns the terminal or they'd steal the job's input.
type pausableInput struct {
	f *os.File

	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
	closed bool
}

func newPausableInput(f *os.File) *pausableInput {
	in := &pausableInput{f: f}
	in.cond = sync.NewCond(&in.mu)
	return in
}

// wait blocks while the input is paused and reports whether it was closed.
func (in *pausableInput) wait() bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	for in.paused && !in.closed {
		in.cond.Wait()
	}
	return in.closed
}

func (in *pausableInput) Read(p []byte) (int, error) {
	for {
		if in.wait() {
			return 0, io.EOF
		}

		n, err := in.f.Read(p)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			// Interrupted by Pause.
			continue
		}
		return n, err
	}
}

// Pause holds reads until Resume is called. A read blocked on the terminal
// is interrupted if the file supports deadlines.
func (in *pausableInput) Pause() {
	in.mu.Lock()
	in.paused = true
	in.mu.Unlock()

	in.f.SetReadDeadline(time.Now())
}

// Resume lets reads through again.
func (in *pausableInput) Resume() {
	in.f.SetReadDeadline(time.Time{})

	in.mu.Lock()
	in.paused = false
	in.cond.Broadcast()
	in.mu.Unlock()
}

// Close unblocks pending reads, the underlying file is left open.
func (in *pausableInput) Close() error {
	in.mu.Lock()
	in.closed = true
	in.cond.Broadcast()
	in.mu.Unlock()

	in.f.SetReadDeadline(time.Now())
	return nil
}
