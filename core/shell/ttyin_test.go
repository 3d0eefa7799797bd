package shell

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readResult struct {
	data string
	err  error
}

func readAsync(in io.Reader) <-chan readResult {
	out := make(chan readResult, 1)
	go func() {
		buf := make([]byte, 64)
		n, err := in.Read(buf)
		out <- readResult{data: string(buf[:n]), err: err}
	}()
	return out
}

func TestPausableInput(t *testing.T) {
	r, w, err := os.Pipe()
	require.Nil(t, err)
	defer r.Close()
	defer w.Close()

	in := newPausableInput(r)
	pending := readAsync(in)

	// Pausing interrupts the blocked read without losing it.
	in.Pause()
	_, err = w.Write([]byte("job input"))
	require.Nil(t, err)

	select {
	case res := <-pending:
		t.Fatalf("read while paused: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}

	in.Resume()

	select {
	case res := <-pending:
		assert.Nil(t, res.err)
		assert.Equal(t, "job input", res.data)
	case <-time.After(5 * time.Second):
		t.Fatal("read not resumed")
	}
}

func TestPausableInput_Close(t *testing.T) {
	r, w, err := os.Pipe()
	require.Nil(t, err)
	defer r.Close()
	defer w.Close()

	in := newPausableInput(r)
	pending := readAsync(in)
	in.Close()

	select {
	case res := <-pending:
		assert.Equal(t, io.EOF, res.err)
	case <-time.After(5 * time.Second):
		t.Fatal("read not unblocked by Close")
	}
}
