package job

import (
	"fmt"
	"os"
)

// RedirectMode is the way a redirection target is opened.
type RedirectMode int

const (
	// RedirectRead opens the target for reading (<).
	RedirectRead RedirectMode = iota
	// RedirectWrite creates or truncates the target (>).
	RedirectWrite
	// RedirectAppend creates or appends to the target (>>).
	RedirectAppend
	// RedirectDup makes Fd a copy of DupFd (N>&M).
	RedirectDup
)

// Redirect is a single stream redirection.
type Redirect struct {
	// Fd is the redirected stream: 0, 1 or 2.
	Fd int
	// Mode sets how Path is opened.
	Mode RedirectMode
	// Path is the file to open, unused for RedirectDup.
	Path string
	// DupFd is the stream Fd becomes a copy of for RedirectDup.
	DupFd int

	// File is the opened target, set by Job.OpenRedirects. It stays nil for
	// dups and for targets that couldn't be opened.
	File *os.File
}

func (r Redirect) String() string {
	prefix := ""
	switch {
	case r.Mode == RedirectRead && r.Fd != 0:
		prefix = fmt.Sprint(r.Fd)
	case r.Mode != RedirectRead && r.Fd != 1:
		prefix = fmt.Sprint(r.Fd)
	}

	switch r.Mode {
	case RedirectRead:
		return prefix + "<" + r.Path
	case RedirectAppend:
		return prefix + ">>" + r.Path
	case RedirectDup:
		return fmt.Sprintf("%s>&%d", prefix, r.DupFd)
	default:
		return prefix + ">" + r.Path
	}
}

// Open opens the redirection target. It must not be called for RedirectDup.
func (r Redirect) Open() (*os.File, error) {
	switch r.Mode {
	case RedirectRead:
		return os.Open(r.Path)
	case RedirectWrite:
		return os.OpenFile(r.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	case RedirectAppend:
		return os.OpenFile(r.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	default:
		return nil, fmt.Errorf("%s: not a file redirection", r)
	}
}

// openRedirects opens each file redirection. Failures are passed to report
// and leave File nil so the stream is inherited.
func openRedirects(redirects []Redirect, report func(Redirect, error)) {
	for i := range redirects {
		r := &redirects[i]
		if r.Mode == RedirectDup || r.Fd < 0 || r.Fd > 2 {
			continue
		}

		fd, err := r.Open()
		if err != nil {
			if report != nil {
				report(*r, err)
			}
			continue
		}
		r.File = fd
	}
}

func closeRedirects(redirects []Redirect) error {
	var lastErr error
	for i := range redirects {
		if redirects[i].File == nil {
			continue
		}
		if err := redirects[i].File.Close(); err != nil {
			lastErr = err
		}
		redirects[i].File = nil
	}
	return lastErr
}

// ApplyRedirects rewrites stdio with redirects from left to right, so
// "2>&1 >f" leaves stderr where stdout pointed before f was opened. If fds
// is given only redirections of those streams are applied.
func ApplyRedirects(redirects []Redirect, stdio *[3]*os.File, fds ...int) {
	for _, r := range redirects {
		if r.Fd < 0 || r.Fd > 2 || !selected(r.Fd, fds) {
			continue
		}

		switch {
		case r.Mode == RedirectDup:
			if r.DupFd >= 0 && r.DupFd <= 2 {
				stdio[r.Fd] = stdio[r.DupFd]
			}
		case r.File != nil:
			stdio[r.Fd] = r.File
		}
	}
}

func selected(fd int, fds []int) bool {
	if len(fds) == 0 {
		return true
	}
	for _, want := range fds {
		if fd == want {
			return true
		}
	}
	return false
}
