package job

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoSuchJob is returned when a job spec doesn't match a registered job.
var ErrNoSuchJob = errors.New("no such job")

// Table is the ordered list of the session's live jobs.
//
// The table tracks two designators: the current job (+) which is the most
// recently launched or foregrounded job and the previous job (-) which held
// current right before it. Both are job IDs, zero means unset.
type Table struct {
	jobs     []*Job
	current  int
	previous int
	clock    uint64
}

// NewTable creates an empty job table.
func NewTable() *Table {
	return &Table{}
}

// Len returns the number of registered jobs.
func (t *Table) Len() int {
	return len(t.jobs)
}

// Jobs returns the registered jobs in insertion order.
func (t *Table) Jobs() []*Job {
	out := make([]*Job, len(t.jobs))
	copy(out, t.jobs)
	return out
}

// Get looks up a job by ID.
func (t *Table) Get(id int) (*Job, bool) {
	for _, j := range t.jobs {
		if j.ID == id {
			return j, true
		}
	}
	return nil, false
}

// Add registers a job, assigns it the lowest free ID and makes it the current
// job.
func (t *Table) Add(j *Job) int {
	j.ID = t.nextID()
	t.jobs = append(t.jobs, j)
	t.Touch(j)
	return j.ID
}

func (t *Table) nextID() int {
	used := make(map[int]bool, len(t.jobs))
	for _, j := range t.jobs {
		used[j.ID] = true
	}

	id := 1
	for used[id] {
		id++
	}
	return id
}

// Touch makes j the current job, the old current job becomes the previous
// one. It's called when a job is launched and when it's moved with fg or bg.
func (t *Table) Touch(j *Job) {
	t.clock++
	j.rank = t.clock

	switch {
	case t.current == 0:
		t.previous = j.ID
	case t.current != j.ID:
		t.previous = t.current
	}
	t.current = j.ID
}

// Current returns the current (+) job or nil.
func (t *Table) Current() *Job {
	j, _ := t.Get(t.current)
	return j
}

// Previous returns the previous (-) job or nil.
func (t *Table) Previous() *Job {
	j, _ := t.Get(t.previous)
	return j
}

// Designator returns '+' for the current job, '-' for the previous job and a
// space otherwise. A job that's both current and previous is shown as '+'.
func (t *Table) Designator(j *Job) rune {
	switch j.ID {
	case t.current:
		return '+'
	case t.previous:
		return '-'
	default:
		return ' '
	}
}

// Remove unregisters the job with the given ID, keeping the order of the
// remaining jobs. It returns false if no job has the ID.
func (t *Table) Remove(id int) bool {
	idx := -1
	for i, j := range t.jobs {
		if j.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	t.jobs = append(t.jobs[:idx], t.jobs[idx+1:]...)

	if len(t.jobs) == 0 {
		t.current, t.previous = 0, 0
		return true
	}

	if id == t.current {
		if _, ok := t.Get(t.previous); ok && t.previous != id {
			t.current = t.previous
		} else {
			t.current = t.mostRecent(0).ID
		}
	}
	if id == t.previous || t.previous == t.current {
		if next := t.mostRecent(t.current); next != nil {
			t.previous = next.ID
		} else {
			t.previous = t.current
		}
	}
	return true
}

// mostRecent returns the job with the highest recency rank, skipping the job
// with ID exclude.
func (t *Table) mostRecent(exclude int) *Job {
	var best *Job
	for _, j := range t.jobs {
		if j.ID == exclude {
			continue
		}
		if best == nil || j.rank > best.rank {
			best = j
		}
	}
	return best
}

// FindProcess maps a pid to its job and process across every registered job.
func (t *Table) FindProcess(pid int) (*Job, *Process) {
	for _, j := range t.jobs {
		if p := j.FindProcess(pid); p != nil {
			return j, p
		}
	}
	return nil, nil
}

// RemoveCompleted unregisters every completed job in order, calling onRemove
// for each one before it's removed.
func (t *Table) RemoveCompleted(onRemove func(*Job)) {
	for _, j := range t.Jobs() {
		if !j.IsCompleted() {
			continue
		}
		if onRemove != nil {
			onRemove(j)
		}
		t.Remove(j.ID)
	}
}

// Resolve looks up a job spec: the empty string, "%", "%%" and "%+" are the
// current job, "%-" the previous job, "%N" or "N" job N and "%name" the job
// whose command starts with name.
func (t *Table) Resolve(spec string) (*Job, error) {
	var found *Job

	switch spec {
	case "", "%", "%%", "%+":
		found = t.Current()
	case "%-":
		found = t.Previous()
	default:
		trimmed := strings.TrimPrefix(spec, "%")
		if id, err := strconv.Atoi(trimmed); err == nil {
			found, _ = t.Get(id)
			break
		}

		if trimmed == spec {
			break
		}
		for _, j := range t.jobs {
			if strings.HasPrefix(j.Command, trimmed) {
				if found != nil {
					return nil, fmt.Errorf("%s: ambiguous job spec", spec)
				}
				found = j
			}
		}
	}

	if found == nil {
		if spec == "" {
			spec = "current"
		}
		return nil, fmt.Errorf("%s: %w", spec, ErrNoSuchJob)
	}
	return found, nil
}
