package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var msg structpb.Struct
		if err := protojson.Unmarshal([]byte(line), &msg); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}

		var logEntry LogEntry
		if err := logEntry.FromStruct(&msg); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}

		handler(&logEntry)
	}
	return scanner.Err()
}

// NewBugReport creates an empty BugReport.
func NewBugReport() *BugReport {
	return &BugReport{
		ExecFailures:     NewPathCounter("command", "error"),
		RedirectFailures: NewPathCounter("redirect", "error"),
		ReapAnomalies:    NewPathCounter("error"),
	}
}

// BugReport pulls events that point to misconfigured environments or engine
// bugs.
type BugReport struct {
	LogEntries int `json:"log_entries"`

	ExecFailures     *PathCounter `json:"exec_failures"`
	RedirectFailures *PathCounter `json:"redirect_failures"`
	ReapAnomalies    *PathCounter `json:"reap_anomalies"`
}

func (r *BugReport) Update(le *LogEntry) {
	r.LogEntries++

	switch le.Type {
	case EventExecFailure:
		r.ExecFailures.Increment(le.GetString("command"), le.GetString("error"))
	case EventRedirectFailure:
		r.RedirectFailures.Increment(le.GetString("redirect"), le.GetString("error"))
	case EventReapAnomaly:
		r.ReapAnomalies.Increment(le.GetString("error"))
	}
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	Sessions       int        `json:"sessions"`
	InvalidEntries StrCounter `json:"unknown_log_entries,omitempty"`

	Launch   LaunchReport   `json:"launch_report"`
	JobState JobStateReport `json:"job_state_report"`
	Signal   SignalReport   `json:"signal_report"`
	Builtin  BuiltinReport  `json:"builtin_report"`

	ExecFailures     int `json:"exec_failures"`
	RedirectFailures int `json:"redirect_failures"`
	ReapAnomalies    int `json:"reap_anomalies"`
}

func (r *Report) Update(le *LogEntry) {
	r.LogEntries++

	switch le.Type {
	case EventSessionStart:
		r.Sessions++
	case EventJobLaunch:
		r.Launch.update(le)
	case EventJobState:
		r.JobState.update(le)
	case EventProcessSignaled:
		r.Signal.update(le)
	case EventBuiltin:
		r.Builtin.update(le)
	case EventExecFailure:
		r.ExecFailures++
	case EventRedirectFailure:
		r.RedirectFailures++
	case EventReapAnomaly:
		r.ReapAnomalies++
	default:
		r.InvalidEntries.Increment(string(le.Type))
	}
}

type LaunchReport struct {
	// Number of launched jobs.
	Count int `json:"count"`
	// Number of jobs launched in the background.
	Background int `json:"background"`
	// Name of the first command in each pipeline.
	CommandNames StrCounter `json:"command_names"`
	// Number of stages per pipeline.
	Stages StrCounter `json:"stages"`
}

func (r *LaunchReport) update(le *LogEntry) {
	r.Count++
	if b, _ := le.Fields["background"].(bool); b {
		r.Background++
	}
	if argv := le.GetStrings("argv"); len(argv) > 0 {
		r.CommandNames.Increment(argv[0])
	}
	r.Stages.Increment(fmt.Sprint(le.GetInt("stages")))
}

type JobStateReport struct {
	States     StrCounter `json:"states"`
	ExitStatus StrCounter `json:"exit_statuses"`
}

func (r *JobStateReport) update(le *LogEntry) {
	state := le.GetString("state")
	r.States.Increment(state)
	if state == "Done" {
		r.ExitStatus.Increment(fmt.Sprint(le.GetInt("status")))
	}
}

type SignalReport struct {
	Signals StrCounter `json:"signals"`
}

func (r *SignalReport) update(le *LogEntry) {
	r.Signals.Increment(le.GetString("signal"))
}

type BuiltinReport struct {
	Names StrCounter `json:"names"`
}

func (r *BuiltinReport) update(le *LogEntry) {
	r.Names.Increment(le.GetString("name"))
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for the given key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// MarshalJSON implemnts custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts the number of tuples seen.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// Get returns the count for the given tuple.
func (ctr *PathCounter) Get(vals ...string) int {
	return ctr.internal[toKey(vals...)]
}

// MarshalJSON implemnts custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	var out []Count
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
