package logger

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// EventType identifies the kind of a logged event.
type EventType string

const (
	EventSessionStart    EventType = "session_start"
	EventJobLaunch       EventType = "job_launch"
	EventJobState        EventType = "job_state"
	EventProcessSignaled EventType = "process_signaled"
	EventExecFailure     EventType = "exec_failure"
	EventRedirectFailure EventType = "redirect_failure"
	EventReapAnomaly     EventType = "reap_anomaly"
	EventBuiltin         EventType = "builtin"
)

// Fields holds the payload of an event. Values must be representable as a
// google.protobuf.Value: strings, bools, numbers, nil, []interface{} and
// map[string]interface{}.
type Fields map[string]interface{}

// LogEntry is a single logged event.
type LogEntry struct {
	Timestamp time.Time
	SessionID string
	Type      EventType
	Fields    Fields
}

// GetString returns the string field with the given key or the empty string.
func (le *LogEntry) GetString(key string) string {
	s, _ := le.Fields[key].(string)
	return s
}

// GetInt returns the numeric field with the given key or zero. Numbers are
// decoded as float64 when read back from a log.
func (le *LogEntry) GetInt(key string) int {
	switch v := le.Fields[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// GetStrings returns the list field with the given key as strings.
func (le *LogEntry) GetStrings(key string) []string {
	var out []string
	switch v := le.Fields[key].(type) {
	case []string:
		out = append(out, v...)
	case []interface{}:
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
	}
	return out
}

// ToStruct converts the entry into its wire representation.
func (le *LogEntry) ToStruct() (*structpb.Struct, error) {
	fields := make(map[string]interface{}, len(le.Fields))
	for k, v := range le.Fields {
		// structpb doesn't accept typed slices.
		if strs, ok := v.([]string); ok {
			list := make([]interface{}, len(strs))
			for i, s := range strs {
				list[i] = s
			}
			v = list
		}
		fields[k] = v
	}

	return structpb.NewStruct(map[string]interface{}{
		"timestamp":  le.Timestamp.UTC().Format(time.RFC3339Nano),
		"session_id": le.SessionID,
		"type":       string(le.Type),
		"fields":     fields,
	})
}

// FromStruct fills the entry from its wire representation.
func (le *LogEntry) FromStruct(s *structpb.Struct) error {
	raw := s.AsMap()

	ts, _ := raw["timestamp"].(string)
	if ts != "" {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
		le.Timestamp = parsed
	}

	le.SessionID, _ = raw["session_id"].(string)
	eventType, _ := raw["type"].(string)
	le.Type = EventType(eventType)
	le.Fields, _ = raw["fields"].(map[string]interface{})
	if le.Fields == nil {
		le.Fields = make(Fields)
	}
	return nil
}

// LogRecorder is a callback that stores events in an external datastore.
type LogRecorder func(le *LogEntry) error

// Logger captures job control events so sessions can be inspected after the
// fact.
type Logger struct {
	Record LogRecorder
}

// NewJsonLinesLogRecorder creates a Logger that exports logs in newline
// delimited JSON object format.
func NewJsonLinesLogRecorder(w io.Writer) *Logger {
	return &Logger{
		Record: func(le *LogEntry) error {
			msg, err := le.ToStruct()
			if err != nil {
				return err
			}
			entry, err := protojson.Marshal(msg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(w, string(entry))
			return err
		},
	}
}

// NewNopLogger creates a Logger that drops every event.
func NewNopLogger() *Logger {
	return &Logger{
		Record: func(*LogEntry) error {
			return nil
		},
	}
}

func (l *Logger) recordEvent(sessionID string, eventType EventType, fields Fields) error {
	le := &LogEntry{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Type:      eventType,
		Fields:    fields,
	}

	return l.Record(le)
}

// NewSession creates a logger with attached session ID.
func (l *Logger) NewSession() *SessionLogger {
	return &SessionLogger{Logger: l, sessionID: fmt.Sprintf("%d", rand.Uint64())}
}

// Sessionless creates a logger without a session ID.
func (l *Logger) Sessionless() *SessionLogger {
	return &SessionLogger{Logger: l, sessionID: ""}
}

// SessionLogger logs messages with a shared session ID.
type SessionLogger struct {
	*Logger
	sessionID string
}

// SessionID returns the ID attached to every event.
func (l *SessionLogger) SessionID() string {
	return l.sessionID
}

func (l *SessionLogger) Record(eventType EventType, fields Fields) error {
	return l.recordEvent(l.sessionID, eventType, fields)
}
