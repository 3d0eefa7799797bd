// Package logger is a standardized event logging framework for the shell's
// job control engine.
//
// Events are stored as newline delimited JSON objects, each one a
// google.protobuf.Struct encoded with protojson so the log can be read back
// by any tool that understands the well known types.
package logger
