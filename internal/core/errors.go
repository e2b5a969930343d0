package core

// errors.go defines the loader's error taxonomy and its support codes.
//
// Error codes are grouped by category:
//
// # Record Errors (REC001-REC099)
//
//	REC001 - Malformed record: the row does not decode against its header,
//	         or an identifier or number in it cannot be parsed
//	         Action: Fix or remove the row in the source file
//
//	REC002 - Duplicate key: the row repeats an id accepted earlier in the file
//	         Action: Deduplicate the source file
//
// # Reference Errors (REF001-REF099)
//
//	REF001 - Dangling reference: the row points at a film or person that is
//	         not in any file processed before it
//	         Action: Check the dataset order and the parent file
//
// # Load Errors (LOAD001-LOAD099)
//
//	LOAD001 - Bulk copy failed: a chunk could not be copied into the store
//	          Action: Re-run with --resume set to the failed table
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Configuration error: unreadable input, missing header column,
//	         unknown table or unreachable store. Nothing was modified.
//	         Action: Fix the configuration and re-run
//
// Store errors that surface inside a bulk copy are additionally matched
// against known PostgreSQL messages (DB001-DB006) so the report names the
// underlying cause. Anything else maps to ERR000.

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedRecord   = errors.New("malformed record")
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrDanglingReference = errors.New("dangling reference")
	ErrBulkCopy          = errors.New("bulk copy failed")
	ErrConfiguration     = errors.New("configuration error")
)

// Support codes.
const (
	CodeMalformedRecord   = "REC001"
	CodeDuplicateKey      = "REC002"
	CodeDanglingReference = "REF001"
	CodeBulkCopy          = "LOAD001"
	CodeConfiguration     = "CFG001"
	CodeUnknown           = "ERR000"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	target error
	msg    UserMessage
}

// sentinelMessages is consulted first, with errors.Is.
var sentinelMessages = []sentinelMessage{
	{ErrMalformedRecord, UserMessage{
		Message: "Record does not match its header or contains an unparsable value",
		Action:  "Fix or remove the row in the source file",
		Code:    CodeMalformedRecord,
	}},
	{ErrDuplicateKey, UserMessage{
		Message: "Record repeats an id that was already accepted",
		Action:  "Deduplicate the source file",
		Code:    CodeDuplicateKey,
	}},
	{ErrDanglingReference, UserMessage{
		Message: "Record references an id that is not known yet",
		Action:  "Check the dataset order and the parent file",
		Code:    CodeDanglingReference,
	}},
	{ErrConfiguration, UserMessage{
		Message: "Run configuration is invalid",
		Action:  "Fix the configuration and re-run; nothing was modified",
		Code:    CodeConfiguration,
	}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// storePatterns refine bulk copy failures. Matched case-insensitively with
// strings.Contains; first match wins.
var storePatterns = []errorPattern{
	{"duplicate key", UserMessage{
		Message: "Rows already exist in the target table",
		Action:  "Re-run with --resume so the table is cleared first",
		Code:    "DB001",
	}},
	{"violates foreign key", UserMessage{
		Message: "Referenced rows are missing from the store",
		Action:  "Re-run with --resume set to an earlier table",
		Code:    "DB003",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Check DATABASE_URL and that the server is up",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Re-run with --resume set to the failed table",
		Code:    "DB005",
	}},
	{"timeout", UserMessage{
		Message: "Operation timed out",
		Action:  "Lower --parallelism or re-run later",
		Code:    "DB006",
	}},
}

var bulkCopyMessage = UserMessage{
	Message: "Bulk copy into the store failed",
	Action:  "Re-run with --resume set to the failed table",
	Code:    CodeBulkCopy,
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for the original error",
	Code:    CodeUnknown,
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	err := fmt.Errorf("%w: cast_link_0003.csv: %w", ErrBulkCopy, pgErr)
//	msg := MapError(err)
//	// msg.Code == "DB003" when pgErr is a foreign key violation
//	// msg.Code == "LOAD001" otherwise
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range storePatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	if errors.Is(err, ErrBulkCopy) {
		return bulkCopyMessage
	}
	return defaultMessage
}

// CodeFor returns the support code for err, or "" for nil.
func CodeFor(err error) string {
	return MapError(err).Code
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// RecordError explains why a normalizer rejected one record.
// It unwraps to one of the sentinel errors.
type RecordError struct {
	Field  string // Source column at fault
	Value  string // Offending raw value
	Reason string
	Err    error
}

func (e *RecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Reason)
	}
	return fmt.Sprintf("%v: %s %q: %s", e.Err, e.Field, e.Value, e.Reason)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Malformed rejects a record because field holds an unparsable value.
func Malformed(field, value, reason string) error {
	return &RecordError{Field: field, Value: value, Reason: reason, Err: ErrMalformedRecord}
}

// Dangling rejects a record because field references an unknown id.
func Dangling(field, value, reason string) error {
	return &RecordError{Field: field, Value: value, Reason: reason, Err: ErrDanglingReference}
}

// Duplicate rejects a record because its primary key was seen before.
func Duplicate(field, value string) error {
	return &RecordError{Field: field, Value: value, Reason: "id already accepted", Err: ErrDuplicateKey}
}

// MalformedRecordError is returned by RecordStream.Next when a line does not
// decode against the header. The stream stays usable.
type MalformedRecordError struct {
	Line  int
	Raw   string // Offending line, without its terminator
	Want  int    // Header field count
	Got   int    // Fields found, or 0 if the line could not be split at all
	Cause error  // Decoder error, if any
}

func (e *MalformedRecordError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("line %d: %v: %v", e.Line, ErrMalformedRecord, e.Cause)
	}
	return fmt.Sprintf("line %d: %v: got %d fields, want %d", e.Line, ErrMalformedRecord, e.Got, e.Want)
}

func (e *MalformedRecordError) Unwrap() error {
	return ErrMalformedRecord
}

// ConfigError wraps err as a configuration error.
func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
