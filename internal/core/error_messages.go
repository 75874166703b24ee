package core

// error_messages.go defines user-friendly error messages with codes for
// support reference. When users encounter errors, they can quote the
// error code for faster diagnosis.
//
// Error codes are grouped by category:
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Unsupported type: Only CSV and XLSX files can be imported
//	          Action: Save your table as .csv or .xlsx and try again
//	          Patterns: "unsupported file type"
//
//	FILE002 - File too large: File exceeds the maximum size limit
//	          Action: Split the file into smaller parts
//	          Patterns: "file too large"
//
//	FILE003 - Empty file: The file has no data rows
//	          Action: Add at least one row below the header
//	          Patterns: "no data rows", "empty file"
//
//	FILE004 - Invalid CSV: The file could not be parsed as CSV
//	          Action: Check for unbalanced quotes or ragged rows
//	          Patterns: "parse csv"
//
//	FILE005 - Invalid workbook: The file could not be read as XLSX
//	          Action: Re-save the workbook and try again
//	          Patterns: "read xlsx"
//
//	FILE006 - No file: No file was selected
//	          Action: Choose a CSV or XLSX file to upload
//	          Patterns: "no file provided"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Missing columns: The header lacks required columns
//	         Action: Compare your header against the profile's columns
//	         Patterns: "missing required column"
//
//	VAL002 - Empty field: A required field has no value
//	         Action: Fill in the required columns for every row
//	         Patterns: "required field"
//
//	VAL003 - Invalid id: The id column holds something that is not a record id
//	         Action: Use the numeric ids from an export
//	         Patterns: "invalid record id"
//
//	VAL004 - No category: No category was selected for the run
//	         Action: Pick a category before starting
//	         Patterns: "no category selected"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Cancelled: The run was cancelled
//	         Action: Start a new run when ready
//	         Patterns: "run cancelled", "context canceled"
//
//	RUN002 - Busy: Too many runs in progress
//	         Action: Wait for a run to finish and try again
//	         Patterns: "too many concurrent runs"
//
//	RUN003 - Unknown run: Run not found
//	         Action: The run may have expired; start a new one
//	         Patterns: "run not found" (matched before "not found")
//
//	RUN004 - Unknown profile: The profile is not configured
//	         Action: Use one of the listed profiles
//	         Patterns: "unknown profile"
//
// # Server Errors (API001-API099)
//
//	API001 - Duplicate: A record with this title already exists
//	         Action: Rename the row or switch to patch mode
//	         Patterns: "already exists", "duplicate"
//
//	API002 - Unauthorized: The server rejected the API token
//	         Action: Check ELAB_API_TOKEN in your configuration
//	         Patterns: "api status 401", "unauthorized", "invalid api key"
//
//	API003 - Forbidden: The token lacks permission for this operation
//	         Action: Ask an administrator to extend the token's scope
//	         Patterns: "api status 403", "forbidden"
//
//	API004 - Not found: The record does not exist on the server
//	         Action: Export first to get current record ids
//	         Patterns: "api status 404", "not found"
//
//	API005 - Rate limited: The server is throttling requests
//	         Action: Lower ELAB_REQUESTS_PER_SECOND and retry
//	         Patterns: "api status 429", "rate limit"
//
//	API006 - Server error: The server failed to process the request
//	         Action: Try again in a few moments
//	         Patterns: "api status 5"
//
//	API007 - Timeout: The server took too long to answer
//	         Action: Retry; large categories are fetched in smaller pages automatically
//	         Patterns: "timeout", "deadline exceeded"
//
//	API008 - Unreachable: Unable to reach the server
//	         Action: Check ELAB_API_URL and your network connection
//	         Patterns: "connection refused", "no such host"
//
// # Export Errors (EXP001-EXP099)
//
//	EXP001 - Nothing to export: The selection holds no records
//	         Action: Pick a category that contains records
//	         Patterns: "nothing to export"
//
//	EXP002 - Write failed: The export file could not be written
//	         Action: Check the export directory and free disk space
//	         Patterns: "write export"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or check the logs
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns are listed
// before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages. Patterns are matched using strings.Contains and the first
// match wins, so more specific patterns come before general ones.
//
// To add a new error pattern:
//  1. Choose the appropriate category and code range
//  2. Add the pattern in the correct position (specific before general)
//  3. Update the reference comment at the top of this file
var errorPatterns = []errorPattern{
	// =========================================================================
	// File Errors (FILE001-FILE006)
	// Raised while opening and reading the input file.
	// =========================================================================
	{
		pattern: "unsupported file type",
		msg: UserMessage{
			Message: "Only CSV and XLSX files can be imported",
			Action:  "Save your table as .csv or .xlsx and try again",
			Code:    "FILE001",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller parts",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no data rows",
		msg: UserMessage{
			Message: "The file has no data rows",
			Action:  "Add at least one row below the header",
			Code:    "FILE003",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The file has no data rows",
			Action:  "Add at least one row below the header",
			Code:    "FILE003",
		},
	},
	{
		pattern: "parse csv",
		msg: UserMessage{
			Message: "The file could not be parsed as CSV",
			Action:  "Check for unbalanced quotes or ragged rows",
			Code:    "FILE004",
		},
	},
	{
		pattern: "read xlsx",
		msg: UserMessage{
			Message: "The file could not be read as an XLSX workbook",
			Action:  "Re-save the workbook and try again",
			Code:    "FILE005",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Choose a CSV or XLSX file to upload",
			Code:    "FILE006",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL004)
	// Raised while resolving the header and mapping rows.
	// =========================================================================
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "The header lacks required columns",
			Action:  "Compare your header against the profile's columns",
			Code:    "VAL001",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "A required field has no value",
			Action:  "Fill in the required columns for every row",
			Code:    "VAL002",
		},
	},
	{
		pattern: "invalid record id",
		msg: UserMessage{
			Message: "The id column holds something that is not a record id",
			Action:  "Use the numeric ids from an export",
			Code:    "VAL003",
		},
	},
	{
		pattern: "no category selected",
		msg: UserMessage{
			Message: "No category was selected for the run",
			Action:  "Pick a category before starting",
			Code:    "VAL004",
		},
	},

	// =========================================================================
	// Run Errors (RUN001-RUN004)
	// Raised by run tracking and concurrency control. These come before
	// the server errors so "run not found" wins over "not found".
	// =========================================================================
	{
		pattern: "run cancelled",
		msg: UserMessage{
			Message: "The run was cancelled",
			Action:  "Start a new run when ready",
			Code:    "RUN001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The run was cancelled",
			Action:  "Start a new run when ready",
			Code:    "RUN001",
		},
	},
	{
		pattern: "too many concurrent runs",
		msg: UserMessage{
			Message: "Too many runs in progress",
			Action:  "Wait for a run to finish and try again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "Run not found",
			Action:  "The run may have expired; start a new one",
			Code:    "RUN003",
		},
	},
	{
		pattern: "unknown profile",
		msg: UserMessage{
			Message: "The profile is not configured",
			Action:  "Use one of the listed profiles",
			Code:    "RUN004",
		},
	},

	// =========================================================================
	// Server Errors (API001-API008)
	// Raised when the eLabFTW server rejects a request.
	// =========================================================================
	{
		pattern: "already exists",
		msg: UserMessage{
			Message: "A record with this title already exists",
			Action:  "Rename the row or switch to patch mode",
			Code:    "API001",
		},
	},
	{
		pattern: "duplicate",
		msg: UserMessage{
			Message: "A record with this title already exists",
			Action:  "Rename the row or switch to patch mode",
			Code:    "API001",
		},
	},
	{
		pattern: "api status 401",
		msg: UserMessage{
			Message: "The server rejected the API token",
			Action:  "Check ELAB_API_TOKEN in your configuration",
			Code:    "API002",
		},
	},
	{
		pattern: "unauthorized",
		msg: UserMessage{
			Message: "The server rejected the API token",
			Action:  "Check ELAB_API_TOKEN in your configuration",
			Code:    "API002",
		},
	},
	{
		pattern: "invalid api key",
		msg: UserMessage{
			Message: "The server rejected the API token",
			Action:  "Check ELAB_API_TOKEN in your configuration",
			Code:    "API002",
		},
	},
	{
		pattern: "api status 403",
		msg: UserMessage{
			Message: "The token lacks permission for this operation",
			Action:  "Ask an administrator to extend the token's scope",
			Code:    "API003",
		},
	},
	{
		pattern: "forbidden",
		msg: UserMessage{
			Message: "The token lacks permission for this operation",
			Action:  "Ask an administrator to extend the token's scope",
			Code:    "API003",
		},
	},
	{
		pattern: "api status 404",
		msg: UserMessage{
			Message: "The record does not exist on the server",
			Action:  "Export first to get current record ids",
			Code:    "API004",
		},
	},
	{
		pattern: "not found",
		msg: UserMessage{
			Message: "The record does not exist on the server",
			Action:  "Export first to get current record ids",
			Code:    "API004",
		},
	},
	{
		pattern: "api status 429",
		msg: UserMessage{
			Message: "The server is throttling requests",
			Action:  "Lower ELAB_REQUESTS_PER_SECOND and retry",
			Code:    "API005",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "The server is throttling requests",
			Action:  "Lower ELAB_REQUESTS_PER_SECOND and retry",
			Code:    "API005",
		},
	},
	{
		pattern: "api status 5",
		msg: UserMessage{
			Message: "The server failed to process the request",
			Action:  "Try again in a few moments",
			Code:    "API006",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "The server took too long to answer",
			Action:  "Retry; large categories are fetched in smaller pages automatically",
			Code:    "API007",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The server took too long to answer",
			Action:  "Retry; large categories are fetched in smaller pages automatically",
			Code:    "API007",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach the server",
			Action:  "Check ELAB_API_URL and your network connection",
			Code:    "API008",
		},
	},
	{
		pattern: "no such host",
		msg: UserMessage{
			Message: "Unable to reach the server",
			Action:  "Check ELAB_API_URL and your network connection",
			Code:    "API008",
		},
	},

	// =========================================================================
	// Export Errors (EXP001-EXP002)
	// Raised while collecting and writing exports.
	// =========================================================================
	{
		pattern: "nothing to export",
		msg: UserMessage{
			Message: "The selection holds no records",
			Action:  "Pick a category that contains records",
			Code:    "EXP001",
		},
	},
	{
		pattern: "write export",
		msg: UserMessage{
			Message: "The export file could not be written",
			Action:  "Check the export directory and free disk space",
			Code:    "EXP002",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000). Support
// staff should check the logs for the original technical error when
// users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or check the logs",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	err := errors.New("api status 400: a resource with that title already exists")
//	msg := MapError(err)
//	// msg.Code == "API001"
//	// msg.Message == "A record with this title already exists"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
//
// Example output: "A record with this title already exists (Code: API001). Rename the row or switch to patch mode"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be
// shown to users as-is. Returns false for the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message. The
// original error is preserved for logging while the display layer shows
// the clean message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a
// user-friendly message. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
