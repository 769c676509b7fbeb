package core

// error_messages.go maps errors to user-facing messages with support codes.
//
// Codes by category:
//
//	AUTH001 - Username taken            AUTH002 - Wrong username or password
//	AUTH003 - Token expired             AUTH004 - Token invalid
//	AUTH005 - Invalid input
//	FILE001 - File too large            FILE002 - Not a usable CSV table
//	FILE003 - File not found            FILE004 - No file provided
//	FILE005 - Not a CSV upload
//	ACC001  - Access denied             ACC002  - User not found
//	ACC003  - Conflicting change
//	UPL002  - Too many uploads          UPL004  - Request cancelled
//	UPL005  - Request timed out
//	DB004   - Database unreachable      RATE001 - Rate limited
//	ERR000  - Anything else; check the logs for the technical error
//
// Rules are checked in order and the first match wins, so narrower errors
// come before the ones they wrap.

import (
	"context"
	"errors"
	"strings"

	"github.com/JonMunkholm/csvshare/internal/auth"
)

// Errors raised by transports before reaching the service.
var (
	ErrNoFile          = errors.New("no file provided")
	ErrNotCSV          = errors.New("upload is not a csv file")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrUnauthenticated = errors.New("authentication required")
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorRule struct {
	match func(error) bool
	msg   UserMessage
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

// contains matches the error text case-insensitively, for driver errors
// that carry no sentinel.
func contains(pattern string) func(error) bool {
	return func(err error) bool {
		return strings.Contains(strings.ToLower(err.Error()), pattern)
	}
}

var errorRules = []errorRule{
	// Identity
	{is(ErrDuplicateUsername), UserMessage{"This username is already taken", "Choose a different username", "AUTH001"}},
	{is(ErrInvalidCredentials), UserMessage{"Incorrect username or password", "Check your credentials and try again", "AUTH002"}},
	{is(auth.ErrTokenExpired), UserMessage{"Your session has expired", "Log in again to get a new token", "AUTH003"}},
	{is(auth.ErrInvalidToken), UserMessage{"Could not validate credentials", "Log in again to get a new token", "AUTH004"}},
	{is(ErrUnauthenticated), UserMessage{"Could not validate credentials", "Send a bearer token in the Authorization header", "AUTH004"}},
	{is(ErrInvalidInput), UserMessage{"The request is missing required values", "Check the request fields and try again", "AUTH005"}},

	// Files
	{is(ErrFileTooLarge), UserMessage{"File exceeds the maximum upload size", "Split the file into smaller chunks", "FILE001"}},
	{is(ErrFormatValidation), UserMessage{"File is not a valid CSV table", "Use comma or semicolon delimiters, unique headers and the same number of fields on every line", "FILE002"}},
	{is(ErrFileNotFound), UserMessage{"File not found", "Check the file id", "FILE003"}},
	{is(ErrNoFile), UserMessage{"No file was provided", "Attach a CSV file in the \"file\" form field", "FILE004"}},
	{is(ErrNotCSV), UserMessage{"Only CSV files can be uploaded", "Upload a file with a .csv extension or text/csv content type", "FILE005"}},

	// Access
	{is(ErrForbidden), UserMessage{"You do not have access to this file", "Ask the file owner to share it with you", "ACC001"}},
	{is(ErrUserNotFound), UserMessage{"User not found", "Check the username", "ACC002"}},
	{is(ErrNotFound), UserMessage{"Not found", "Check the identifier", "FILE003"}},
	{is(ErrReferentialIntegrity), UserMessage{"The change conflicts with a concurrent update", "Refresh and try again", "ACC003"}},

	// Upload process
	{is(ErrTooManyUploads), UserMessage{"System is busy processing other uploads", "Please wait a moment and try again", "UPL002"}},
	{is(context.Canceled), UserMessage{"Request was cancelled", "Please try again", "UPL004"}},
	{is(context.DeadlineExceeded), UserMessage{"Request timed out", "Try uploading a smaller file or check your connection", "UPL005"}},
	{is(ErrRateLimited), UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},

	// Driver errors without sentinels
	{contains("connection refused"), UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
}

// defaultMessage is returned when no rule matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message. Unknown errors map
// to ERR000. A nil error maps to the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	for _, r := range errorRules {
		if r.match(err) {
			return r.msg
		}
	}
	return defaultMessage
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
