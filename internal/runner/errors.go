package runner

import (
	"fmt"
	"runtime"
)

// HTTPError represents an HTTP response outside the success range. It
// captures the site that raised it so the failure classifier can fold it
// into the signature.
type HTTPError struct {
	StatusCode int
	Body       string
	site       string
}

// NewHTTPError builds an HTTPError recording the caller's file:line.
func NewHTTPError(statusCode int, body string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Body: body, site: caller(2)}
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// CallSite returns the file:line where the error was constructed.
func (e *HTTPError) CallSite() string { return e.site }

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	// Trim to the last two path segments to keep signatures stable
	// across checkouts.
	short := file
	slashes := 0
	for i := len(file) - 1; i >= 0; i-- {
		if file[i] == '/' {
			slashes++
			if slashes == 2 {
				short = file[i+1:]
				break
			}
		}
	}
	return fmt.Sprintf("%s:%d", short, line)
}
