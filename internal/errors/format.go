package errors

import (
	"fmt"
	"strings"
)

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	me, ok := As(err)
	if !ok {
		// Wrap standard error
		me = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Error: %s\n", me.Message))
	if me.Cause != nil && me.Cause.Error() != me.Message {
		sb.WriteString(fmt.Sprintf("  Cause: %s\n", me.Cause.Error()))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", me.Code))

	return sb.String()
}

// Problem is the body of an HTTP error response:
// {"error":{"status":400,"title":"...","detail":"..."}}.
type Problem struct {
	Error ProblemDetail `json:"error"`
}

// ProblemDetail carries the status, title and optional detail of a failure.
type ProblemDetail struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// ToProblem converts err into an HTTP error body.
// Validation and not-found errors carry no detail; engine failures carry the
// error code and underlying cause.
func ToProblem(err error) Problem {
	status := HTTPStatus(err)

	me, ok := As(err)
	if !ok {
		me = Wrap(ErrCodeInternal, err)
	}

	p := Problem{Error: ProblemDetail{Status: status, Title: me.Message}}
	if me.Category == CategoryEngine || me.Category == CategoryConfig {
		detail := me.Code
		if me.Cause != nil {
			detail += ": " + me.Cause.Error()
		}
		p.Error.Detail = detail
	}
	return p
}

// FormatForLog formats an error for structured logging.
// Returns key-value pairs suitable for slog attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	me, ok := As(err)
	if !ok {
		return map[string]any{
			"error": err.Error(),
		}
	}

	result := map[string]any{
		"error_code": me.Code,
		"message":    me.Message,
		"category":   string(me.Category),
		"severity":   string(me.Severity),
	}

	if me.Cause != nil {
		result["cause"] = me.Cause.Error()
	}

	for k, v := range me.Details {
		result["detail_"+k] = v
	}

	return result
}
