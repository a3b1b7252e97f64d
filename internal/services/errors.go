package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrScan          = errors.New("scan error")
	ErrJob           = errors.New("job error")
	ErrExternalTool  = errors.New("external tool error")
	ErrLog           = errors.New("failure log error")
	ErrInterrupted   = errors.New("interrupted")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrJob
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureKind maps an error to the short label persisted in run history and
// the failure log.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInterrupted), errors.Is(err, context.Canceled):
		return "interrupted"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrScan):
		return "scan"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, ErrLog):
		return "log"
	default:
		return "job"
	}
}

// Chain flattens an error tree into one line per cause, outermost first.
// Branches of errors.Join are listed at the same depth; sentinel markers are
// omitted because they already lead the wrapping message.
func Chain(err error) []string {
	var out []string
	var walk func(error, int)
	walk = func(e error, depth int) {
		if e == nil || isMarker(e) {
			return
		}
		if branches, ok := joined(e); ok {
			for _, branch := range branches {
				walk(branch, depth)
			}
			return
		}
		out = append(out, strings.Repeat("  ", depth)+e.Error())
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner, depth+1)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap(), depth+1)
		}
	}
	walk(err, 0)
	return out
}

func isMarker(err error) bool {
	for _, marker := range []error{ErrConfiguration, ErrScan, ErrJob, ErrExternalTool, ErrLog, ErrInterrupted} {
		if err == marker {
			return true
		}
	}
	return false
}

// joined reports the branches of an errors.Join value, whose message is the
// newline-separated concatenation of its branches.
func joined(err error) ([]error, bool) {
	u, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return nil, false
	}
	branches := u.Unwrap()
	msgs := make([]string, 0, len(branches))
	for _, branch := range branches {
		if branch != nil {
			msgs = append(msgs, branch.Error())
		}
	}
	if len(msgs) == 0 || err.Error() != strings.Join(msgs, "\n") {
		return nil, false
	}
	return branches, true
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "conversion failure"
	}
	return strings.Join(parts, ": ")
}
