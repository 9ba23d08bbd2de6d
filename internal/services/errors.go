package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrCanceled      = errors.New("canceled")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails is the structured view of a wrapped error used for job logs.
type ErrorDetails struct {
	Kind    string
	Message string
	Hint    string
	Cause   string
}

// Details classifies err against the sentinel markers.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: "unknown", Message: err.Error()}
	switch {
	case errors.Is(err, ErrCanceled):
		details.Kind, details.Hint = "canceled", "job was canceled by a user"
	case errors.Is(err, ErrConfiguration):
		details.Kind, details.Hint = "configuration", "check vidintel config and environment"
	case errors.Is(err, ErrValidation):
		details.Kind, details.Hint = "validation", "provider output did not match the expected shape"
	case errors.Is(err, ErrNotFound):
		details.Kind, details.Hint = "not_found", "verify the video id exists"
	case errors.Is(err, ErrTimeout):
		details.Kind, details.Hint = "timeout", "raise the provider timeout or retry later"
	case errors.Is(err, ErrExternalTool):
		details.Kind, details.Hint = "external", "inspect the provider stderr in the job logs"
	case errors.Is(err, ErrTransient):
		details.Kind, details.Hint = "transient", "retry the job"
	}
	if cause := errors.Unwrap(err); cause != nil {
		details.Cause = rootCause(err).Error()
	}
	return details
}

func rootCause(err error) error {
	for {
		var next error
		switch wrapped := err.(type) {
		case interface{ Unwrap() []error }:
			errs := wrapped.Unwrap()
			if len(errs) == 0 {
				return err
			}
			next = errs[len(errs)-1]
		case interface{ Unwrap() error }:
			next = wrapped.Unwrap()
		}
		if next == nil {
			return err
		}
		err = next
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
