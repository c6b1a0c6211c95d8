package services

import (
	"errors"
	"fmt"
	"strings"
)

// Failure classes. Callers tag errors with one of these through Wrap and
// decide policy with errors.Is.
var (
	// ErrIO covers local filesystem and persistence failures.
	ErrIO = errors.New("io error")
	// ErrNetwork is a transport failure; acquisition waits for connectivity
	// and retries.
	ErrNetwork = errors.New("network error")
	// ErrNotFound means the addressed record, page, or segment does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means the record is not in a state that permits the change.
	ErrConflict = errors.New("conflict")
	// ErrStructure means the portal markup no longer matches what the scraper
	// expects. It ends the whole run.
	ErrStructure = errors.New("page structure error")
	// ErrAuthentication means the portal refused the session. It ends the
	// whole run.
	ErrAuthentication = errors.New("authentication failed")
	ErrValidation     = errors.New("validation error")
	// ErrExternalTool wraps encoder process failures.
	ErrExternalTool = errors.New("external tool error")
	ErrTimeout      = errors.New("timeout")
)

// Wrap tags err with marker (ErrIO when nil) and prefixes it with the
// non-empty parts of "stage: operation: message". err may be nil.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrIO
	}
	var parts []string
	for _, part := range []string{stage, operation, message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	detail := strings.Join(parts, ": ")
	if detail == "" {
		detail = "service failure"
	}
	if err == nil {
		return fmt.Errorf("%w: %s", marker, detail)
	}
	return fmt.Errorf("%w: %s: %w", marker, detail, err)
}

// IsFatal reports whether err must abort the whole run instead of only the
// job that produced it.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStructure) || errors.Is(err, ErrAuthentication)
}

// ClaimLost reports whether a worker's update was refused because the record
// was re-claimed or removed behind its back.
func ClaimLost(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound)
}
