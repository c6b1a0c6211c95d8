package portal

import (
	"fmt"

	"reeler/internal/services"
)

// ErrAuthentication reports that the portal rejected the configured
// credentials. It matches services.ErrAuthentication under errors.Is.
var ErrAuthentication = fmt.Errorf("portal login rejected: %w", services.ErrAuthentication)

// StructureError reports page markup that no longer matches what the parsers
// expect. It matches services.ErrStructure under errors.Is.
type StructureError struct {
	Page    string
	Message string
}

func (e *StructureError) Error() string {
	if e.Page == "" {
		return fmt.Sprintf("page structure error: %s", e.Message)
	}
	return fmt.Sprintf("page structure error on %s: %s", e.Page, e.Message)
}

func (e *StructureError) Unwrap() error {
	return services.ErrStructure
}

func structureErr(page, format string, args ...any) error {
	return &StructureError{Page: page, Message: fmt.Sprintf(format, args...)}
}
