package sdk

import (
	"errors"
	"fmt"
)

var (
	// ErrNoContent is returned when a tool result contains no content items.
	ErrNoContent = errors.New("sitepulse: empty tool result")
	// ErrIncompatible is returned by Compatible when the server schema major
	// version differs from SupportedSchemaMajor.
	ErrIncompatible = errors.New("sitepulse: incompatible schema")
)

// ToolError is returned when a tool call returns an error result. Message is
// the server's user-facing explanation.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("sitepulse: tool %s: %s", e.Tool, e.Message)
}
