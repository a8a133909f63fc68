package tools

import "fmt"

// ErrUnknownTool is returned by Execute when the model asks for a tool
// that is not in the catalog.
type ErrUnknownTool struct {
	Name string
}

func (e *ErrUnknownTool) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}
