package router

import "fmt"

// ValidationError reports malformed command arguments. Usage is sent back
// to whoever issued the command.
type ValidationError struct {
	Command string
	Usage   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("router: invalid /%s: %s", e.Command, e.Usage)
}
