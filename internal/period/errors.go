package period

import "fmt"

// FormatError reports malformed duration (or schedule field) text.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid period format %q: %s", e.Input, e.Reason)
}

// InvalidTypeError is returned by From for values that are neither text nor
// a time.Duration.
type InvalidTypeError struct {
	Value any
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("period should be duration text or a time.Duration, got %T", e.Value)
}
