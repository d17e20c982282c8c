package pipeline

import "fmt"

// rawPreviewLimit bounds how much raw LLM output an error carries.
const rawPreviewLimit = 500

// ParseError reports that LLM output was not valid JSON even after lenient
// boundary extraction.
type ParseError struct {
	Dimension Dimension
	Preview   string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse LLM output for dimension %s: %v", e.Dimension, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError reports that LLM output was valid JSON but did not match the
// expected shape.
type SchemaError struct {
	Dimension Dimension
	Reason    string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("LLM output for dimension %s violates expected schema: %s", e.Dimension, e.Reason)
}

// EmptyResultError reports that scenario extraction returned zero usable
// scenarios after trimming.
type EmptyResultError struct {
	Dimension Dimension
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("LLM returned no scenarios for dimension %s", e.Dimension)
}

func preview(raw string) string {
	if len(raw) > rawPreviewLimit {
		return raw[:rawPreviewLimit]
	}
	return raw
}
