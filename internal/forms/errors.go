// Package forms implements the validation and save contracts for entity,
// group, and metadata submissions. A form collects user input, Validate
// returns field-keyed messages, and only a cleanly validated form may
// Save.
package forms

import (
	"sort"
	"strings"
)

// NonField is the Errors key for problems not tied to a single field.
const NonField = "form"

// Errors maps field names to validation messages shown to the end user.
type Errors map[string][]string

// Add appends a message for field.
func (e Errors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// Merge appends every message to field.
func (e Errors) Merge(field string, msgs []string) {
	e[field] = append(e[field], msgs...)
}

// Any reports whether any validation message was recorded.
func (e Errors) Any() bool {
	return len(e) > 0
}

// Has reports whether field has at least one message.
func (e Errors) Has(field string) bool {
	return len(e[field]) > 0
}

// Error joins all messages, making Errors usable as an error for logs.
func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var parts []string
	for _, f := range fields {
		for _, msg := range e[f] {
			parts = append(parts, f+": "+msg)
		}
	}
	return strings.Join(parts, "; ")
}
