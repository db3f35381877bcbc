package quota

import (
	"errors"
	"fmt"
	"strings"

	"github.com/panelstack/quotad/pkg/model"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrServerNotFound = errors.New("server not found")
)

// FieldError is one rejected field of a proposed update.
type FieldError struct {
	Field   model.ResourceType `json:"field"`
	Message string             `json:"message"`
}

// ValidationErrors aggregates every offending field of one request; a caller
// gets the full list in a single rejection instead of one error per round
// trip.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationErrors) add(field model.ResourceType, format string, args ...interface{}) {
	*e = append(*e, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// OverflowGateError rejects a server edit because the user is already over
// quota somewhere. The report names the offending fields.
type OverflowGateError struct {
	Report OverflowReport
}

func (e *OverflowGateError) Error() string {
	return fmt.Sprintf("user is over quota on %d resource(s); reduce usage or raise limits before editing", len(e.Report.Entries))
}
