package validation

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// ErrorBody is the 400 payload for rejected requests: a summary plus the
// failed constraint per request field.
type ErrorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ErrorResponse converts a validator error into the standard payload. Field
// keys are json names (see New); the first failed constraint per field wins.
func ErrorResponse(err error) ErrorBody {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ErrorBody{Error: err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = fe.Tag()
		}
	}
	return ErrorBody{Error: "validation failed", Fields: fields}
}
