package service

import (
	"fmt"
	"strings"
)

// RenderBody substitutes every literal occurrence of {key} in body with the
// string form of the corresponding data value. Keys absent from the body are
// ignored; tokens without a matching key stay verbatim. Substitution is
// strictly literal: key contents never acquire pattern semantics.
func RenderBody(body string, data map[string]any) string {
	for key, value := range data {
		body = strings.ReplaceAll(body, "{"+key+"}", fmt.Sprint(value))
	}
	return body
}
