// Package validation compiles JSON Schema documents into validators that
// check raw JSON instances and report structured issues.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Issue codes.
const (
	// CodeInvalidJSON marks an instance that is not well-formed JSON.
	CodeInvalidJSON = "invalid_json"
	// CodeSchemaViolation marks an instance that does not satisfy the schema.
	CodeSchemaViolation = "schema_violation"
	// CodeDecodeFailed marks an instance that satisfied the schema but could
	// not be decoded into the target Go type.
	CodeDecodeFailed = "decode_failed"
)

// Issue is a single structured validation failure.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return i.Code + ": " + i.Message
}

// Validator checks JSON instances against a resolved schema. It is safe for
// concurrent use.
type Validator struct {
	resolved *jsonschema.Resolved
}

// Compile parses a JSON Schema document and resolves it into a Validator.
func Compile(doc []byte) (*Validator, error) {
	if len(doc) == 0 {
		return nil, fmt.Errorf("empty schema document")
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("invalid schema document: %w", err)
	}
	rs, err := s.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	return &Validator{resolved: rs}, nil
}

// MustCompile is like Compile but panics on error. It is meant for schemas
// known at init time.
func MustCompile(doc string) *Validator {
	v, err := Compile([]byte(doc))
	if err != nil {
		panic("validation: " + err.Error())
	}
	return v
}

// Validate decodes raw and checks it against the schema. An empty raw is
// treated as JSON null. On success the decoded instance is returned; on
// failure the returned issue list is never empty.
func (v *Validator) Validate(raw []byte) (any, []Issue) {
	var instance any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &instance); err != nil {
			return nil, []Issue{{Code: CodeInvalidJSON, Message: err.Error()}}
		}
	}
	if err := v.resolved.Validate(instance); err != nil {
		return nil, issuesFrom(err)
	}
	return instance, nil
}

// issuesFrom flattens joined errors into one issue each.
func issuesFrom(err error) []Issue {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []Issue
		for _, e := range joined.Unwrap() {
			if e == nil {
				continue
			}
			out = append(out, issuesFrom(e)...)
		}
		if len(out) > 0 {
			return out
		}
	}
	return []Issue{{Code: CodeSchemaViolation, Message: strings.TrimSpace(err.Error())}}
}
