package router

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/ggoodman/rpc-router-go/internal/validation"
	"github.com/invopop/jsonschema"
)

// Issue is a structured validation failure reported in the
// additionalProperties of INVALID_REQUEST and INVALID_PARAMETER responses.
type Issue = validation.Issue

// Schema declares the expected shape of a method's parameters. It pairs a
// validator with the portable descriptor published in the catalog, and
// decodes validated parameters into P.
type Schema[P any] struct {
	validator *validation.Validator
	describe  func() *jsonschema.Schema
}

// SchemaOption configures SchemaFor.
type SchemaOption func(*schemaConfig)

type schemaConfig struct {
	description               string
	allowAdditionalProperties bool // default false (strict)
}

// WithDescription sets the description on the root of the reflected schema.
func WithDescription(desc string) SchemaOption {
	return func(c *schemaConfig) { c.description = desc }
}

// WithAdditionalProperties controls whether object parameters may carry
// fields that P does not declare. When false (default) the schema sets
// additionalProperties=false and such parameters are rejected.
func WithAdditionalProperties(allow bool) SchemaOption {
	return func(c *schemaConfig) { c.allowAdditionalProperties = allow }
}

// SchemaFor reflects P into a JSON Schema using invopop/jsonschema and
// compiles it into a validator. Struct tags drive the result: `json` names
// properties, fields without omitempty are required, and `jsonschema` tags
// add constraints such as minimum=0 or minLength=1.
//
// Definitions are inlined, so recursive types cannot be reflected and are
// rejected with an error. Describe them with SchemaFromJSON instead.
func SchemaFor[P any](opts ...SchemaOption) (*Schema[P], error) {
	cfg := schemaConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := checkAcyclic(reflect.TypeFor[P](), nil); err != nil {
		return nil, err
	}
	describe := func() *jsonschema.Schema {
		return reflectSchema[P](cfg)
	}
	doc, err := json.Marshal(describe())
	if err != nil {
		return nil, fmt.Errorf("marshal reflected schema: %w", err)
	}
	v, err := validation.Compile(doc)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %T: %w", *new(P), err)
	}
	return &Schema[P]{validator: v, describe: describe}, nil
}

// MustSchemaFor is like SchemaFor but panics on error.
func MustSchemaFor[P any](opts ...SchemaOption) *Schema[P] {
	s, err := SchemaFor[P](opts...)
	if err != nil {
		panic("router: " + err.Error())
	}
	return s
}

// SchemaFromJSON uses a handwritten JSON Schema document both to validate
// parameters and as the catalog descriptor. Validated parameters are decoded
// into P with encoding/json.
func SchemaFromJSON[P any](doc []byte) (*Schema[P], error) {
	v, err := validation.Compile(doc)
	if err != nil {
		return nil, err
	}
	var probe jsonschema.Schema
	if err := json.Unmarshal(doc, &probe); err != nil {
		return nil, fmt.Errorf("parse schema descriptor: %w", err)
	}
	src := append([]byte(nil), doc...)
	describe := func() *jsonschema.Schema {
		s := &jsonschema.Schema{}
		_ = json.Unmarshal(src, s)
		return s
	}
	return &Schema[P]{validator: v, describe: describe}, nil
}

// Parse validates raw against the schema and decodes it into P. Absent
// parameters are validated as JSON null. The returned issue list is non-empty
// exactly when parsing failed.
func (s *Schema[P]) Parse(raw json.RawMessage) (P, []Issue) {
	var p P
	if _, issues := s.validator.Validate(raw); len(issues) > 0 {
		return p, issues
	}
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, []Issue{{Code: validation.CodeDecodeFailed, Message: err.Error()}}
	}
	return p, nil
}

// Descriptor returns a freshly built JSON Schema descriptor for the
// parameters.
func (s *Schema[P]) Descriptor() *jsonschema.Schema {
	return s.describe()
}

// paramSchema is the type-erased view of a Schema held by a Route.
type paramSchema interface {
	Descriptor() *jsonschema.Schema
}

type customSchema interface {
	JSONSchema() *jsonschema.Schema
}

var customSchemaType = reflect.TypeFor[customSchema]()

// checkAcyclic reports an error if t refers back to itself through the
// fields the reflector would visit.
func checkAcyclic(t reflect.Type, path []reflect.Type) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Implements(customSchemaType) || reflect.PointerTo(t).Implements(customSchemaType) {
		return nil
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return checkAcyclic(t.Elem(), path)
	case reflect.Struct:
	default:
		return nil
	}
	for _, seen := range path {
		if seen == t {
			names := make([]string, 0, len(path)+1)
			for _, p := range path {
				names = append(names, p.String())
			}
			names = append(names, t.String())
			return fmt.Errorf("recursive parameter type: %s", strings.Join(names, " -> "))
		}
	}
	path = append(path, t)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() && !f.Anonymous {
			continue
		}
		if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag == "-" {
			continue
		}
		if err := checkAcyclic(f.Type, path); err != nil {
			return err
		}
	}
	return nil
}

func reflectSchema[P any](cfg schemaConfig) *jsonschema.Schema {
	r := &jsonschema.Reflector{
		Anonymous:                 true, // no $id derived from the Go package path
		DoNotReference:            true, // inline defs
		ExpandedStruct:            true, // put struct at root
		AllowAdditionalProperties: cfg.allowAdditionalProperties,
	}
	s := r.Reflect(new(P))
	if cfg.description != "" {
		s.Description = cfg.description
	}
	return s
}
