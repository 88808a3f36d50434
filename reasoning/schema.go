package reasoning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sashabaranov/go-openai/jsonschema"
)

type FieldType int

const (
	String FieldType = iota
	Bool
	StringList
	RecordList
)

func (t FieldType) String() string {
	switch t {
	case String:
		return "string"
	case Bool:
		return "bool"
	case StringList:
		return "list of string"
	case RecordList:
		return "list of record"
	default:
		return "unknown"
	}
}

// Field is one named output of a Schema. Description is what steers the backend
// towards the right content, it is sent verbatim with every request.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	// Fields describes the record items of a RecordList.
	Fields []Field
}

// Schema is the structured output contract of one reasoning call.
type Schema struct {
	Name        string
	Description string
	Fields      []Field
}

// Check reports schema definition mistakes: missing names or descriptions,
// duplicated fields and records without fields.
func (s Schema) Check() error {
	if s.Name == "" {
		return fmt.Errorf("schema has no name")
	}
	return checkFields(s.Name, s.Fields)
}

func checkFields(path string, fields []Field) error {
	if len(fields) == 0 {
		return fmt.Errorf("%s: no fields", path)
	}
	seen := map[string]bool{}
	for _, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("%s: field without name", path)
		}
		if seen[f.Name] {
			return fmt.Errorf("%s: duplicated field %s", path, f.Name)
		}
		seen[f.Name] = true
		if f.Description == "" {
			return fmt.Errorf("%s.%s: field without description", path, f.Name)
		}
		if f.Type == RecordList {
			if err := checkFields(path+"."+f.Name, f.Fields); err != nil {
				return err
			}
		}
	}
	return nil
}

// Definition renders the schema as a strict JSON schema object.
func (s Schema) Definition() jsonschema.Definition {
	def := objectDefinition(s.Fields)
	def.Description = s.Description
	return def
}

func objectDefinition(fields []Field) jsonschema.Definition {
	def := jsonschema.Definition{
		Type:                 jsonschema.Object,
		Properties:           make(map[string]jsonschema.Definition, len(fields)),
		Required:             make([]string, 0, len(fields)),
		AdditionalProperties: false,
	}
	for _, f := range fields {
		def.Properties[f.Name] = f.definition()
		def.Required = append(def.Required, f.Name)
	}
	return def
}

func (f Field) definition() jsonschema.Definition {
	switch f.Type {
	case Bool:
		return jsonschema.Definition{Type: jsonschema.Boolean, Description: f.Description}
	case StringList:
		return jsonschema.Definition{
			Type:        jsonschema.Array,
			Description: f.Description,
			Items:       &jsonschema.Definition{Type: jsonschema.String},
		}
	case RecordList:
		item := objectDefinition(f.Fields)
		return jsonschema.Definition{
			Type:        jsonschema.Array,
			Description: f.Description,
			Items:       &item,
		}
	default:
		return jsonschema.Definition{Type: jsonschema.String, Description: f.Description}
	}
}

// Validate checks that raw is a JSON object with exactly the schema's fields,
// each holding a value of the declared type.
func (s Schema) Validate(raw []byte) error {
	if err := validateObject(raw, s.Fields, s.Name); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	return nil
}

func validateObject(raw []byte, fields []Field, path string) error {
	if isNull(raw) {
		return fmt.Errorf("%s: null instead of object", path)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("%s: not an object: %v", path, err)
	}

	declared := make(map[string]bool, len(fields))
	for _, f := range fields {
		declared[f.Name] = true
		value, ok := obj[f.Name]
		if !ok {
			return fmt.Errorf("%s: missing field %s", path, f.Name)
		}
		if err := validateField(value, f, path+"."+f.Name); err != nil {
			return err
		}
	}

	var extra []string
	for name := range obj {
		if !declared[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) != 0 {
		sort.Strings(extra)
		return fmt.Errorf("%s: unexpected fields %v", path, extra)
	}
	return nil
}

func validateField(raw json.RawMessage, f Field, path string) error {
	if isNull(raw) {
		return fmt.Errorf("%s: null instead of %s", path, f.Type)
	}
	switch f.Type {
	case String:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("%s: want %s", path, f.Type)
		}
	case Bool:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("%s: want %s", path, f.Type)
		}
	case StringList:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("%s: want %s", path, f.Type)
		}
		for i, item := range items {
			var v string
			if isNull(item) || json.Unmarshal(item, &v) != nil {
				return fmt.Errorf("%s[%d]: want string", path, i)
			}
		}
	case RecordList:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("%s: want %s", path, f.Type)
		}
		for i, item := range items {
			if err := validateObject(item, f.Fields, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%s: unsupported field type %d", path, f.Type)
	}
	return nil
}

func isNull(raw []byte) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
