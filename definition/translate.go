package definition

import (
	"fmt"
	"slices"
)

// Object is a pipeline object: a node of the workflow graph.
type Object struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Parameter declares a pipeline parameter.
type Parameter struct {
	ID         string  `json:"id"`
	Attributes []Field `json:"attributes"`
}

// ParameterValue assigns one value to a parameter. A parameter with several
// values has several ParameterValues.
type ParameterValue struct {
	ID          string `json:"id"`
	StringValue string `json:"stringValue"`
}

// Definition is a translated pipeline definition, ready to upload. Its JSON
// form matches the service's put-pipeline-definition request.
type Definition struct {
	Objects    []Object         `json:"pipelineObjects"`
	Parameters []Parameter      `json:"parameterObjects"`
	Values     []ParameterValue `json:"parameterValues"`
}

// Translate converts a parsed source document into the three collections the
// service expects. It does not modify src, so calling it again on the same
// source gives an identical result.
func Translate(src *Source) (*Definition, error) {
	if src == nil {
		return nil, malformed("no definition document")
	}

	var missing []string
	if src.Objects == nil {
		missing = append(missing, `missing "objects" section`)
	}
	if src.Parameters == nil {
		missing = append(missing, `missing "parameters" section`)
	}
	if src.Values == nil {
		missing = append(missing, `missing "values" section`)
	}
	if len(missing) > 0 {
		return nil, &MalformedDefinitionError{Problems: missing}
	}

	def := &Definition{
		Objects:    make([]Object, 0, len(src.Objects)),
		Parameters: make([]Parameter, 0, len(src.Parameters)),
		Values:     make([]ParameterValue, 0, src.Values.Len()),
	}

	for i, rec := range src.Objects {
		id, err := requiredText(rec, "id")
		if err != nil {
			return nil, malformed("objects[%d]: %v", i, err)
		}
		name, err := requiredText(rec, "name")
		if err != nil {
			return nil, malformed("objects[%d] (%s): %v", i, id, err)
		}
		def.Objects = append(def.Objects, Object{
			ID:     id,
			Name:   name,
			Fields: encodeRecord(rec, "id", "name"),
		})
	}

	for i, rec := range src.Parameters {
		id, err := requiredText(rec, "id")
		if err != nil {
			return nil, malformed("parameters[%d]: %v", i, err)
		}
		attrs := encodeRecord(rec, "id")
		for _, a := range attrs {
			// The service only accepts string parameter attributes.
			if a.IsRef {
				return nil, malformed("parameters[%d] (%s): attribute %q is a reference, but parameter attributes must be strings", i, id, a.Key)
			}
		}
		def.Parameters = append(def.Parameters, Parameter{
			ID:         id,
			Attributes: attrs,
		})
	}

	src.Values.Range(func(id string, v Value) error {
		def.Values = append(def.Values, parameterValues(id, v)...)
		return nil
	})

	return def, nil
}

func requiredText(rec *Record, key string) (string, error) {
	v, ok := rec.Get(key)
	if !ok {
		return "", fmt.Errorf("%q is required", key)
	}
	if v.Kind != ScalarKind {
		return "", fmt.Errorf("%q must be a string, got a %s", key, v.Kind)
	}
	return v.Text, nil
}

// encodeRecord encodes every key of rec except the reserved ones, in order.
func encodeRecord(rec *Record, reserved ...string) []Field {
	fields := make([]Field, 0, rec.Len())
	rec.Range(func(key string, v Value) error {
		if slices.Contains(reserved, key) {
			return nil
		}
		fields = append(fields, EncodeField(key, v)...)
		return nil
	})
	return fields
}

func parameterValues(id string, v Value) []ParameterValue {
	if v.Kind != ListKind {
		return []ParameterValue{{ID: id, StringValue: v.String()}}
	}
	values := make([]ParameterValue, 0, len(v.Items))
	for _, item := range v.Items {
		values = append(values, parameterValues(id, item)...)
	}
	return values
}
