package definition

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/buildkite/datapipeline-deploy/internal/ordered"
	"github.com/qri-io/jsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

var sourceSchema = jsonschema.Must(schemaJSON)

// Record is one entry of the objects or parameters section, in source key
// order.
type Record = ordered.Map[string, Value]

// Source is a parsed pipeline definition document. A nil section means the
// section was absent.
type Source struct {
	Objects    []*Record
	Parameters []*Record
	Values     *ordered.Map[string, Value]
}

// MalformedDefinitionError is returned when a definition document can't be
// parsed, or lacks the sections and ids the translation needs.
type MalformedDefinitionError struct {
	Problems []string
}

func (e *MalformedDefinitionError) Error() string {
	return "malformed pipeline definition: " + strings.Join(e.Problems, "; ")
}

func malformed(format string, v ...any) error {
	return &MalformedDefinitionError{Problems: []string{fmt.Sprintf(format, v...)}}
}

// ParseSource parses a JSON or YAML definition document and checks its shape
// against the definition schema. Key order is preserved throughout.
func ParseSource(ctx context.Context, b []byte) (*Source, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return nil, malformed("%v", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, malformed("document is empty")
	}

	if err := validateShape(ctx, &root); err != nil {
		return nil, err
	}

	sections := new(ordered.Map[string, *yaml.Node])
	if err := root.Content[0].Decode(sections); err != nil {
		return nil, malformed("%v", err)
	}

	src := &Source{
		Objects:    []*Record{},
		Parameters: []*Record{},
		Values:     new(ordered.Map[string, Value]),
	}
	if err := decodeSection(sections, "objects", &src.Objects); err != nil {
		return nil, err
	}
	if err := decodeSection(sections, "parameters", &src.Parameters); err != nil {
		return nil, err
	}
	if err := decodeSection(sections, "values", src.Values); err != nil {
		return nil, err
	}
	return src, nil
}

func decodeSection(sections *ordered.Map[string, *yaml.Node], name string, into any) error {
	n, ok := sections.Get(name)
	if !ok {
		return malformed("missing %q section", name)
	}
	if err := n.Decode(into); err != nil {
		return malformed("decoding %q section: %v", name, err)
	}
	return nil
}

// validateShape runs the document, converted to JSON, through the schema and
// reports every violation at once.
func validateShape(ctx context.Context, root *yaml.Node) error {
	generic, err := ordered.DecodeYAML(root)
	if err != nil {
		return malformed("%v", err)
	}
	doc, err := json.Marshal(generic)
	if err != nil {
		return malformed("converting document to JSON: %v", err)
	}

	keyErrs, err := sourceSchema.ValidateBytes(ctx, doc)
	if err != nil {
		return malformed("%v", err)
	}
	if len(keyErrs) == 0 {
		return nil
	}

	problems := make([]string, 0, len(keyErrs))
	for _, ke := range keyErrs {
		path := ke.PropertyPath
		if path == "" {
			path = "/"
		}
		problems = append(problems, fmt.Sprintf("%s: %s", path, ke.Message))
	}
	return &MalformedDefinitionError{Problems: problems}
}
