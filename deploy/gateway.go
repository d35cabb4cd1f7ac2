package deploy

import (
	"context"
	"fmt"
	"strings"

	"github.com/buildkite/datapipeline-deploy/definition"
)

// Pipeline identifies a pipeline registered with the service.
type Pipeline struct {
	ID   string
	Name string
}

// Tag is a key/value tag attached to a pipeline when it is created.
type Tag struct {
	Key   string
	Value string
}

// CreateInput describes a pipeline to create.
type CreateInput struct {
	Name string

	// UniqueID is the idempotency token the service uses to spot duplicate
	// create requests.
	UniqueID    string
	Description string
	Tags        []Tag
}

// ValidationError is the list of problems the service found with one object
// of an uploaded definition.
type ValidationError struct {
	ID     string
	Errors []string
}

func (v ValidationError) String() string {
	return fmt.Sprintf("%s: %s", v.ID, strings.Join(v.Errors, ", "))
}

// ValidationWarning is like ValidationError but doesn't fail the upload.
type ValidationWarning struct {
	ID       string
	Warnings []string
}

func (v ValidationWarning) String() string {
	return fmt.Sprintf("%s: %s", v.ID, strings.Join(v.Warnings, ", "))
}

// PutResult is the service's verdict on an uploaded definition.
type PutResult struct {
	Errored            bool
	ValidationErrors   []ValidationError
	ValidationWarnings []ValidationWarning
}

// Gateway is the remote pipeline service. Each method is one remote call (or
// one paginated listing); implementations must not retry.
type Gateway interface {
	ListPipelines(ctx context.Context) ([]Pipeline, error)
	DeletePipeline(ctx context.Context, id string) error
	CreatePipeline(ctx context.Context, in CreateInput) (id string, err error)
	// PutDefinition may return a nil PutResult, which means the definition
	// was accepted without warnings.
	PutDefinition(ctx context.Context, id string, def *definition.Definition) (*PutResult, error)
}
