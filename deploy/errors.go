package deploy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

// ConfigurationError reports a required setting that is missing.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing %s", e.Setting)
}

// AmbiguousNameError is returned when more than one pipeline already has the
// name being deployed. Nothing is changed remotely.
type AmbiguousNameError struct {
	Name string
	IDs  []string
}

func (e *AmbiguousNameError) Error() string {
	return fmt.Sprintf("found %d pipelines named %q (%s); delete the extras before deploying",
		len(e.IDs), e.Name, strings.Join(e.IDs, ", "))
}

// RemoteOperationError wraps a failed call to the pipeline service.
type RemoteOperationError struct {
	Op  string
	Err error
}

func (e *RemoteOperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteOperationError) Unwrap() error {
	return e.Err
}

// Code returns the service's error code, if the failure came with one.
func (e *RemoteOperationError) Code() string {
	var apiErr smithy.APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// ValidationFailure is returned when the service accepted the definition
// upload but found errors in it.
type ValidationFailure struct {
	PipelineID string
	Errors     []ValidationError
}

func (e *ValidationFailure) Error() string {
	lines := make([]string, 0, len(e.Errors))
	for _, v := range e.Errors {
		lines = append(lines, v.String())
	}
	return fmt.Sprintf("pipeline %s rejected the definition: %s", e.PipelineID, strings.Join(lines, "; "))
}
