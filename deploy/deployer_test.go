package deploy

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/buildkite/datapipeline-deploy/definition"
	"github.com/buildkite/datapipeline-deploy/internal/ordered"
	"github.com/buildkite/datapipeline-deploy/logger"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	pipelines []Pipeline
	createdID string
	put       *PutResult
	putNil    bool

	listErr, deleteErr, createErr, putErr error

	calls   []string
	deleted []string
	created []CreateInput
	putIDs  []string
	putDefs []*definition.Definition
}

func (f *fakeGateway) ListPipelines(ctx context.Context) ([]Pipeline, error) {
	f.calls = append(f.calls, "list")
	return f.pipelines, f.listErr
}

func (f *fakeGateway) DeletePipeline(ctx context.Context, id string) error {
	f.calls = append(f.calls, "delete")
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeGateway) CreatePipeline(ctx context.Context, in CreateInput) (string, error) {
	f.calls = append(f.calls, "create")
	f.created = append(f.created, in)
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.createdID, nil
}

func (f *fakeGateway) PutDefinition(ctx context.Context, id string, def *definition.Definition) (*PutResult, error) {
	f.calls = append(f.calls, "put")
	f.putIDs = append(f.putIDs, id)
	f.putDefs = append(f.putDefs, def)
	if f.putErr != nil || f.putNil {
		return nil, f.putErr
	}
	if f.put == nil {
		return &PutResult{}, nil
	}
	return f.put, nil
}

func testSource() *definition.Source {
	values := new(ordered.Map[string, definition.Value])
	values.Set("myGreeting", definition.List(definition.Scalar("hello"), definition.Scalar("bonjour")))

	return &definition.Source{
		Objects: []*definition.Record{
			ordered.MapFromItems(
				ordered.Tuple[string, definition.Value]{Key: "id", Value: definition.Scalar("Default")},
				ordered.Tuple[string, definition.Value]{Key: "name", Value: definition.Scalar("Default")},
				ordered.Tuple[string, definition.Value]{Key: "schedule", Value: definition.Reference("Nightly")},
			),
		},
		Parameters: []*definition.Record{
			ordered.MapFromItems(
				ordered.Tuple[string, definition.Value]{Key: "id", Value: definition.Scalar("myGreeting")},
				ordered.Tuple[string, definition.Value]{Key: "type", Value: definition.Scalar("String")},
			),
		},
		Values: values,
	}
}

var testConfig = Config{
	Name:        "nightly-export",
	Description: "Exports orders every night",
	Tags:        "env=prod,team=infra",
}

func TestDeployCreatesWhenAbsent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	gw := &fakeGateway{
		pipelines: []Pipeline{{ID: "df-other", Name: "nightly-export-staging"}},
		createdID: "df-new",
	}
	l := logger.NewBuffer()

	result, err := NewDeployer(gw, l).Deploy(ctx, testConfig, testSource())
	require.NoError(t, err)

	assert.Equal(t, []string{"list", "create", "put"}, gw.calls)
	assert.Equal(t, &Result{PipelineID: "df-new"}, result)

	wantCreate := []CreateInput{{
		Name:        "nightly-export",
		UniqueID:    "nightly-export",
		Description: "Exports orders every night",
		Tags:        []Tag{{Key: "env", Value: "prod"}, {Key: "team", Value: "infra"}},
	}}
	if diff := cmp.Diff(gw.created, wantCreate); diff != "" {
		t.Errorf("CreatePipeline inputs diff (-got +want):\n%s", diff)
	}

	assert.Equal(t, []string{"df-new"}, gw.putIDs)
	wantDef, err := definition.Translate(testSource())
	require.NoError(t, err)
	if diff := cmp.Diff(gw.putDefs[0], wantDef); diff != "" {
		t.Errorf("uploaded definition diff (-got +want):\n%s", diff)
	}

	assert.Contains(t, l.Messages(), "[info] Uploading definition pipeline=nightly-export pipeline_id=df-new objects=1 parameters=1 values=2")
	assert.True(t, slices.ContainsFunc(l.Messages(), func(m string) bool {
		return strings.HasPrefix(m, "[info] Deployment successful pipeline=nightly-export pipeline_id=df-new duration=")
	}), "l.Messages() = %q, want a Deployment successful message with a duration", l.Messages())
}

func TestDeployReplacesExisting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	gw := &fakeGateway{
		pipelines: []Pipeline{
			{ID: "df-old", Name: "nightly-export"},
			{ID: "df-upper", Name: "Nightly-Export"},
		},
		createdID: "df-new",
	}

	result, err := NewDeployer(gw, logger.Discard).Deploy(ctx, testConfig, testSource())
	require.NoError(t, err)

	assert.Equal(t, []string{"list", "delete", "create", "put"}, gw.calls)
	assert.Equal(t, []string{"df-old"}, gw.deleted)
	assert.Equal(t, "df-old", result.DeletedPipelineID)
	assert.Equal(t, "df-new", result.PipelineID)
}

func TestDeployAmbiguousNameMutatesNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	gw := &fakeGateway{
		pipelines: []Pipeline{
			{ID: "df-1", Name: "nightly-export"},
			{ID: "df-2", Name: "other"},
			{ID: "df-3", Name: "nightly-export"},
		},
	}

	_, err := NewDeployer(gw, logger.Discard).Deploy(ctx, testConfig, testSource())

	var aerr *AmbiguousNameError
	require.True(t, errors.As(err, &aerr), "Deploy() error = %v, want *AmbiguousNameError", err)
	assert.Equal(t, []string{"df-1", "df-3"}, aerr.IDs)
	assert.Equal(t, []string{"list"}, gw.calls)
}

func TestDeployValidationFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	validationErrors := []ValidationError{
		{ID: "Default", Errors: []string{"Missing required field: 'role'"}},
		{ID: "Nightly", Errors: []string{"Invalid period", "Missing startAt"}},
	}
	gw := &fakeGateway{
		createdID: "df-new",
		put: &PutResult{
			Errored:          true,
			ValidationErrors: validationErrors,
		},
	}
	l := logger.NewBuffer()

	_, err := NewDeployer(gw, l).Deploy(ctx, testConfig, testSource())

	var verr *ValidationFailure
	require.True(t, errors.As(err, &verr), "Deploy() error = %v, want *ValidationFailure", err)
	assert.Equal(t, "df-new", verr.PipelineID)
	assert.Equal(t, validationErrors, verr.Errors)
	assert.Len(t, gw.putIDs, 1, "PutDefinition must be called exactly once")
	assert.Contains(t, l.Messages(), "[error] Validation error for Nightly: Invalid period, Missing startAt pipeline=nightly-export pipeline_id=df-new")
}

func TestDeployWarningsDoNotFail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	warnings := []ValidationWarning{{ID: "Default", Warnings: []string{"'pipelineLogUri' is not set"}}}
	gw := &fakeGateway{
		createdID: "df-new",
		put:       &PutResult{ValidationWarnings: warnings},
	}

	result, err := NewDeployer(gw, logger.Discard).Deploy(ctx, testConfig, testSource())
	require.NoError(t, err)
	assert.Equal(t, warnings, result.Warnings)
}

func TestDeployRemoteFailures(t *testing.T) {
	t.Parallel()

	accessDenied := &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "not allowed"}

	tests := []struct {
		desc      string
		gw        *fakeGateway
		wantCalls []string
		wantOp    string
	}{
		{
			desc:      "list fails",
			gw:        &fakeGateway{listErr: accessDenied},
			wantCalls: []string{"list"},
			wantOp:    "listing pipelines",
		},
		{
			desc: "delete fails",
			gw: &fakeGateway{
				pipelines: []Pipeline{{ID: "df-old", Name: "nightly-export"}},
				deleteErr: accessDenied,
			},
			wantCalls: []string{"list", "delete"},
			wantOp:    "deleting pipeline df-old",
		},
		{
			desc:      "create fails",
			gw:        &fakeGateway{createErr: accessDenied},
			wantCalls: []string{"list", "create"},
			wantOp:    "creating pipeline",
		},
		{
			desc:      "put fails",
			gw:        &fakeGateway{createdID: "df-new", putErr: accessDenied},
			wantCalls: []string{"list", "create", "put"},
			wantOp:    "putting pipeline definition",
		},
	}

	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			t.Parallel()

			_, err := NewDeployer(test.gw, logger.Discard).Deploy(context.Background(), testConfig, testSource())

			var rerr *RemoteOperationError
			require.True(t, errors.As(err, &rerr), "Deploy() error = %v, want *RemoteOperationError", err)
			assert.Equal(t, test.wantOp, rerr.Op)
			assert.Equal(t, "AccessDeniedException", rerr.Code())
			assert.Equal(t, test.wantCalls, test.gw.calls)
		})
	}
}

func TestDeployCheckedBeforeRemoteCalls(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("missing name", func(t *testing.T) {
		t.Parallel()

		gw := &fakeGateway{}
		_, err := NewDeployer(gw, logger.Discard).Deploy(ctx, Config{}, testSource())

		var cerr *ConfigurationError
		require.True(t, errors.As(err, &cerr), "Deploy() error = %v, want *ConfigurationError", err)
		assert.Empty(t, gw.calls)
	})

	t.Run("missing section", func(t *testing.T) {
		t.Parallel()

		gw := &fakeGateway{}
		src := testSource()
		src.Values = nil
		_, err := NewDeployer(gw, logger.Discard).Deploy(ctx, testConfig, src)

		var merr *definition.MalformedDefinitionError
		require.True(t, errors.As(err, &merr), "Deploy() error = %v, want *definition.MalformedDefinitionError", err)
		assert.Empty(t, gw.calls)
	})

	t.Run("reference parameter attribute", func(t *testing.T) {
		t.Parallel()

		gw := &fakeGateway{
			pipelines: []Pipeline{{ID: "df-old", Name: "nightly-export"}},
			createdID: "df-new",
		}
		src := testSource()
		src.Parameters = []*definition.Record{
			ordered.MapFromItems(
				ordered.Tuple[string, definition.Value]{Key: "id", Value: definition.Scalar("myP")},
				ordered.Tuple[string, definition.Value]{Key: "type", Value: definition.Reference("Default")},
			),
		}
		_, err := NewDeployer(gw, logger.Discard).Deploy(ctx, testConfig, src)

		var merr *definition.MalformedDefinitionError
		require.True(t, errors.As(err, &merr), "Deploy() error = %v, want *definition.MalformedDefinitionError", err)
		var rerr *RemoteOperationError
		assert.False(t, errors.As(err, &rerr), "Deploy() error = %v, want no *RemoteOperationError", err)
		assert.Empty(t, gw.calls)
		assert.Empty(t, gw.deleted)
	})
}

func TestDeployEmptyPutResult(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{createdID: "df-new", putNil: true}
	result, err := NewDeployer(gw, logger.Discard).Deploy(context.Background(), testConfig, testSource())
	require.NoError(t, err)

	assert.Equal(t, "df-new", result.PipelineID)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, []string{"list", "create", "put"}, gw.calls)
}
