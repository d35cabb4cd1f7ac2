package clicommand

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/buildkite/datapipeline-deploy/definition"
	"github.com/buildkite/datapipeline-deploy/deploy"
	"github.com/buildkite/datapipeline-deploy/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

const testDefinition = `{
  "objects": [
    {"id": "A", "name": "n", "schedule": {"ref": "S"}, "tags": ["x", "y"]}
  ],
  "parameters": [
    {"id": "p1", "type": "String"}
  ],
  "values": {"p1": ["a", "b"], "p2": "c && d"}
}`

type mapFetcher map[string]string

func (m mapFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	b, ok := m[location]
	if !ok {
		return nil, fmt.Errorf("reading pipeline definition %q: %w", location, os.ErrNotExist)
	}
	return []byte(b), nil
}

type fakeGateway struct {
	pipelines []deploy.Pipeline
	listErr   error
	calls     []string
}

func (f *fakeGateway) ListPipelines(ctx context.Context) ([]deploy.Pipeline, error) {
	f.calls = append(f.calls, "list")
	return f.pipelines, f.listErr
}

func (f *fakeGateway) DeletePipeline(ctx context.Context, id string) error {
	f.calls = append(f.calls, "delete")
	return nil
}

func (f *fakeGateway) CreatePipeline(ctx context.Context, in deploy.CreateInput) (string, error) {
	f.calls = append(f.calls, "create")
	return "df-new", nil
}

func (f *fakeGateway) PutDefinition(ctx context.Context, id string, def *definition.Definition) (*deploy.PutResult, error) {
	f.calls = append(f.calls, "put")
	return &deploy.PutResult{}, nil
}

func TestCommandError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		desc     string
		err      error
		wantCode int
	}{
		{
			desc:     "configuration",
			err:      &deploy.ConfigurationError{Setting: "pipeline name"},
			wantCode: ExitCodeUsage,
		},
		{
			desc:     "wrapped configuration",
			err:      fmt.Errorf("deploying: %w", &deploy.ConfigurationError{Setting: "pipeline name"}),
			wantCode: ExitCodeUsage,
		},
		{
			desc:     "ambiguous",
			err:      &deploy.AmbiguousNameError{Name: "n", IDs: []string{"df-1", "df-2"}},
			wantCode: ExitCodeFailure,
		},
		{
			desc:     "validation",
			err:      &deploy.ValidationFailure{PipelineID: "df-1"},
			wantCode: ExitCodeFailure,
		},
		{
			desc:     "malformed",
			err:      &definition.MalformedDefinitionError{Problems: []string{"document is empty"}},
			wantCode: ExitCodeFailure,
		},
		{
			desc:     "already an exit error",
			err:      NewExitError(7, errors.New("seven")),
			wantCode: 7,
		},
	}

	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			t.Parallel()

			var stderr bytes.Buffer
			code := PrintMessageAndReturnExitCode(&stderr, commandError(test.err))
			assert.Equal(t, test.wantCode, code)
			assert.Equal(t, "datapipeline-deploy: fatal: "+test.err.Error()+"\n", stderr.String())
		})
	}
}

func TestCommandErrorNil(t *testing.T) {
	t.Parallel()

	assert.NoError(t, commandError(nil))
	assert.Equal(t, 0, PrintMessageAndReturnExitCode(&bytes.Buffer{}, nil))
	assert.Equal(t, ExitCodeFailure, PrintMessageAndReturnExitCode(&bytes.Buffer{}, errors.New("plain")))
}

func TestCreateLogger(t *testing.T) {
	t.Parallel()

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer
		l, err := CreateLogger(&out, &GlobalConfig{LogFormat: "json", LogLevel: "info"})
		require.NoError(t, err)

		l.WithFields(logger.StringField("pipeline", "nightly")).Info("Creating pipeline")
		l.Debug("hidden")

		var record map[string]string
		require.NoError(t, json.Unmarshal(out.Bytes(), &record))
		assert.Equal(t, "INFO", record["level"])
		assert.Equal(t, "Creating pipeline", record["msg"])
		assert.Equal(t, "nightly", record["pipeline"])
	})

	t.Run("text", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer
		l, err := CreateLogger(&out, &GlobalConfig{LogFormat: "text", LogLevel: "warn"})
		require.NoError(t, err)

		l.Info("hidden")
		l.Warn("Validation warning for %s", "A: no log uri")
		assert.Contains(t, out.String(), "WARN   Validation warning for A: no log uri")
		assert.NotContains(t, out.String(), "hidden")
		assert.NotContains(t, out.String(), "\x1b[")
	})

	t.Run("debug wins over log level", func(t *testing.T) {
		t.Parallel()

		l, err := CreateLogger(&bytes.Buffer{}, &GlobalConfig{LogLevel: "error", Debug: true})
		require.NoError(t, err)
		assert.Equal(t, logger.DEBUG, l.Level())
	})

	t.Run("bad format", func(t *testing.T) {
		t.Parallel()

		_, err := CreateLogger(&bytes.Buffer{}, &GlobalConfig{LogFormat: "xml"})
		assert.ErrorContains(t, err, `invalid log format "xml"`)
	})
}

func TestAWSConfigOptions(t *testing.T) {
	t.Parallel()

	_, err := AWSConfig{SecretAccessKey: "secret"}.Options()
	var cerr *deploy.ConfigurationError
	require.True(t, errors.As(err, &cerr), "Options() error = %v, want *deploy.ConfigurationError", err)
	assert.Contains(t, cerr.Setting, "access key id")

	_, err = AWSConfig{AccessKeyID: "AKIA"}.Options()
	require.True(t, errors.As(err, &cerr), "Options() error = %v, want *deploy.ConfigurationError", err)
	assert.Contains(t, cerr.Setting, "secret access key")

	opts, err := AWSConfig{AccessKeyID: "AKIA", SecretAccessKey: "secret", Region: "eu-west-1"}.Options()
	require.NoError(t, err)
	assert.Equal(t, "AKIA", opts.Credentials.AccessKeyID)
	assert.Equal(t, "eu-west-1", opts.Region)
	assert.NotEmpty(t, opts.AppID)
}

func TestRunDeploy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	gw := &fakeGateway{pipelines: []deploy.Pipeline{{ID: "df-old", Name: "nightly"}}}
	l := logger.NewBuffer()
	var out bytes.Buffer

	cfg := &DeployConfig{
		PipelineName:           "nightly",
		PipelineDefinitionFile: "pipeline.json",
		PipelineTags:           "env=prod",
	}
	err := runDeploy(ctx, l, cfg, mapFetcher{"pipeline.json": testDefinition}, gw, &out)
	require.NoError(t, err)

	assert.Equal(t, "df-new\n", out.String())
	assert.Equal(t, []string{"list", "delete", "create", "put"}, gw.calls)
	assert.Contains(t, l.Messages(), "[info] Deploying pipeline nightly with pipeline definition @ pipeline.json")
	assert.Contains(t, l.Messages(), "[notice] Replaced pipeline df-old with df-new")
}

func TestRunDeployMalformedMakesNoCalls(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	gw := &fakeGateway{}
	cfg := &DeployConfig{PipelineName: "nightly", PipelineDefinitionFile: "pipeline.json"}
	err := runDeploy(ctx, logger.Discard, cfg, mapFetcher{"pipeline.json": `{"objects": []}`}, gw, &bytes.Buffer{})

	var merr *definition.MalformedDefinitionError
	require.True(t, errors.As(err, &merr), "runDeploy() error = %v, want *definition.MalformedDefinitionError", err)
	assert.Empty(t, gw.calls)
}

func TestRunDeployMissingFile(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	cfg := &DeployConfig{PipelineName: "nightly", PipelineDefinitionFile: "missing.json"}
	err := runDeploy(context.Background(), logger.Discard, cfg, mapFetcher{}, gw, &bytes.Buffer{})
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, gw.calls)
}

func TestRunTranslate(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cfg := &TranslateConfig{PipelineDefinitionFile: "pipeline.json"}
	err := runTranslate(context.Background(), logger.Discard, cfg, mapFetcher{"pipeline.json": testDefinition}, &out)
	require.NoError(t, err)

	want := `{
  "pipelineObjects": [
    {
      "id": "A",
      "name": "n",
      "fields": [
        {
          "key": "schedule",
          "refValue": "S"
        },
        {
          "key": "tags",
          "stringValue": "x"
        },
        {
          "key": "tags",
          "stringValue": "y"
        }
      ]
    }
  ],
  "parameterObjects": [
    {
      "id": "p1",
      "attributes": [
        {
          "key": "type",
          "stringValue": "String"
        }
      ]
    }
  ],
  "parameterValues": [
    {
      "id": "p1",
      "stringValue": "a"
    },
    {
      "id": "p1",
      "stringValue": "b"
    },
    {
      "id": "p2",
      "stringValue": "c && d"
    }
  ]
}
`
	assert.Equal(t, want, out.String())
}

func TestRunList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	gw := &fakeGateway{pipelines: []deploy.Pipeline{
		{ID: "df-1", Name: "nightly"},
		{ID: "df-2", Name: "hourly"},
		{ID: "df-3", Name: "nightly"},
	}}

	var all bytes.Buffer
	require.NoError(t, runList(ctx, logger.Discard, &ListConfig{}, gw, &all))
	assert.Equal(t, "df-1\tnightly\ndf-2\thourly\ndf-3\tnightly\n", all.String())

	var named bytes.Buffer
	require.NoError(t, runList(ctx, logger.Discard, &ListConfig{PipelineName: "nightly"}, gw, &named))
	assert.Equal(t, "df-1\tnightly\ndf-3\tnightly\n", named.String())
}

func TestRunListError(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{listErr: errors.New("throttled")}
	err := runList(context.Background(), logger.Discard, &ListConfig{}, gw, &bytes.Buffer{})

	var rerr *deploy.RemoteOperationError
	require.True(t, errors.As(err, &rerr), "runList() error = %v, want *deploy.RemoteOperationError", err)
	assert.Equal(t, "listing pipelines", rerr.Op)
}

func newTestApp(stdout, stderr *bytes.Buffer) *cli.App {
	app := cli.NewApp()
	app.Name = "datapipeline-deploy"
	app.Writer = stdout
	app.ErrWriter = stderr
	app.Commands = DatapipelineDeployCommands
	return app
}

func writeDefinition(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func clearAWSEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"AWS_ACCESS_KEY_ID",
		"AWS_SECRET_ACCESS_KEY",
		"AWS_SESSION_TOKEN",
		"AWS_REGION",
		"AWS_DEFAULT_REGION",
		"DATAPIPELINE_DEPLOY_PIPELINE_NAME",
		"DATAPIPELINE_DEPLOY_PIPELINE_DEFINITION_FILE",
		"DATAPIPELINE_DEPLOY_CONFIG",
	} {
		t.Setenv(name, "")
	}
}

func TestDeployCommandUsageErrors(t *testing.T) {
	// Sets env vars, so no parallel.
	clearAWSEnv(t)
	path := writeDefinition(t, testDefinition)

	tests := []struct {
		desc    string
		args    []string
		wantErr string
	}{
		{
			desc:    "missing name",
			args:    []string{"deploy", "--pipeline-definition-file", path},
			wantErr: "Missing pipeline-name.",
		},
		{
			desc:    "missing definition file",
			args:    []string{"deploy", "--pipeline-name", "nightly"},
			wantErr: "Missing pipeline-definition-file.",
		},
		{
			desc:    "definition file does not exist",
			args:    []string{"deploy", "--pipeline-name", "nightly", "--pipeline-definition-file", path + ".missing"},
			wantErr: "couldn't find pipeline-definition-file",
		},
		{
			desc:    "missing credentials",
			args:    []string{"deploy", "--pipeline-name", "nightly", "--pipeline-definition-file", path},
			wantErr: "missing access key id",
		},
		{
			desc:    "missing secret",
			args:    []string{"deploy", "--pipeline-name", "nightly", "--pipeline-definition-file", path, "--access-key-id", "AKIA"},
			wantErr: "missing secret access key",
		},
		{
			desc:    "bad tracing backend",
			args:    []string{"deploy", "--pipeline-name", "nightly", "--pipeline-definition-file", path, "--tracing-backend", "zipkin"},
			wantErr: `Invalid tracing-backend "zipkin"`,
		},
		{
			desc:    "bad log level",
			args:    []string{"deploy", "--log-level", "loud"},
			wantErr: `Invalid log-level "loud"`,
		},
	}

	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := newTestApp(&stdout, &stderr).Run(append([]string{"datapipeline-deploy"}, test.args...))

			require.Error(t, err)
			assert.ErrorContains(t, err, test.wantErr)
			assert.Equal(t, ExitCodeUsage, PrintMessageAndReturnExitCode(&bytes.Buffer{}, err))
			assert.Empty(t, stdout.String())
		})
	}
}

func TestTranslateCommand(t *testing.T) {
	// Sets env vars, so no parallel.
	clearAWSEnv(t)
	path := writeDefinition(t, testDefinition)

	var stdout, stderr bytes.Buffer
	err := newTestApp(&stdout, &stderr).Run([]string{"datapipeline-deploy", "translate", "--pipeline-definition-file", path})
	require.NoError(t, err)

	var def map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &def))
	assert.Len(t, def["pipelineObjects"], 1)
	assert.Len(t, def["parameterValues"], 3)
}

func TestTranslateCommandConfigFile(t *testing.T) {
	// Sets env vars, so no parallel.
	clearAWSEnv(t)
	path := writeDefinition(t, testDefinition)

	configPath := filepath.Join(t.TempDir(), "deploy.cfg")
	config := strings.Join([]string{
		"# written by a test",
		"pipeline-definition-file=" + path,
		`log-level="debug"`,
	}, "\n")
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))

	var stdout, stderr bytes.Buffer
	err := newTestApp(&stdout, &stderr).Run([]string{"datapipeline-deploy", "translate", "--config", configPath})
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), `"pipelineObjects"`)
	assert.Contains(t, stderr.String(), "Translated 1 objects, 1 parameters and 3 values")
}
