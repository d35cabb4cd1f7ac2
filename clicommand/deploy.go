package clicommand

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/buildkite/datapipeline-deploy/definition"
	"github.com/buildkite/datapipeline-deploy/deploy"
	"github.com/buildkite/datapipeline-deploy/internal/awsgateway"
	"github.com/buildkite/datapipeline-deploy/internal/source"
	"github.com/buildkite/datapipeline-deploy/internal/tracing"
	"github.com/buildkite/datapipeline-deploy/logger"
	"github.com/urfave/cli"
)

const deployHelpDescription = `Usage:

    datapipeline-deploy deploy [options...]

Description:

Replaces the AWS Data Pipeline named --pipeline-name with a new pipeline
defined by --pipeline-definition-file.

Any existing pipeline with that name is deleted, a new one is created, and
the translated definition is uploaded to it. If the service rejects the
definition the deploy fails, and the new pipeline is left without a
definition; running the deploy again replaces it.

The definition file is JSON or YAML with "objects", "parameters" and
"values" sections, and may be a local path or an s3://bucket/key location.

The ID of the new pipeline is printed on success.

Example:

    $ datapipeline-deploy deploy \
        --pipeline-name nightly-export \
        --pipeline-definition-file pipeline.json \
        --pipeline-tags "env=prod,team=data"`

type DeployConfig struct {
	GlobalConfig
	AWSConfig

	PipelineName           string `cli:"pipeline-name" validate:"required"`
	PipelineDefinitionFile string `cli:"pipeline-definition-file" normalize:"location" validate:"required,file-exists"`
	PipelineTags           string `cli:"pipeline-tags"`
	PipelineDescription    string `cli:"pipeline-description"`
	TracingBackend         string `cli:"tracing-backend" validate:"oneof=none opentelemetry"`
}

var PipelineNameFlag = cli.StringFlag{
	Name:   "pipeline-name",
	Usage:  "The name of the pipeline to deploy",
	EnvVar: "DATAPIPELINE_DEPLOY_PIPELINE_NAME",
}

var PipelineDefinitionFileFlag = cli.StringFlag{
	Name:   "pipeline-definition-file",
	Usage:  "The pipeline definition document, a local path or an s3://bucket/key location",
	EnvVar: "DATAPIPELINE_DEPLOY_PIPELINE_DEFINITION_FILE",
}

var DeployCommand = cli.Command{
	Name:        "deploy",
	Usage:       "Replace a pipeline with a freshly defined one",
	Description: deployHelpDescription,
	Flags: slices.Concat(globalFlags(), awsFlags(), []cli.Flag{
		PipelineNameFlag,
		PipelineDefinitionFileFlag,
		cli.StringFlag{
			Name:   "pipeline-tags",
			Usage:  "Tags for the new pipeline, as a comma separated list of key=value pairs",
			EnvVar: "DATAPIPELINE_DEPLOY_PIPELINE_TAGS",
		},
		cli.StringFlag{
			Name:   "pipeline-description",
			Usage:  "A description for the new pipeline",
			EnvVar: "DATAPIPELINE_DEPLOY_PIPELINE_DESCRIPTION",
		},
		cli.StringFlag{
			Name:   "tracing-backend",
			Value:  tracing.BackendNone,
			Usage:  "Where to send traces of the deploy, valid values: none, opentelemetry",
			EnvVar: "DATAPIPELINE_DEPLOY_TRACING_BACKEND",
		},
	}),
	OnUsageError: usageError,
	Action: func(c *cli.Context) error {
		ctx, cfg, l, err := setupLoggerAndConfig[DeployConfig](context.Background(), c)
		if err != nil {
			return err
		}

		opts, err := cfg.AWSConfig.Options()
		if err != nil {
			return commandError(err)
		}

		stop, err := tracing.Start(ctx, l, cfg.TracingBackend)
		if err != nil {
			return NewExitError(ExitCodeUsage, err)
		}
		defer stop()

		awsCfg, err := awsConfig(ctx, l, opts)
		if err != nil {
			return commandError(err)
		}

		return commandError(runDeploy(ctx, l, cfg,
			source.NewFetcher(l, awsCfg),
			awsgateway.NewFromConfig(awsCfg),
			c.App.Writer,
		))
	},
}

type fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

func loadSource(ctx context.Context, f fetcher, location string) (*definition.Source, error) {
	b, err := f.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	return definition.ParseSource(ctx, b)
}

func runDeploy(ctx context.Context, l logger.Logger, cfg *DeployConfig, f fetcher, g deploy.Gateway, out io.Writer) error {
	l.Info("Deploying pipeline %s with pipeline definition @ %s", cfg.PipelineName, cfg.PipelineDefinitionFile)

	src, err := loadSource(ctx, f, cfg.PipelineDefinitionFile)
	if err != nil {
		return err
	}

	result, err := deploy.NewDeployer(g, l).Deploy(ctx, deploy.Config{
		Name:        cfg.PipelineName,
		Description: cfg.PipelineDescription,
		Tags:        cfg.PipelineTags,
	}, src)
	if err != nil {
		return err
	}

	if result.DeletedPipelineID != "" {
		l.Notice("Replaced pipeline %s with %s", result.DeletedPipelineID, result.PipelineID)
	} else {
		l.Notice("Created pipeline %s", result.PipelineID)
	}

	_, err = fmt.Fprintln(out, result.PipelineID)
	return err
}
