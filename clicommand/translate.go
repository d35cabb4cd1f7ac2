package clicommand

import (
	"context"
	"encoding/json"
	"io"
	"slices"

	"github.com/buildkite/datapipeline-deploy/definition"
	"github.com/buildkite/datapipeline-deploy/internal/source"
	"github.com/buildkite/datapipeline-deploy/logger"
	"github.com/urfave/cli"
)

const translateHelpDescription = `Usage:

    datapipeline-deploy translate [options...]

Description:

Translates a pipeline definition document into the objects, parameters and
values that deploy would upload, and prints them as JSON. Nothing is sent to
AWS Data Pipeline, so this is a quick way to check a definition before
deploying it.

AWS credentials are only needed when the definition is read from S3.

Example:

    $ datapipeline-deploy translate --pipeline-definition-file pipeline.yaml`

type TranslateConfig struct {
	GlobalConfig
	AWSConfig

	PipelineDefinitionFile string `cli:"pipeline-definition-file" normalize:"location" validate:"required,file-exists"`
}

var TranslateCommand = cli.Command{
	Name:        "translate",
	Usage:       "Print the definition that deploy would upload",
	Description: translateHelpDescription,
	Flags: slices.Concat(globalFlags(), awsFlags(), []cli.Flag{
		PipelineDefinitionFileFlag,
	}),
	OnUsageError: usageError,
	Action: func(c *cli.Context) error {
		ctx, cfg, l, err := setupLoggerAndConfig[TranslateConfig](context.Background(), c)
		if err != nil {
			return err
		}

		var f fetcher = source.NewFetcherWithClient(l, nil)
		if source.IsS3(cfg.PipelineDefinitionFile) {
			opts, err := cfg.AWSConfig.Options()
			if err != nil {
				return commandError(err)
			}
			awsCfg, err := awsConfig(ctx, l, opts)
			if err != nil {
				return commandError(err)
			}
			f = source.NewFetcher(l, awsCfg)
		}

		return commandError(runTranslate(ctx, l, cfg, f, c.App.Writer))
	},
}

func runTranslate(ctx context.Context, l logger.Logger, cfg *TranslateConfig, f fetcher, out io.Writer) error {
	src, err := loadSource(ctx, f, cfg.PipelineDefinitionFile)
	if err != nil {
		return err
	}

	def, err := definition.Translate(src)
	if err != nil {
		return err
	}
	l.Debug("Translated %d objects, %d parameters and %d values",
		len(def.Objects), len(def.Parameters), len(def.Values))

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(def)
}
