package clicommand

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/buildkite/datapipeline-deploy/deploy"
	"github.com/buildkite/datapipeline-deploy/internal/awsgateway"
	"github.com/buildkite/datapipeline-deploy/logger"
	"github.com/urfave/cli"
)

const listHelpDescription = `Usage:

    datapipeline-deploy list [options...]

Description:

Prints the ID and name of every AWS Data Pipeline visible to the caller, one
per line, separated by a tab. With --pipeline-name only pipelines with
exactly that name are printed.

Deploy refuses to run when several pipelines share a name; use this to find
them and delete the extras.

Example:

    $ datapipeline-deploy list --pipeline-name nightly-export`

type ListConfig struct {
	GlobalConfig
	AWSConfig

	PipelineName string `cli:"pipeline-name"`
}

var ListCommand = cli.Command{
	Name:        "list",
	Usage:       "List pipelines",
	Description: listHelpDescription,
	Flags: slices.Concat(globalFlags(), awsFlags(), []cli.Flag{
		PipelineNameFlag,
	}),
	OnUsageError: usageError,
	Action: func(c *cli.Context) error {
		ctx, cfg, l, err := setupLoggerAndConfig[ListConfig](context.Background(), c)
		if err != nil {
			return err
		}

		opts, err := cfg.AWSConfig.Options()
		if err != nil {
			return commandError(err)
		}

		awsCfg, err := awsConfig(ctx, l, opts)
		if err != nil {
			return commandError(err)
		}

		return commandError(runList(ctx, l, cfg, awsgateway.NewFromConfig(awsCfg), c.App.Writer))
	},
}

func runList(ctx context.Context, l logger.Logger, cfg *ListConfig, g deploy.Gateway, out io.Writer) error {
	pipelines, err := g.ListPipelines(ctx)
	if err != nil {
		return &deploy.RemoteOperationError{Op: "listing pipelines", Err: err}
	}

	printed := 0
	for _, p := range pipelines {
		if cfg.PipelineName != "" && p.Name != cfg.PipelineName {
			continue
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\n", p.ID, p.Name); err != nil {
			return err
		}
		printed++
	}

	l.Debug("Listed %d of %d pipelines", printed, len(pipelines))
	return nil
}
