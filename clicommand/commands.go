package clicommand

import "github.com/urfave/cli"

var DatapipelineDeployCommands = []cli.Command{
	DeployCommand,
	TranslateCommand,
	ListCommand,
}

func usageError(c *cli.Context, err error, isSubcommand bool) error {
	return NewExitError(ExitCodeUsage, err)
}
