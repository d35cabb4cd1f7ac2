// datapipeline-deploy replaces AWS Data Pipelines with freshly defined ones.
package main

import (
	"errors"
	"os"

	"github.com/buildkite/datapipeline-deploy/clicommand"
	"github.com/buildkite/datapipeline-deploy/version"
	"github.com/urfave/cli"
)

const appHelpTemplate = `Usage:

  {{.Name}} <command> [options...]

Available commands are:

  {{range .Commands}}{{.Name}}{{with .ShortName}}, {{.}}{{end}}{{ "\t" }}{{.Usage}}
  {{end}}
Use "{{.Name}} <command> --help" for more information about a command.

`

var errNoCommand = errors.New("no command given")

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "datapipeline-deploy"
	app.Usage = "Deploy AWS Data Pipeline definitions"
	app.Version = version.FullVersion()
	app.CustomAppHelpTemplate = appHelpTemplate
	app.ErrWriter = os.Stderr
	app.Commands = clicommand.DatapipelineDeployCommands
	app.OnUsageError = func(c *cli.Context, err error, isSubcommand bool) error {
		return clicommand.NewExitError(clicommand.ExitCodeUsage, err)
	}
	app.CommandNotFound = func(c *cli.Context, command string) {
		cli.ShowAppHelp(c) //nolint:errcheck // help is best effort
		os.Exit(clicommand.ExitCodeUsage)
	}
	app.Action = func(c *cli.Context) error {
		cli.ShowAppHelp(c) //nolint:errcheck // help is best effort
		return clicommand.NewExitError(clicommand.ExitCodeUsage, errNoCommand)
	}
	return app
}

func main() {
	app := newApp()
	os.Exit(clicommand.PrintMessageAndReturnExitCode(app.ErrWriter, app.Run(os.Args)))
}
