package clicommand

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/buildkite/datapipeline-deploy/cliconfig"
	"github.com/buildkite/datapipeline-deploy/deploy"
	"github.com/buildkite/datapipeline-deploy/internal/awslib"
	"github.com/buildkite/datapipeline-deploy/logger"
	"github.com/buildkite/datapipeline-deploy/version"
	"github.com/oleiade/reflections"
	"github.com/urfave/cli"
)

const appName = "datapipeline-deploy"

var ConfigFlag = cli.StringFlag{
	Name:   "config",
	Usage:  "Path to a file of flag-name=value settings",
	EnvVar: "DATAPIPELINE_DEPLOY_CONFIG",
}

var DebugFlag = cli.BoolFlag{
	Name:   "debug",
	Usage:  "Enable debug mode. Synonym for `--log-level debug`. Takes precedence over `--log-level`",
	EnvVar: "DATAPIPELINE_DEPLOY_DEBUG",
}

var LogLevelFlag = cli.StringFlag{
	Name:   "log-level",
	Value:  "notice",
	Usage:  "Set the log level, valid values: debug, info, notice, warn, error, fatal",
	EnvVar: "DATAPIPELINE_DEPLOY_LOG_LEVEL",
}

var LogFormatFlag = cli.StringFlag{
	Name:   "log-format",
	Value:  "text",
	Usage:  "The format to use for the logger output, valid values: text, json",
	EnvVar: "DATAPIPELINE_DEPLOY_LOG_FORMAT",
}

var NoColorFlag = cli.BoolFlag{
	Name:   "no-color",
	Usage:  "Don't show colors in logging",
	EnvVar: "DATAPIPELINE_DEPLOY_NO_COLOR",
}

type GlobalConfig struct {
	Config    string `cli:"config"`
	Debug     bool   `cli:"debug"`
	LogLevel  string `cli:"log-level" validate:"oneof=debug info notice warn warning error fatal"`
	LogFormat string `cli:"log-format" validate:"oneof=text json"`
	NoColor   bool   `cli:"no-color"`
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		DebugFlag,
		LogLevelFlag,
		LogFormatFlag,
		NoColorFlag,
	}
}

type AWSConfig struct {
	AccessKeyID     string `cli:"access-key-id"`
	SecretAccessKey string `cli:"secret-access-key"`
	SessionToken    string `cli:"session-token"`
	Region          string `cli:"region"`
	Endpoint        string `cli:"endpoint"`
}

func awsFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:   "access-key-id",
			Usage:  "The AWS access key id to deploy with",
			EnvVar: "AWS_ACCESS_KEY_ID",
		},
		cli.StringFlag{
			Name:   "secret-access-key",
			Usage:  "The AWS secret access key to deploy with",
			EnvVar: "AWS_SECRET_ACCESS_KEY",
		},
		cli.StringFlag{
			Name:   "session-token",
			Usage:  "An AWS session token, for temporary credentials",
			EnvVar: "AWS_SESSION_TOKEN",
		},
		cli.StringFlag{
			Name:   "region",
			Usage:  "The AWS region the pipeline lives in. Without it the region comes from EC2 instance metadata, or is " + awslib.DefaultRegion,
			EnvVar: "AWS_REGION,AWS_DEFAULT_REGION",
		},
		cli.StringFlag{
			Name:   "endpoint",
			Usage:  "Override the AWS service endpoint, for example to use a local stand-in",
			EnvVar: "DATAPIPELINE_DEPLOY_ENDPOINT",
		},
	}
}

// Options checks that credentials were given and converts the config for
// awslib.
func (c AWSConfig) Options() (awslib.Options, error) {
	if c.AccessKeyID == "" {
		return awslib.Options{}, &deploy.ConfigurationError{Setting: "access key id (--access-key-id or AWS_ACCESS_KEY_ID)"}
	}
	if c.SecretAccessKey == "" {
		return awslib.Options{}, &deploy.ConfigurationError{Setting: "secret access key (--secret-access-key or AWS_SECRET_ACCESS_KEY)"}
	}

	return awslib.Options{
		Credentials: awslib.Credentials{
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
			SessionToken:    c.SessionToken,
		},
		Region:   c.Region,
		Endpoint: c.Endpoint,
		AppID:    version.AppID(),
	}, nil
}

// CreateLogger builds a logger from the global options in cfg, writing to w.
func CreateLogger(w io.Writer, cfg any) (logger.Logger, error) {
	var printer logger.Printer
	format, _ := reflections.GetField(cfg, "LogFormat")
	switch format {
	case "", "text":
		p := logger.NewTextPrinter(w)
		if noColor, err := reflections.GetField(cfg, "NoColor"); err == nil && noColor == true {
			p.Colors = false
		}
		// Only a console gets colors
		if _, ok := w.(*os.File); !ok {
			p.Colors = false
		}
		printer = p
	case "json":
		printer = logger.NewJSONPrinter(w)
	default:
		return nil, fmt.Errorf("invalid log format %q, must be text or json", format)
	}

	l := logger.NewConsoleLogger(printer, os.Exit)

	if levelName, err := reflections.GetField(cfg, "LogLevel"); err == nil && levelName != "" {
		level, err := logger.LevelFromString(fmt.Sprint(levelName))
		if err != nil {
			return nil, err
		}
		l.SetLevel(level)
	}

	// --debug wins over --log-level
	if debug, err := reflections.GetField(cfg, "Debug"); err == nil && debug == true {
		l.SetLevel(logger.DEBUG)
	}

	return l, nil
}

// setupLoggerAndConfig loads T from the command line and config file, and
// creates a logger for it. Any error is a usage error.
func setupLoggerAndConfig[T any](ctx context.Context, c *cli.Context) (context.Context, *T, logger.Logger, error) {
	cfg := new(T)

	loader := cliconfig.Loader{CLI: c, Config: cfg}
	if err := loader.Load(); err != nil {
		return ctx, nil, nil, NewExitError(ExitCodeUsage, err)
	}

	l, err := CreateLogger(errWriter(c), cfg)
	if err != nil {
		return ctx, nil, nil, NewExitError(ExitCodeUsage, err)
	}

	if loader.File != nil {
		l.Debug("Loaded config file %s", loader.File.Path)
	}

	return ctx, cfg, l, nil
}

func errWriter(c *cli.Context) io.Writer {
	if c.App.ErrWriter == nil {
		return os.Stderr
	}
	return c.App.ErrWriter
}

// awsConfig logs which access key is in use, without revealing it, and
// resolves the SDK config.
func awsConfig(ctx context.Context, l logger.Logger, o awslib.Options) (aws.Config, error) {
	l.Info("Logging in with Access Key: %s", awslib.MaskAccessKey(o.Credentials.AccessKeyID))
	if o.Endpoint != "" {
		l.Info("Using endpoint %s", o.Endpoint)
	}

	cfg, err := awslib.NewConfig(ctx, o)
	if err != nil {
		return cfg, fmt.Errorf("configuring AWS: %w", err)
	}

	l.Debug("Using region %s", cfg.Region)
	return cfg, nil
}
