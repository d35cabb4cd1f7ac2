// Package deploy replaces a named pipeline with a freshly created one
// carrying a new definition.
//
// A deploy runs these steps, in order, and stops at the first failure:
//
//   - lookup: list the remote pipelines and keep those with exactly the
//     configured name. More than one match is an AmbiguousNameError.
//   - delete: remove the single match, if there is one.
//   - create: create a new pipeline, using the name as its unique id.
//   - translate: turn the source document into objects, parameters and
//     values.
//   - upload: put the definition and check the service's verdict.
//
// Nothing is retried. Re-running a failed deploy is safe: the lookup finds
// the pipeline the failed run created and replaces it.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/buildkite/datapipeline-deploy/definition"
	"github.com/buildkite/datapipeline-deploy/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/buildkite/datapipeline-deploy/deploy"

// Config is what to deploy the definition as.
type Config struct {
	Name        string
	Description string

	// Tags is a "key=value,key=value" list, see ParseTags.
	Tags string
}

// Result describes a successful deploy.
type Result struct {
	PipelineID string

	// DeletedPipelineID is the id of the pipeline that was replaced, if any.
	DeletedPipelineID string

	Warnings []ValidationWarning
}

// Deployer runs deploys against a Gateway.
type Deployer struct {
	gateway Gateway
	logger  logger.Logger
	tracer  trace.Tracer
}

// NewDeployer returns a Deployer using the global OpenTelemetry tracer
// provider, which is a no-op unless tracing has been set up.
func NewDeployer(g Gateway, l logger.Logger) *Deployer {
	return &Deployer{
		gateway: g,
		logger:  l,
		tracer:  otel.Tracer(tracerName),
	}
}

// Deploy replaces the pipeline named cfg.Name with a new one defined by src.
// Configuration and definition problems are reported before the service is
// contacted.
func (d *Deployer) Deploy(ctx context.Context, cfg Config, src *definition.Source) (result *Result, err error) {
	ctx, span := d.tracer.Start(ctx, "deploy", trace.WithAttributes(
		attribute.String("pipeline.name", cfg.Name),
	))
	defer func() {
		endSpan(span, err)
	}()

	if cfg.Name == "" {
		return nil, &ConfigurationError{Setting: "pipeline name"}
	}
	if src == nil {
		return nil, &ConfigurationError{Setting: "pipeline definition"}
	}

	// Translate is pure, so a throwaway translation now catches a malformed
	// document before anything is changed remotely.
	if _, err := definition.Translate(src); err != nil {
		return nil, err
	}

	start := time.Now()
	l := d.logger.WithFields(logger.StringField("pipeline", cfg.Name))
	result = &Result{}

	var existing *Pipeline
	err = d.step(ctx, "lookup", func(ctx context.Context) error {
		existing, err = d.lookup(ctx, l, cfg.Name)
		return err
	})
	if err != nil {
		return nil, err
	}

	if existing != nil {
		err = d.step(ctx, "delete", func(ctx context.Context) error {
			l.Info("Deleting pipeline %s", existing.ID)
			if err := d.gateway.DeletePipeline(ctx, existing.ID); err != nil {
				return remoteError(fmt.Sprintf("deleting pipeline %s", existing.ID), err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		result.DeletedPipelineID = existing.ID
	}

	err = d.step(ctx, "create", func(ctx context.Context) error {
		tags := ParseTags(cfg.Tags)
		l.Debug("Parsed %d tags from %q", len(tags), cfg.Tags)
		l.Info("Creating pipeline")

		id, err := d.gateway.CreatePipeline(ctx, CreateInput{
			Name:        cfg.Name,
			UniqueID:    cfg.Name,
			Description: cfg.Description,
			Tags:        tags,
		})
		if err != nil {
			return remoteError("creating pipeline", err)
		}
		result.PipelineID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	l = l.WithFields(logger.StringField("pipeline_id", result.PipelineID))
	l.Info("Pipeline created")

	var def *definition.Definition
	err = d.step(ctx, "translate", func(context.Context) error {
		def, err = definition.Translate(src)
		return err
	})
	if err != nil {
		l.Error("Translating the definition failed; the new pipeline has no definition and was left in place")
		return nil, err
	}

	err = d.step(ctx, "upload", func(ctx context.Context) error {
		l.WithFields(
			logger.IntField("objects", len(def.Objects)),
			logger.IntField("parameters", len(def.Parameters)),
			logger.IntField("values", len(def.Values)),
		).Info("Uploading definition")

		put, err := d.gateway.PutDefinition(ctx, result.PipelineID, def)
		if err != nil {
			return remoteError("putting pipeline definition", err)
		}
		if put == nil {
			put = &PutResult{}
		}

		for _, w := range put.ValidationWarnings {
			l.Warn("Validation warning for %s", w)
		}
		result.Warnings = put.ValidationWarnings

		if put.Errored {
			for _, v := range put.ValidationErrors {
				l.Error("Validation error for %s", v)
			}
			return &ValidationFailure{
				PipelineID: result.PipelineID,
				Errors:     put.ValidationErrors,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.WithFields(logger.DurationField("duration", time.Since(start))).Info("Deployment successful")
	return result, nil
}

// lookup returns the one pipeline named name, or nil if there is none.
func (d *Deployer) lookup(ctx context.Context, l logger.Logger, name string) (*Pipeline, error) {
	pipelines, err := d.gateway.ListPipelines(ctx)
	if err != nil {
		return nil, remoteError("listing pipelines", err)
	}

	var matches []Pipeline
	for _, p := range pipelines {
		if p.Name == name {
			matches = append(matches, p)
		}
	}
	l.Debug("Found %d pipelines, %d named %q", len(pipelines), len(matches), name)

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.ID)
		}
		return nil, &AmbiguousNameError{Name: name, IDs: ids}
	}
}

func (d *Deployer) step(ctx context.Context, name string, f func(context.Context) error) error {
	ctx, span := d.tracer.Start(ctx, name)
	err := f(ctx)
	endSpan(span, err)
	return err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func remoteError(op string, err error) error {
	if rerr := new(RemoteOperationError); errors.As(err, &rerr) {
		return err
	}
	return &RemoteOperationError{Op: op, Err: err}
}
