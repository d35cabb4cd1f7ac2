// Package awsgateway implements deploy.Gateway on top of the AWS Data
// Pipeline API.
package awsgateway

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/datapipeline"
	"github.com/aws/aws-sdk-go-v2/service/datapipeline/types"
	"github.com/buildkite/datapipeline-deploy/definition"
	"github.com/buildkite/datapipeline-deploy/deploy"
)

// API is the subset of *datapipeline.Client the gateway calls.
type API interface {
	datapipeline.ListPipelinesAPIClient

	DeletePipeline(ctx context.Context, params *datapipeline.DeletePipelineInput, optFns ...func(*datapipeline.Options)) (*datapipeline.DeletePipelineOutput, error)
	CreatePipeline(ctx context.Context, params *datapipeline.CreatePipelineInput, optFns ...func(*datapipeline.Options)) (*datapipeline.CreatePipelineOutput, error)
	PutPipelineDefinition(ctx context.Context, params *datapipeline.PutPipelineDefinitionInput, optFns ...func(*datapipeline.Options)) (*datapipeline.PutPipelineDefinitionOutput, error)
}

var _ API = (*datapipeline.Client)(nil)

// Gateway talks to the service through an API.
type Gateway struct {
	api API
}

var _ deploy.Gateway = (*Gateway)(nil)

func New(api API) *Gateway {
	return &Gateway{api: api}
}

// NewFromConfig builds a Gateway with a real client.
func NewFromConfig(cfg aws.Config, optFns ...func(*datapipeline.Options)) *Gateway {
	return New(datapipeline.NewFromConfig(cfg, optFns...))
}

// ListPipelines returns every pipeline visible to the caller, following the
// listing's marker until the service says there are no more.
func (g *Gateway) ListPipelines(ctx context.Context) ([]deploy.Pipeline, error) {
	var pipelines []deploy.Pipeline

	paginator := datapipeline.NewListPipelinesPaginator(g.api, &datapipeline.ListPipelinesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range page.PipelineIdList {
			pipelines = append(pipelines, deploy.Pipeline{
				ID:   aws.ToString(p.Id),
				Name: aws.ToString(p.Name),
			})
		}
	}

	return pipelines, nil
}

func (g *Gateway) DeletePipeline(ctx context.Context, id string) error {
	_, err := g.api.DeletePipeline(ctx, &datapipeline.DeletePipelineInput{
		PipelineId: aws.String(id),
	})
	return err
}

func (g *Gateway) CreatePipeline(ctx context.Context, in deploy.CreateInput) (string, error) {
	params := &datapipeline.CreatePipelineInput{
		Name:     aws.String(in.Name),
		UniqueId: aws.String(in.UniqueID),
	}
	if in.Description != "" {
		params.Description = aws.String(in.Description)
	}
	for _, t := range in.Tags {
		params.Tags = append(params.Tags, types.Tag{
			Key:   aws.String(t.Key),
			Value: aws.String(t.Value),
		})
	}

	out, err := g.api.CreatePipeline(ctx, params)
	if err != nil {
		return "", err
	}
	if out.PipelineId == nil {
		return "", fmt.Errorf("service returned no pipeline id for %q", in.Name)
	}
	return *out.PipelineId, nil
}

// PutDefinition uploads def. Parameter attributes can only hold strings, so a
// definition with a reference attribute is refused before the call is made.
func (g *Gateway) PutDefinition(ctx context.Context, id string, def *definition.Definition) (*deploy.PutResult, error) {
	params, err := putInput(id, def)
	if err != nil {
		return nil, err
	}

	out, err := g.api.PutPipelineDefinition(ctx, params)
	if err != nil {
		return nil, err
	}

	result := &deploy.PutResult{Errored: out.Errored}
	for _, v := range out.ValidationErrors {
		result.ValidationErrors = append(result.ValidationErrors, deploy.ValidationError{
			ID:     aws.ToString(v.Id),
			Errors: v.Errors,
		})
	}
	for _, v := range out.ValidationWarnings {
		result.ValidationWarnings = append(result.ValidationWarnings, deploy.ValidationWarning{
			ID:       aws.ToString(v.Id),
			Warnings: v.Warnings,
		})
	}
	return result, nil
}

func putInput(id string, def *definition.Definition) (*datapipeline.PutPipelineDefinitionInput, error) {
	params := &datapipeline.PutPipelineDefinitionInput{
		PipelineId:       aws.String(id),
		PipelineObjects:  make([]types.PipelineObject, 0, len(def.Objects)),
		ParameterObjects: make([]types.ParameterObject, 0, len(def.Parameters)),
		ParameterValues:  make([]types.ParameterValue, 0, len(def.Values)),
	}

	for _, o := range def.Objects {
		params.PipelineObjects = append(params.PipelineObjects, types.PipelineObject{
			Id:     aws.String(o.ID),
			Name:   aws.String(o.Name),
			Fields: objectFields(o.Fields),
		})
	}

	for _, p := range def.Parameters {
		attrs := make([]types.ParameterAttribute, 0, len(p.Attributes))
		for _, a := range p.Attributes {
			if a.IsRef {
				return nil, fmt.Errorf("parameter %q: attribute %q is a reference, but parameter attributes must be strings", p.ID, a.Key)
			}
			attrs = append(attrs, types.ParameterAttribute{
				Key:         aws.String(a.Key),
				StringValue: aws.String(a.Value),
			})
		}
		params.ParameterObjects = append(params.ParameterObjects, types.ParameterObject{
			Id:         aws.String(p.ID),
			Attributes: attrs,
		})
	}

	for _, v := range def.Values {
		params.ParameterValues = append(params.ParameterValues, types.ParameterValue{
			Id:          aws.String(v.ID),
			StringValue: aws.String(v.StringValue),
		})
	}

	return params, nil
}

func objectFields(fields []definition.Field) []types.Field {
	out := make([]types.Field, 0, len(fields))
	for _, f := range fields {
		field := types.Field{Key: aws.String(f.Key)}
		if f.IsRef {
			field.RefValue = aws.String(f.Value)
		} else {
			field.StringValue = aws.String(f.Value)
		}
		out = append(out, field)
	}
	return out
}
