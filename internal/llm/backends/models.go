package backends

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrock/types"

	"github.com/haasonsaas/profileqa/internal/config"
)

// ModelInfo describes a model reachable through a configured backend.
type ModelInfo struct {
	Backend  string `json:"backend"`
	Type     string `json:"type"`
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Provider string `json:"provider,omitempty"`
	Status   string `json:"status,omitempty"`
}

// FoundationModelAPI is the Bedrock control-plane call used for discovery.
type FoundationModelAPI interface {
	ListFoundationModels(ctx context.Context, params *bedrock.ListFoundationModelsInput, optFns ...func(*bedrock.Options)) (*bedrock.ListFoundationModelsOutput, error)
}

// newFoundationModelClient is swapped in tests.
var newFoundationModelClient = func(ctx context.Context, bc config.LLMBackendConfig) (FoundationModelAPI, error) {
	awsCfg, err := LoadAWSConfig(ctx, bc.Region, bc.AccessKeyID, bc.SecretAccessKey, bc.SessionToken)
	if err != nil {
		return nil, err
	}
	return bedrock.NewFromConfig(awsCfg), nil
}

// ListModels returns the configured model of every backend. With discover
// set, Bedrock backends also list the active text foundation models in
// their region.
func ListModels(ctx context.Context, cfg config.LLMConfig, discover bool) ([]ModelInfo, error) {
	ids := make([]string, 0, len(cfg.Backends))
	for id := range cfg.Backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []ModelInfo
	for _, id := range ids {
		bc := cfg.Backends[id]
		out = append(out, ModelInfo{Backend: id, Type: bc.Type, ID: bc.Model, Status: "configured"})
		if !discover || bc.Type != "bedrock" {
			continue
		}
		client, err := newFoundationModelClient(ctx, bc)
		if err != nil {
			return out, fmt.Errorf("backend %s: %w", id, err)
		}
		found, err := ListBedrockModels(ctx, client, id)
		if err != nil {
			return out, fmt.Errorf("backend %s: %w", id, err)
		}
		out = append(out, found...)
	}
	return out, nil
}

// ListBedrockModels lists active foundation models that produce text.
func ListBedrockModels(ctx context.Context, client FoundationModelAPI, backend string) ([]ModelInfo, error) {
	resp, err := client.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{
		ByOutputModality: bedrocktypes.ModelModalityText,
	})
	if err != nil {
		return nil, fmt.Errorf("list foundation models: %w", err)
	}
	models := make([]ModelInfo, 0, len(resp.ModelSummaries))
	for _, summary := range resp.ModelSummaries {
		status := ""
		if summary.ModelLifecycle != nil {
			status = string(summary.ModelLifecycle.Status)
		}
		if status != "" && !strings.EqualFold(status, "ACTIVE") {
			continue
		}
		models = append(models, ModelInfo{
			Backend:  backend,
			Type:     "bedrock",
			ID:       aws.ToString(summary.ModelId),
			Name:     aws.ToString(summary.ModelName),
			Provider: aws.ToString(summary.ProviderName),
			Status:   status,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}
