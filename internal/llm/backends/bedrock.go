package backends

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/haasonsaas/profileqa/internal/llm"
)

// BedrockConfig configures the AWS Bedrock Converse backend. Without static
// keys the default AWS credential chain is used.
type BedrockConfig struct {
	Name            string
	Region          string
	Model           string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// ConverseAPI is the subset of the Bedrock runtime client used here.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Bedrock calls models through the Converse API.
type Bedrock struct {
	name   string
	model  string
	client ConverseAPI
}

// LoadAWSConfig resolves AWS settings for the given region and optional static keys.
func LoadAWSConfig(ctx context.Context, region, accessKeyID, secretAccessKey, sessionToken string) (aws.Config, error) {
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, sessionToken),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

func NewBedrock(ctx context.Context, cfg BedrockConfig) (*Bedrock, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg.Region, cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}
	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		o.RetryMaxAttempts = 1
	})
	return NewBedrockWithClient(cfg, client), nil
}

// NewBedrockWithClient wires an existing Converse client, typically a fake in tests.
func NewBedrockWithClient(cfg BedrockConfig, client ConverseAPI) *Bedrock {
	if cfg.Name == "" {
		cfg.Name = "bedrock"
	}
	if cfg.Model == "" {
		cfg.Model = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	return &Bedrock{name: cfg.Name, model: cfg.Model, client: client}
}

func (b *Bedrock) Name() string  { return b.name }
func (b *Bedrock) Model() string { return b.model }

func (b *Bedrock) Complete(ctx context.Context, req *llm.Request) (*llm.Completion, error) {
	system, conversation := req.SplitSystem()

	messages := make([]types.Message, 0, len(conversation))
	for _, m := range conversation {
		role := types.ConversationRoleUser
		if m.Role == llm.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		messages = append(messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(b.model),
		Messages: messages,
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}
	if req.MaxTokens > 0 {
		// #nosec G115 -- bounded by min
		input.InferenceConfig.MaxTokens = aws.Int32(int32(min(req.MaxTokens, math.MaxInt32)))
	}
	if system != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}

	out, err := b.client.Converse(ctx, input)
	if err != nil {
		return nil, b.wrapError(err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, llm.NewBackendError(b.name, b.model, errors.New("converse returned no message"))
	}
	var text strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			text.WriteString(t.Value)
		}
	}
	completion := &llm.Completion{Text: text.String()}
	if out.Usage != nil {
		completion.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		completion.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	return completion, nil
}

func (b *Bedrock) wrapError(err error) error {
	be := llm.NewBackendError(b.name, b.model, err)

	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) && status.HTTPStatusCode() != 0 {
		be = be.WithStatus(status.HTTPStatusCode())
	}
	var reqID interface{ ServiceRequestID() string }
	if errors.As(err, &reqID) {
		be = be.WithRequestID(reqID.ServiceRequestID())
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		be = be.WithCode(apiErr.ErrorCode()).WithMessage(apiErr.ErrorMessage())
	}
	return be
}
