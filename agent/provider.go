package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/zapmyco/home-agent-eval/logger"
	"github.com/zapmyco/home-agent-eval/model"
)

// CreateProvider builds the langchaingo model for one provider config.
func CreateProvider(ctx context.Context, p model.Provider) (llms.Model, error) {
	isEntraIDAuth := p.Type == model.ProviderAzure && strings.ToLower(p.AuthType) == "entra_id"
	if !isEntraIDAuth && p.Token == "" {
		return nil, fmt.Errorf("provider token is empty")
	}
	if p.Model == "" {
		return nil, fmt.Errorf("provider model is empty")
	}

	var llmModel llms.Model
	var err error

	switch p.Type {
	case model.ProviderGroq:
		baseURL := p.BaseURL
		if baseURL == "" {
			baseURL = "https://api.groq.com/openai/v1"
		}
		llmModel, err = openai.New(
			openai.WithToken(p.Token),
			openai.WithModel(p.Model),
			openai.WithBaseURL(baseURL),
		)
	case model.ProviderGoogle:
		llmModel, err = googleai.New(ctx,
			googleai.WithAPIKey(p.Token),
			googleai.WithDefaultModel(p.Model),
		)
	case model.ProviderAnthropic:
		llmModel, err = anthropic.New(
			anthropic.WithModel(p.Model),
			anthropic.WithToken(p.Token),
		)
	case model.ProviderAmazonAnthropic:
		var cfg aws.Config
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(p.Location),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				p.Token,
				p.Secret,
				"",
			)),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		brc := bedrockruntime.NewFromConfig(cfg)
		llmModel, err = bedrock.New(
			bedrock.WithClient(brc),
			bedrock.WithModel(p.Model),
		)
	case model.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(p.Token),
			openai.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
			logger.Logger.Debug("Using custom base URL", "url", p.BaseURL)
		}
		llmModel, err = openai.New(opts...)
	case model.ProviderAzure:
		llmModel, err = createAzureProvider(ctx, p)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", p.Type)
	}

	if err != nil {
		return nil, err
	}
	if llmModel == nil {
		return nil, fmt.Errorf("provider created but model is nil")
	}
	return llmModel, nil
}

func createAzureProvider(ctx context.Context, p model.Provider) (llms.Model, error) {
	if p.Version == "" {
		return nil, fmt.Errorf("Azure provider requires version")
	}
	if p.BaseURL == "" {
		return nil, fmt.Errorf("Azure provider requires base URL")
	}

	opts := []openai.Option{
		openai.WithModel(p.Model),
		openai.WithAPIVersion(p.Version),
		openai.WithBaseURL(p.BaseURL),
	}

	// "entra_id" uses DefaultAzureCredential; anything else is API key auth.
	if strings.ToLower(p.AuthType) == "entra_id" {
		logger.Logger.Debug("Using Entra ID authentication for Azure provider")
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure credential: %w", err)
		}
		token, err := cred.GetToken(ctx, policy.TokenRequestOptions{
			Scopes: []string{"https://cognitiveservices.azure.com/.default"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get Azure token: %w", err)
		}
		opts = append(opts,
			openai.WithAPIType(openai.APITypeAzureAD),
			openai.WithToken(token.Token),
		)
	} else {
		if p.Token == "" {
			return nil, fmt.Errorf("Azure provider requires token when using api_key authentication")
		}
		opts = append(opts,
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithToken(p.Token),
		)
	}

	return openai.New(opts...)
}
