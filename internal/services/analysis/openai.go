package analysis

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/productstudio/studio/internal/config"
)

var ErrNoAPIKey = errors.New("openai api key is not set")

// OpenAIAnalyzer describes a product with a vision capable chat model in
// JSON mode.
type OpenAIAnalyzer struct {
	client *openai.Client
	model  string
}

func NewOpenAIAnalyzer(cfg *config.Config) (*OpenAIAnalyzer, error) {
	if cfg.OpenAI == nil || cfg.OpenAI.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	model := cfg.OpenAI.AnalysisModel
	if model == "" {
		model = config.DefaultAnalysisModel
	}

	return &OpenAIAnalyzer{
		client: openai.NewClient(option.WithAPIKey(cfg.OpenAI.APIKey)),
		model:  model,
	}, nil
}

func (a *OpenAIAnalyzer) Model() string {
	return a.model
}

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, productName string, images []Image) ([]byte, error) {
	prompt, err := SystemPrompt(productName)
	if err != nil {
		return nil, err
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextPart(fmt.Sprintf("Analyse these %d images of the same product.", len(images))),
	}
	for _, img := range images {
		parts = append(parts, openai.ImagePart(dataURL(img)))
	}

	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt),
			openai.UserMessageParts(parts...),
		}),
		ResponseFormat: openai.F[openai.ChatCompletionNewParamsResponseFormatUnion](
			openai.ResponseFormatJSONObjectParam{
				Type: openai.F(openai.ResponseFormatJSONObjectTypeJSONObject),
			},
		),
		Model:       openai.F(openai.ChatModel(a.model)),
		Temperature: openai.F(0.3),
	})
	if err != nil {
		return nil, err
	}

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return nil, errors.New("analysis returned an empty response")
	}

	return []byte(completion.Choices[0].Message.Content), nil
}

func dataURL(img Image) string {
	return "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Content)
}
