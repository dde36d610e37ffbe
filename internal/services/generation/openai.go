package generation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/productstudio/studio/internal/config"
	"github.com/productstudio/studio/internal/utils/imageutil"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var ErrNoAPIKey = errors.New("openai api key is not set")

// prompt length caps of the image endpoints
var promptLimits = map[string]int{
	openai.CreateImageModelDallE2: 1000,
	openai.CreateImageModelDallE3: 4000,
}

// OpenAICapability generates images with the OpenAI images API. With
// references it edits the primary one, otherwise it creates from text.
type OpenAICapability struct {
	client  *openai.Client
	model   string
	maxEdge int
	tempDir string
	logger  *zap.Logger
}

func NewOpenAICapability(cfg *config.Config, logger *zap.Logger) (*OpenAICapability, error) {
	if cfg.OpenAI == nil || cfg.OpenAI.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	model := cfg.OpenAI.ImageModel
	if model == "" {
		model = config.DefaultImageModel
	}

	return &OpenAICapability{
		client:  openai.NewClient(cfg.OpenAI.APIKey),
		model:   model,
		maxEdge: cfg.Generation.MaxReferenceEdge,
		tempDir: cfg.TempDir,
		logger:  logger.Named("openai"),
	}, nil
}

func (c *OpenAICapability) Generate(ctx context.Context, req Request) ([]Output, error) {
	prompt, err := c.prompt(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt: %w", err)
	}

	// dall-e-3 returns a single image per call
	perCall := req.Count
	if c.endpointModel(req) == openai.CreateImageModelDallE3 {
		perCall = 1
	}

	var outputs []Output
	for len(outputs) < req.Count {
		n := min(perCall, req.Count-len(outputs))

		var resp openai.ImageResponse
		if len(req.References) > 0 {
			resp, err = c.edit(ctx, req.References[0], prompt, n)
		} else {
			resp, err = c.create(ctx, prompt, req.AspectRatio, n)
		}
		if err != nil {
			if len(outputs) > 0 {
				c.logger.Warn("stopping after partial generation", zap.String("job_id", req.JobID), zap.Int("outputs", len(outputs)), zap.Error(err))
				break
			}
			return nil, err
		}

		batch, err := decodeImages(resp)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		outputs = append(outputs, batch...)
	}

	return outputs, nil
}

// endpointModel is the model that serves req. Edits only exist for dall-e-2,
// whatever image model is configured.
func (c *OpenAICapability) endpointModel(req Request) string {
	if len(req.References) > 0 {
		return openai.CreateImageModelDallE2
	}
	return c.model
}

func (c *OpenAICapability) prompt(req Request) (string, error) {
	return CompactPrompt(req, promptLimits[c.endpointModel(req)])
}

func (c *OpenAICapability) create(ctx context.Context, prompt, aspectRatio string, n int) (openai.ImageResponse, error) {
	return c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.model,
		N:              n,
		Size:           c.size(aspectRatio),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
}

// edit sends the reference as a square PNG, which the edits endpoint requires.
func (c *OpenAICapability) edit(ctx context.Context, ref Reference, prompt string, n int) (openai.ImageResponse, error) {
	square, err := imageutil.SquarePNG(ref.Content, c.maxEdge)
	if err != nil {
		return openai.ImageResponse{}, fmt.Errorf("failed to prepare reference %s: %w", ref.Handle, err)
	}

	file, err := os.CreateTemp(c.tempDir, "reference-*.png")
	if err != nil {
		return openai.ImageResponse{}, err
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if _, err := file.Write(square); err != nil {
		return openai.ImageResponse{}, err
	}
	if _, err := file.Seek(0, 0); err != nil {
		return openai.ImageResponse{}, err
	}

	return c.client.CreateEditImage(ctx, openai.ImageEditRequest{
		Image:          file,
		Prompt:         prompt,
		Model:          openai.CreateImageModelDallE2,
		N:              n,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
}

func (c *OpenAICapability) size(aspectRatio string) string {
	if c.model != openai.CreateImageModelDallE3 {
		return openai.CreateImageSize1024x1024
	}

	switch aspectRatio {
	case "3:2", "4:3", "16:9", "21:9":
		return openai.CreateImageSize1792x1024
	case "2:3", "3:4", "9:16":
		return openai.CreateImageSize1024x1792
	default:
		return openai.CreateImageSize1024x1024
	}
}

func decodeImages(resp openai.ImageResponse) ([]Output, error) {
	outputs := make([]Output, 0, len(resp.Data))
	for i, item := range resp.Data {
		if item.B64JSON == "" {
			continue
		}

		content, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image %d: %w", i+1, err)
		}
		outputs = append(outputs, Output{Content: content, ModelText: item.RevisedPrompt})
	}

	return outputs, nil
}
