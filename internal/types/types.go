package types

const (
	DefaultAspectRatio = "1:1"
	DefaultResolution  = "2K"

	MinImageCount = 1
	MaxImageCount = 10
)

var AspectRatios = []string{"1:1", "2:3", "3:2", "3:4", "4:3", "9:16", "16:9", "21:9"}

var Resolutions = []string{"1K", "2K", "4K"}

// Request from client
type GenerateParamsRequest struct {
	Prompt               string  `json:"prompt" msgpack:"prompt"`
	CustomPromptOverride string  `json:"custom_prompt_override,omitempty" msgpack:"custom_prompt_override,omitempty"`
	AspectRatio          string  `json:"aspect_ratio" msgpack:"aspect_ratio"`
	Resolution           string  `json:"resolution" msgpack:"resolution"`
	ImageCount           int     `json:"image_count" msgpack:"image_count"`
	SpecificationID      *string `json:"specification_id,omitempty" msgpack:"specification_id,omitempty"`
}

// Dispatched on the generation topic, one per submitted job
type DispatchMessage struct {
	JobID      string `msgpack:"job_id"`
	EnqueuedAt int64  `msgpack:"enqueued_at"`
}

type GenerationResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
