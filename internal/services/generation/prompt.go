package generation

import (
	"bytes"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/productstudio/studio/internal/services/specification"
)

var promptTemplate = template.Must(template.New("generation").Parse(`Please generate the product with these exact ratios.
Exact label of reference.
No metrics on the final image.
{{if .Specification}}
{{.Specification}}
{{end}}{{if .Critical}}
Critical specifications:
{{range .Critical}}{{.}}
{{end}}{{end}}
Pay special attention to:
- Exact color hex codes
- Material properties (transparency, refraction, reflection)
- Geometry and proportions
- Exact curves and angles

DO NOT deviate from ANY specifications.
DO NOT add details to the product not described.

{{.Prompt}}

Aspect ratio {{.AspectRatio}}, {{.Resolution}} resolution.
You must follow all metric descriptions EXACTLY. Product maintains instructed color and exact dimensions.
`))

type promptData struct {
	Specification string
	Critical      []string
	Prompt        string
	AspectRatio   string
	Resolution    string
}

func newPromptData(req Request) promptData {
	return promptData{
		Specification: strings.TrimSpace(req.Specification),
		Critical:      specification.ParseDocument(req.Specification).CriticalSpecs(),
		Prompt:        strings.TrimSpace(req.Prompt),
		AspectRatio:   req.AspectRatio,
		Resolution:    req.Resolution,
	}
}

func render(data promptData) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// BuildPrompt assembles the text sent to an image model from the pinned
// specification content and the user's prompt.
func BuildPrompt(req Request) (string, error) {
	return render(newPromptData(req))
}

// CompactPrompt fits the prompt into limit bytes for models that cap the
// length. The full document goes first, then the tail is cut.
func CompactPrompt(req Request, limit int) (string, error) {
	data := newPromptData(req)

	prompt, err := render(data)
	if err != nil || limit <= 0 || len(prompt) <= limit {
		return prompt, err
	}

	data.Specification = ""
	prompt, err = render(data)
	if err != nil || len(prompt) <= limit {
		return prompt, err
	}

	return truncate(prompt, limit), nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
