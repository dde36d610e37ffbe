package generation

import "context"

// Reference is one pinned reference image handed to a capability, primary first.
type Reference struct {
	Handle   string
	MimeType string
	Content  []byte
}

type Request struct {
	JobID         string
	Specification string
	References    []Reference
	Prompt        string
	AspectRatio   string
	Resolution    string
	Count         int
}

// Output is one generated image. ModelText carries whatever text the model
// returned alongside it, such as a revised prompt.
type Output struct {
	Content   []byte
	ModelText string
}

// Capability produces images for a request. It may return fewer outputs than
// requested, fail, or run until ctx expires.
type Capability interface {
	Generate(ctx context.Context, req Request) ([]Output, error)
}

type CapabilityFunc func(ctx context.Context, req Request) ([]Output, error)

func (f CapabilityFunc) Generate(ctx context.Context, req Request) ([]Output, error) {
	return f(ctx, req)
}
