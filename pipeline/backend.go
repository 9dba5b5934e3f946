package pipeline

import "context"

// Message is one role-tagged message in a completion request.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest describes one call to the completion backend.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Usage carries token counts when the backend reports them.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// CompletionResult is the text plus optional usage from one completion call.
type CompletionResult struct {
	Text  string
	Usage *Usage
}

// CompletionClient is the completion backend: one synchronous call per request.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// PageBlock is one per-page text block returned by the parsing backend. The
// metadata map may contain page_label, page, and/or section.
type PageBlock struct {
	Text     string
	Metadata map[string]any
}

// ParseBackend is the document parsing service: one synchronous call per document.
type ParseBackend interface {
	ParseFile(ctx context.Context, path string) ([]PageBlock, error)
}
