package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jcsk/pdf2qa/costs"
	"github.com/jcsk/pdf2qa/logger"
	"github.com/jcsk/pdf2qa/pipeline/fileutils"
)

// Extractor pulls structured factual statements out of chunks via the
// completion backend. Chunk failures degrade to a synthetic placeholder
// statement so the pipeline can always proceed.
type Extractor struct {
	client CompletionClient
	ledger *costs.Ledger
	model  string
	schema map[string]any
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor) error

// WithExtractorModel sets the completion model used for extraction.
func WithExtractorModel(model string) ExtractorOption {
	return func(e *Extractor) error {
		if model != "" {
			e.model = model
		}
		return nil
	}
}

// WithSchemaFile replaces the default statement schema with one loaded from a
// JSON file. A missing or malformed file is a construction error.
func WithSchemaFile(path string) ExtractorOption {
	return func(e *Extractor) error {
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read schema file: %w", err)
		}
		var schema map[string]any
		if err := json.Unmarshal(b, &schema); err != nil {
			return fmt.Errorf("parse schema file %s: %w", path, err)
		}
		e.schema = schema
		return nil
	}
}

// NewExtractor creates an Extractor over the given backend and cost ledger.
func NewExtractor(client CompletionClient, ledger *costs.Ledger, opts ...ExtractorOption) (*Extractor, error) {
	if client == nil {
		return nil, fmt.Errorf("NewExtractor: client is nil")
	}
	if ledger == nil {
		return nil, fmt.Errorf("NewExtractor: ledger is nil")
	}
	e := &Extractor{
		client: client,
		ledger: ledger,
		model:  "gpt-3.5-turbo",
		schema: generateSchema[statementResult](),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("NewExtractor: %w", err)
		}
	}
	return e, nil
}

// Extract produces statements for every chunk, in chunk order. One chunk's
// failure never aborts extraction of the others.
func (e *Extractor) Extract(ctx context.Context, chunks []Chunk, jobID string) []Statement {
	logger.Info("extracting statements from %d chunks", len(chunks))

	var statements []Statement
	for _, chunk := range chunks {
		for _, result := range e.extractChunk(ctx, chunk, jobID) {
			if result.Statement == "" {
				logger.Warn("skipping extraction result without statement text (chunk %s)", chunk.ID)
				continue
			}
			pages := chunk.Pages
			if result.Page != 0 {
				pages = []int{result.Page}
			}
			statements = append(statements, NewStatement(result.Statement, pages))
		}
	}

	logger.Info("extracted %d statements", len(statements))
	return statements
}

// extractChunk asks the backend for a JSON array of statement objects. Any
// backend error, parse failure, or empty response yields exactly one
// placeholder result.
func (e *Extractor) extractChunk(ctx context.Context, chunk Chunk, jobID string) []statementResult {
	resp, err := e.client.Complete(ctx, CompletionRequest{
		Model:       e.model,
		Messages:    []Message{{Role: "user", Content: e.buildPrompt(chunk.Text)}},
		Temperature: 0.0,
		MaxTokens:   1000,
	})
	if err != nil {
		logger.Error("error extracting statements from chunk %s: %v", chunk.ID, err)
		return []statementResult{placeholderResult(chunk)}
	}

	if resp.Usage != nil {
		e.ledger.RecordCompletion(e.model, "extraction", resp.Usage.InputTokens, resp.Usage.OutputTokens, jobID, map[string]any{
			"text_length": len(chunk.Text),
			"pages":       chunk.Pages,
		})
	}

	var results []statementResult
	if err := fileutils.DecodeModelJSONArray(resp.Text, &results); err != nil {
		logger.Warn("failed to parse JSON from extraction response (chunk %s): %v: %s",
			chunk.ID, err, fileutils.Truncate(resp.Text, 120))
		return []statementResult{placeholderResult(chunk)}
	}
	if len(results) == 0 {
		return []statementResult{placeholderResult(chunk)}
	}

	for i := range results {
		if results[i].Page == 0 {
			results[i].Page = firstPage(chunk)
		}
	}
	return results
}

func (e *Extractor) buildPrompt(text string) string {
	schemaJSON, err := json.MarshalIndent(e.schema, "", "  ")
	if err != nil {
		schemaJSON = []byte("{}")
	}
	return fmt.Sprintf(`Extract factual statements from the following text according to this schema:

%s

Text:
%s

Return a JSON array of statements that follow the schema.
Each statement should be a clear, concise factual statement from the text.`, schemaJSON, text)
}

func placeholderResult(chunk Chunk) statementResult {
	return statementResult{
		Statement: fmt.Sprintf("Sample statement extracted from text of length %d.", len(chunk.Text)),
		Page:      firstPage(chunk),
	}
}

func firstPage(chunk Chunk) int {
	if len(chunk.Pages) > 0 {
		return chunk.Pages[0]
	}
	return 1
}
