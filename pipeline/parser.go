package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jcsk/pdf2qa/costs"
	"github.com/jcsk/pdf2qa/logger"
)

// ErrNotFound reports a missing input document.
var ErrNotFound = errors.New("document file not found")

// ErrUnsupportedType reports an input file type outside the supported set.
var ErrUnsupportedType = errors.New("unsupported document type")

var supportedFileTypes = map[string]struct{}{
	"pdf":  {},
	"docx": {},
	"doc":  {},
	"txt":  {},
}

// Parser turns a document into page-tagged chunks via the parsing backend,
// splitting oversized pages with ChunkText.
type Parser struct {
	backend      ParseBackend
	ledger       *costs.Ledger
	chunkSize    int
	chunkOverlap int
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithChunkSize sets the maximum chunk size in characters.
func WithChunkSize(size int) ParserOption {
	return func(p *Parser) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithChunkOverlap sets the overlap between split chunks in characters.
func WithChunkOverlap(overlap int) ParserOption {
	return func(p *Parser) {
		if overlap >= 0 {
			p.chunkOverlap = overlap
		}
	}
}

// NewParser creates a Parser over the given backend and cost ledger.
func NewParser(backend ParseBackend, ledger *costs.Ledger, opts ...ParserOption) (*Parser, error) {
	if backend == nil {
		return nil, errors.New("NewParser: backend is nil")
	}
	if ledger == nil {
		return nil, errors.New("NewParser: ledger is nil")
	}
	p := &Parser{
		backend:      backend,
		ledger:       ledger,
		chunkSize:    1500,
		chunkOverlap: 200,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Parse converts a document into ordered chunks. Backend errors are logged and
// propagated; parsing has no degraded mode since it is the content source.
func (p *Parser) Parse(ctx context.Context, doc Document, jobID string) ([]Chunk, error) {
	if !doc.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, doc.Path)
	}
	if _, ok := supportedFileTypes[doc.FileType()]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, doc.FileType())
	}

	logger.Info("parsing document: %s", doc.Path)

	blocks, err := p.backend.ParseFile(ctx, doc.Path)
	if err != nil {
		logger.Error("error parsing document: %v", err)
		return nil, fmt.Errorf("parse %s: %w", doc.Path, err)
	}

	p.ledger.RecordParse(len(blocks), jobID, map[string]any{"path": doc.Path})

	var chunks []Chunk
	for i, block := range blocks {
		pages := []int{pageForBlock(block, i)}
		section := sectionForBlock(block)

		if len(block.Text) > p.chunkSize {
			for _, piece := range ChunkText(block.Text, p.chunkSize, p.chunkOverlap) {
				chunks = append(chunks, NewChunk(piece, pages, section))
			}
			continue
		}
		chunks = append(chunks, NewChunk(block.Text, pages, section))
	}

	logger.Info("parsed document into %d chunks", len(chunks))
	return chunks, nil
}

// pageForBlock resolves a block's page number: integer-parseable page_label,
// then integer page, then the 1-based block position.
func pageForBlock(block PageBlock, position int) int {
	if v, ok := block.Metadata["page_label"]; ok {
		if page, ok := asInt(v); ok {
			return page
		}
	}
	if v, ok := block.Metadata["page"]; ok {
		if page, ok := asInt(v); ok {
			return page
		}
	}
	return position + 1
}

func sectionForBlock(block PageBlock) string {
	if v, ok := block.Metadata["section"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed, true
		}
	}
	return 0, false
}
