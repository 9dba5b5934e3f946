// Package pipeline converts source documents into fine-tuning-ready
// question/answer pairs through three stages: parse, extract, generate.
package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jcsk/pdf2qa/pipeline/fileutils"
)

// Document identifies one input file plus arbitrary metadata.
// Immutable after construction.
type Document struct {
	Path     string
	Metadata map[string]any
}

// NewDocument creates a Document for the file at path.
func NewDocument(path string, metadata map[string]any) Document {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Document{Path: path, Metadata: metadata}
}

// FileType is the lowercase extension without the leading dot.
func (d Document) FileType() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(d.Path)), ".")
}

// Exists reports whether the document file exists.
func (d Document) Exists() bool {
	return fileutils.FileExists(d.Path)
}

// Chunk is a contiguous piece of extracted text carrying page provenance.
type Chunk struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Pages   []int  `json:"pages"`
	Section string `json:"section,omitempty"`
}

// NewChunk creates a Chunk, generating an id when none is supplied.
func NewChunk(text string, pages []int, section string) Chunk {
	return Chunk{
		ID:      "chunk-" + uuid.New().String(),
		Text:    text,
		Pages:   pages,
		Section: section,
	}
}

// Statement is one factual assertion extracted from a chunk.
type Statement struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Pages []int  `json:"pages"`
}

// NewStatement creates a Statement, generating an id when none is supplied.
func NewStatement(text string, pages []int) Statement {
	return Statement{
		ID:    "statement-" + uuid.New().String(),
		Text:  text,
		Pages: pages,
	}
}

// QAPair is one training example: a question prompt, an answer completion,
// and provenance metadata.
type QAPair struct {
	Prompt     string         `json:"prompt"`
	Completion string         `json:"completion"`
	Metadata   map[string]any `json:"metadata"`
}

// NewQAPair builds a pair whose metadata carries pages, source document
// identifier, and originating statement id, merged with any extras.
func NewQAPair(prompt, completion string, pages []int, source, statementID string, extra map[string]any) QAPair {
	md := map[string]any{
		"pages":        pages,
		"source":       source,
		"statement_id": statementID,
	}
	for k, v := range extra {
		md[k] = v
	}
	return QAPair{Prompt: prompt, Completion: completion, Metadata: md}
}

// ChatMessage is one role-tagged message in the chat export form.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRecord is the chat-style fine-tuning representation of a QAPair.
type ChatRecord struct {
	Messages []ChatMessage `json:"messages"`
}

// ToChatRecord converts the pair to the chat fine-tuning form.
func (q QAPair) ToChatRecord() ChatRecord {
	return ChatRecord{
		Messages: []ChatMessage{
			{Role: "user", Content: q.Prompt},
			{Role: "assistant", Content: q.Completion},
		},
	}
}
