package pipeline

import (
	"fmt"
	"strings"

	"github.com/jcsk/pdf2qa/logger"
	"github.com/jcsk/pdf2qa/pipeline/fileutils"
)

// ExportChunks writes chunks as a JSON array of {id, text, pages, section?}.
func ExportChunks(path string, chunks []Chunk) error {
	logger.Info("exporting %d chunks to %s", len(chunks), path)
	if chunks == nil {
		chunks = []Chunk{}
	}
	if err := fileutils.WriteJSONFileAtomic(path, chunks, true); err != nil {
		return fmt.Errorf("export chunks: %w", err)
	}
	return nil
}

// ExportStatements writes statements as a JSON array of {id, text, pages}.
func ExportStatements(path string, statements []Statement) error {
	logger.Info("exporting %d statements to %s", len(statements), path)
	if statements == nil {
		statements = []Statement{}
	}
	if err := fileutils.WriteJSONFileAtomic(path, statements, true); err != nil {
		return fmt.Errorf("export statements: %w", err)
	}
	return nil
}

// ExportQAPairs writes pairs as JSONL, one record per line. Format "chat"
// emits the messages fine-tuning form; "raw" emits {prompt, completion, metadata}.
func ExportQAPairs(path string, pairs []QAPair, format string) error {
	logger.Info("exporting %d Q/A pairs to %s", len(pairs), path)

	records := make([]any, 0, len(pairs))
	for _, p := range pairs {
		if strings.EqualFold(format, "raw") {
			records = append(records, p)
			continue
		}
		records = append(records, p.ToChatRecord())
	}
	if err := fileutils.WriteJSONLFileAtomic(path, records); err != nil {
		return fmt.Errorf("export qa pairs: %w", err)
	}
	return nil
}
