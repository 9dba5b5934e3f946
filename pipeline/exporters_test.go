package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExportChunks_NilSliceWritesEmptyArray(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "content.json")
	require.NoError(t, ExportChunks(path, nil))

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	var chunks []Chunk
	require.NoError(t, json.Unmarshal(b, &chunks))
	require.Empty(t, chunks)
	require.Contains(t, string(b), "[]")
}

func TestExportChunks_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "content.json")
	in := []Chunk{
		NewChunk("first", []int{1}, "Intro"),
		NewChunk("second", []int{2}, ""),
	}
	require.NoError(t, ExportChunks(path, in))

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	var out []Chunk
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, in, out)
}

func TestExportStatements_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "statements.json")
	in := []Statement{NewStatement("fact", []int{3})}
	require.NoError(t, ExportStatements(path, in))

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	var out []Statement
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, in, out)
}

func TestExportQAPairs_ChatFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "qa.jsonl")
	pairs := []QAPair{
		NewQAPair("Q1?", "A1.", []int{1}, "doc.pdf", "s1", nil),
		NewQAPair("Q2?", "A2.", []int{2}, "doc.pdf", "s2", nil),
	}
	require.NoError(t, ExportQAPairs(path, pairs, "chat"))

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	require.Len(t, lines, 2)

	var record ChatRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	require.Len(t, record.Messages, 2)
	require.Equal(t, "user", record.Messages[0].Role)
	require.Equal(t, "Q1?", record.Messages[0].Content)
	require.Equal(t, "assistant", record.Messages[1].Role)
	require.Equal(t, "A1.", record.Messages[1].Content)
}

func TestExportQAPairs_RawFormatKeepsMetadata(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "qa.jsonl")
	pairs := []QAPair{NewQAPair("Q?", "A.", []int{4}, "doc.pdf", "s1", nil)}
	require.NoError(t, ExportQAPairs(path, pairs, "raw"))

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	var record QAPair
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(b))), &record))
	require.Equal(t, "Q?", record.Prompt)
	require.Equal(t, "A.", record.Completion)
	require.Equal(t, "doc.pdf", record.Metadata["source"])
	require.Equal(t, "s1", record.Metadata["statement_id"])
}

func TestExportQAPairs_EmptyInputWritesEmptyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "qa.jsonl")
	require.NoError(t, ExportQAPairs(path, nil, "chat"))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Empty(t, b)
}
