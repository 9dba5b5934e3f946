package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jcsk/pdf2qa/costs"
)

func newTestLedger(t *testing.T) *costs.Ledger {
	t.Helper()
	return costs.NewLedger(filepath.Join(t.TempDir(), "costs.json"))
}

func TestParser_MissingFile(t *testing.T) {
	t.Parallel()

	p, err := NewParser(&fakeParseBackend{}, newTestLedger(t))
	require.NoError(t, err)

	_, err = p.Parse(context.Background(), NewDocument("/no/such/file.pdf", nil), "job-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestParser_UnsupportedFileType(t *testing.T) {
	t.Parallel()

	path := writeTempDoc(t, "data.csv", "a,b,c")
	p, err := NewParser(&fakeParseBackend{}, newTestLedger(t))
	require.NoError(t, err)

	_, err = p.Parse(context.Background(), NewDocument(path, nil), "job-1")
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestParser_BackendErrorPropagates(t *testing.T) {
	t.Parallel()

	path := writeTempDoc(t, "doc.pdf", "content")
	backend := &fakeParseBackend{err: errors.New("service unavailable")}
	p, err := NewParser(backend, newTestLedger(t))
	require.NoError(t, err)

	_, err = p.Parse(context.Background(), NewDocument(path, nil), "job-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "service unavailable")
}

func TestParser_PageResolutionOrder(t *testing.T) {
	t.Parallel()

	path := writeTempDoc(t, "doc.txt", "content")
	backend := &fakeParseBackend{blocks: []PageBlock{
		{Text: "labeled", Metadata: map[string]any{"page_label": "12", "page": 3}},
		{Text: "numbered", Metadata: map[string]any{"page": 7}},
		{Text: "float page", Metadata: map[string]any{"page": 4.0}},
		{Text: "bare", Metadata: map[string]any{}},
		{Text: "roman label", Metadata: map[string]any{"page_label": "iv", "page": 9}},
	}}
	ledger := newTestLedger(t)
	p, err := NewParser(backend, ledger)
	require.NoError(t, err)

	chunks, err := p.Parse(context.Background(), NewDocument(path, nil), "job-1")
	require.NoError(t, err)
	require.Len(t, chunks, 5)

	require.Equal(t, []int{12}, chunks[0].Pages, "integer page_label wins")
	require.Equal(t, []int{7}, chunks[1].Pages, "page used when no label")
	require.Equal(t, []int{4}, chunks[2].Pages, "whole float page accepted")
	require.Equal(t, []int{4}, chunks[3].Pages, "1-based position fallback")
	require.Equal(t, []int{9}, chunks[4].Pages, "non-integer label falls through to page")
}

func TestParser_RecordsParseCostPerBlock(t *testing.T) {
	t.Parallel()

	path := writeTempDoc(t, "doc.pdf", "content")
	backend := &fakeParseBackend{blocks: []PageBlock{
		{Text: "p1"}, {Text: "p2"}, {Text: "p3"},
	}}
	ledger := newTestLedger(t)
	p, err := NewParser(backend, ledger)
	require.NoError(t, err)

	_, err = p.Parse(context.Background(), NewDocument(path, nil), "job-1")
	require.NoError(t, err)

	calls := ledger.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, costs.ServiceParsing, calls[0].Service)
	require.Equal(t, 3, calls[0].InputTokens)
	require.Equal(t, "job-1", calls[0].JobID)
}

func TestParser_SplitsOversizedBlocks(t *testing.T) {
	t.Parallel()

	path := writeTempDoc(t, "doc.pdf", "content")
	long := strings.Repeat("A sentence that fills space. ", 30)
	backend := &fakeParseBackend{blocks: []PageBlock{
		{Text: long, Metadata: map[string]any{"page": 2, "section": "Intro"}},
	}}
	p, err := NewParser(backend, newTestLedger(t), WithChunkSize(200), WithChunkOverlap(0))
	require.NoError(t, err)

	chunks, err := p.Parse(context.Background(), NewDocument(path, nil), "job-1")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		require.LessOrEqual(t, len(c.Text), 200)
		require.Equal(t, []int{2}, c.Pages, "split chunks inherit the source page")
		require.Equal(t, "Intro", c.Section)
		require.True(t, strings.HasPrefix(c.ID, "chunk-"))
	}
}

func TestParser_BlockWithinLimitStaysWhole(t *testing.T) {
	t.Parallel()

	path := writeTempDoc(t, "doc.docx", "content")
	backend := &fakeParseBackend{blocks: []PageBlock{
		{Text: "Short page text.", Metadata: map[string]any{"page": 1}},
	}}
	p, err := NewParser(backend, newTestLedger(t))
	require.NoError(t, err)

	chunks, err := p.Parse(context.Background(), NewDocument(path, nil), "job-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "Short page text.", chunks[0].Text)
}
