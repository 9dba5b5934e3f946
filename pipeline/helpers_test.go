package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeParseBackend returns scripted page blocks.
type fakeParseBackend struct {
	blocks []PageBlock
	err    error
	calls  int
}

func (f *fakeParseBackend) ParseFile(ctx context.Context, path string) ([]PageBlock, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.blocks, nil
}

// fakeCompletionClient replays scripted results in call order. When failAt is
// nonzero, the call with that 1-based ordinal fails.
type fakeCompletionClient struct {
	results  []CompletionResult
	failAt   int
	failWith error
	calls    int
	requests []CompletionRequest
}

func (f *fakeCompletionClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	f.calls++
	f.requests = append(f.requests, req)
	if f.failAt != 0 && f.calls == f.failAt {
		return CompletionResult{}, f.failWith
	}
	if len(f.results) == 0 {
		return CompletionResult{Text: "ok"}, nil
	}
	idx := f.calls - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx], nil
}

// writeTempDoc creates a real input file so existence checks pass.
func writeTempDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
