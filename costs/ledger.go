// Package costs tracks priced external API calls across pipeline runs.
// The ledger is append-only: corrections are new records, never edits.
package costs

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/jcsk/pdf2qa/logger"
	"github.com/jcsk/pdf2qa/pipeline/fileutils"
)

const (
	ServiceCompletion = "openai"
	ServiceParsing    = "llamaparse"
)

// DefaultCompletionModel is the pricing fallback for unknown models.
const DefaultCompletionModel = "gpt-3.5-turbo"

// modelRates are completion prices in USD per 1M tokens.
type modelRates struct {
	Input  float64
	Output float64
}

var completionPricing = map[string]modelRates{
	"gpt-3.5-turbo": {Input: 0.50, Output: 1.50},
	"gpt-4o-mini":   {Input: 0.15, Output: 0.60},
	"gpt-4o":        {Input: 2.50, Output: 10.00},
	"gpt-4":         {Input: 30.00, Output: 60.00},
	"gpt-4-turbo":   {Input: 10.00, Output: 30.00},
}

// parsePricePerPage is the flat parsing-service rate in USD.
const parsePricePerPage = 0.003

// APICall is one priced external call.
type APICall struct {
	Timestamp    string         `json:"timestamp"`
	Service      string         `json:"service"`
	Operation    string         `json:"operation"`
	Model        string         `json:"model,omitempty"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	TotalTokens  int            `json:"total_tokens"`
	CostUSD      float64        `json:"cost_usd"`
	JobID        string         `json:"job_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Bucket accumulates cost over one partition of the call list.
type Bucket struct {
	Cost  float64 `json:"cost"`
	Calls int     `json:"calls"`
}

// ModelBucket additionally tracks token volume.
type ModelBucket struct {
	Cost   float64 `json:"cost"`
	Calls  int     `json:"calls"`
	Tokens int     `json:"tokens"`
}

// Summary is a pure fold over the full call list.
type Summary struct {
	TotalCost  float64                `json:"total_cost"`
	TotalCalls int                    `json:"total_calls"`
	ByService  map[string]Bucket      `json:"by_service"`
	ByModel    map[string]ModelBucket `json:"by_model"`
	ByJob      map[string]Bucket      `json:"by_job"`
}

type snapshot struct {
	Calls   []APICall `json:"calls"`
	Summary Summary   `json:"summary"`
}

// Ledger records priced API calls and persists them as a JSON snapshot.
// Construct one per process with NewLedger and pass it explicitly; restore
// happens at construction, persist at end of run.
type Ledger struct {
	mu    sync.Mutex
	path  string
	calls []APICall
}

// NewLedger creates a ledger backed by the snapshot file at path. A missing or
// corrupt snapshot logs a warning and starts empty; it never fails the run.
func NewLedger(path string) *Ledger {
	l := &Ledger{path: path}
	l.restore()
	return l
}

func (l *Ledger) restore() {
	if l.path == "" {
		return
	}
	b, err := os.ReadFile(l.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("could not load cost file %s: %v", l.path, err)
		}
		return
	}
	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		logger.Warn("could not load cost file %s: %v", l.path, err)
		return
	}
	l.calls = snap.Calls
	logger.Info("loaded %d previous API calls from %s", len(l.calls), l.path)
}

// Persist writes the call list plus a recomputed summary atomically.
func (l *Ledger) Persist() error {
	l.mu.Lock()
	snap := snapshot{
		Calls:   append([]APICall(nil), l.calls...),
		Summary: summarize(l.calls),
	}
	l.mu.Unlock()

	if snap.Calls == nil {
		snap.Calls = []APICall{}
	}
	if err := fileutils.WriteJSONFileAtomic(l.path, snap, true); err != nil {
		return err
	}
	logger.Info("saved cost data to %s", l.path)
	return nil
}

// RecordCompletion appends one completion-service call and returns its cost.
// An unknown model falls back to the default model's rates with a warning.
func (l *Ledger) RecordCompletion(model, operation string, inputTokens, outputTokens int, jobID string, metadata map[string]any) float64 {
	rates, ok := completionPricing[model]
	if !ok {
		logger.Warn("unknown completion model: %s, using %s pricing", model, DefaultCompletionModel)
		rates = completionPricing[DefaultCompletionModel]
	}
	cost := float64(inputTokens)/1_000_000*rates.Input + float64(outputTokens)/1_000_000*rates.Output

	l.append(APICall{
		Timestamp:    time.Now().Format(time.RFC3339),
		Service:      ServiceCompletion,
		Operation:    operation,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		CostUSD:      cost,
		JobID:        jobID,
		Metadata:     metadata,
	})
	logger.Info("completion call: %s - %d tokens - $%.4f", model, inputTokens+outputTokens, cost)
	return cost
}

// RecordParse appends one parsing-service call priced per page and returns its cost.
func (l *Ledger) RecordParse(pages int, jobID string, metadata map[string]any) float64 {
	cost := float64(pages) * parsePricePerPage

	l.append(APICall{
		Timestamp:   time.Now().Format(time.RFC3339),
		Service:     ServiceParsing,
		Operation:   "parse",
		InputTokens: pages, // page count rides in the input-unit field
		TotalTokens: pages,
		CostUSD:     cost,
		JobID:       jobID,
		Metadata:    metadata,
	})
	logger.Info("parse call: %d pages - $%.4f", pages, cost)
	return cost
}

func (l *Ledger) append(call APICall) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

// Calls returns a copy of the full call list.
func (l *Ledger) Calls() []APICall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]APICall(nil), l.calls...)
}

// Summary folds the full call list into per-service/model/job aggregates.
func (l *Ledger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return summarize(l.calls)
}

func summarize(calls []APICall) Summary {
	s := Summary{
		TotalCalls: len(calls),
		ByService:  make(map[string]Bucket),
		ByModel:    make(map[string]ModelBucket),
		ByJob:      make(map[string]Bucket),
	}
	for _, c := range calls {
		s.TotalCost += c.CostUSD

		svc := s.ByService[c.Service]
		svc.Cost += c.CostUSD
		svc.Calls++
		s.ByService[c.Service] = svc

		modelKey := c.Model
		if modelKey == "" {
			modelKey = c.Service + "_default"
		}
		m := s.ByModel[modelKey]
		m.Cost += c.CostUSD
		m.Calls++
		m.Tokens += c.TotalTokens
		s.ByModel[modelKey] = m

		if c.JobID != "" {
			j := s.ByJob[c.JobID]
			j.Cost += c.CostUSD
			j.Calls++
			s.ByJob[c.JobID] = j
		}
	}
	return s
}
