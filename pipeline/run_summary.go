package pipeline

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/jcsk/pdf2qa/costs"
	"github.com/jcsk/pdf2qa/logger"
	"github.com/jcsk/pdf2qa/pipeline/fileutils"
)

// OutputFile records one produced artifact.
type OutputFile struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	CreatedAt string `json:"created_at"`
}

// RunSummary collects timing, throughput, cost, and output metrics for one
// job. It is created at run start, mutated by stage callbacks, finalized once,
// then serialized.
type RunSummary struct {
	JobID     string
	InputPath string

	StartTime time.Time
	EndTime   time.Time

	DocumentSizeBytes int64
	EstimatedPages    int

	ChunksCreated       int
	StatementsExtracted int
	QAPairsGenerated    int

	ProcessingSeconds   float64
	ParsingSeconds      float64
	ExtractionSeconds   float64
	QAGenerationSeconds float64

	TotalCostUSD      float64
	ParseCostUSD      float64
	CompletionCostUSD float64
	CompletionTokens  int

	OutputFiles map[string]OutputFile

	stageStart time.Time
	finalized  bool
}

// NewRunSummary starts a summary for one job, capturing document size up front.
func NewRunSummary(jobID, inputPath string) *RunSummary {
	s := &RunSummary{
		JobID:       jobID,
		InputPath:   inputPath,
		StartTime:   time.Now(),
		OutputFiles: map[string]OutputFile{},
	}
	if fi, err := os.Stat(inputPath); err == nil {
		s.DocumentSizeBytes = fi.Size()
	} else {
		logger.Warn("could not analyze input document: %v", err)
	}
	return s
}

// StartStage begins timing a stage.
func (s *RunSummary) StartStage(name string) {
	s.stageStart = time.Now()
	logger.Debug("started stage: %s", name)
}

// EndStage stops the running stage timer and returns its duration in seconds.
func (s *RunSummary) EndStage(name string) float64 {
	if s.stageStart.IsZero() {
		return 0
	}
	d := time.Since(s.stageStart).Seconds()
	s.stageStart = time.Time{}
	logger.Debug("completed stage: %s in %.2fs", name, d)
	return d
}

// RecordParsing stores parse-stage output counts. Estimated pages is the size
// of the union of chunk page lists.
func (s *RunSummary) RecordParsing(chunks []Chunk, seconds float64) {
	s.ChunksCreated = len(chunks)
	s.ParsingSeconds = seconds

	pages := map[int]struct{}{}
	for _, c := range chunks {
		for _, p := range c.Pages {
			pages[p] = struct{}{}
		}
	}
	s.EstimatedPages = len(pages)
	logger.Info("parsing: %d chunks, %d pages, %.2fs", s.ChunksCreated, s.EstimatedPages, seconds)
}

// RecordExtraction stores extraction-stage output counts.
func (s *RunSummary) RecordExtraction(statements []Statement, seconds float64) {
	s.StatementsExtracted = len(statements)
	s.ExtractionSeconds = seconds
	logger.Info("extraction: %d statements, %.2fs", s.StatementsExtracted, seconds)
}

// RecordQA stores generation-stage output counts.
func (s *RunSummary) RecordQA(pairs []QAPair, seconds float64) {
	s.QAPairsGenerated = len(pairs)
	s.QAGenerationSeconds = seconds
	logger.Info("QA generation: %d pairs, %.2fs", s.QAPairsGenerated, seconds)
}

// RecordOutputFile registers a produced artifact by kind.
func (s *RunSummary) RecordOutputFile(kind, path string) {
	var size int64
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}
	s.OutputFiles[kind] = OutputFile{
		Path:      path,
		SizeBytes: size,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
}

// Finalize pulls the job-filtered cost snapshot from the ledger and computes
// totals. A second call is a no-op so the summary can never be finalized
// twice with different cost numbers.
func (s *RunSummary) Finalize(ledger *costs.Ledger) {
	if s.finalized {
		return
	}
	s.finalized = true

	s.EndTime = time.Now()
	s.ProcessingSeconds = s.EndTime.Sub(s.StartTime).Seconds()

	for _, call := range ledger.Calls() {
		if call.JobID != s.JobID {
			continue
		}
		s.TotalCostUSD += call.CostUSD
		switch call.Service {
		case costs.ServiceParsing:
			s.ParseCostUSD += call.CostUSD
		case costs.ServiceCompletion:
			s.CompletionCostUSD += call.CostUSD
			s.CompletionTokens += call.TotalTokens
		}
	}

	logger.Info("processing completed: %.2fs, $%.4f", s.ProcessingSeconds, s.TotalCostUSD)
}

// ToMap renders the summary as the nested artifact shape.
func (s *RunSummary) ToMap() map[string]any {
	endTime := ""
	if !s.EndTime.IsZero() {
		endTime = s.EndTime.Format(time.RFC3339)
	}
	return map[string]any{
		"job_id": s.JobID,
		"input_document": map[string]any{
			"path":            s.InputPath,
			"size_bytes":      s.DocumentSizeBytes,
			"estimated_pages": s.EstimatedPages,
		},
		"processing_metrics": map[string]any{
			"start_time":                 s.StartTime.Format(time.RFC3339),
			"end_time":                   endTime,
			"total_time_seconds":         s.ProcessingSeconds,
			"parsing_time_seconds":       s.ParsingSeconds,
			"extraction_time_seconds":    s.ExtractionSeconds,
			"qa_generation_time_seconds": s.QAGenerationSeconds,
		},
		"output_metrics": map[string]any{
			"chunks_created":         s.ChunksCreated,
			"statements_extracted":   s.StatementsExtracted,
			"qa_pairs_generated":     s.QAPairsGenerated,
			"statements_per_chunk":   round2(ratio(s.StatementsExtracted, s.ChunksCreated)),
			"qa_pairs_per_statement": round2(ratio(s.QAPairsGenerated, s.StatementsExtracted)),
		},
		"cost_metrics": map[string]any{
			"total_cost_usd":      round4(s.TotalCostUSD),
			"llamaparse_cost_usd": round4(s.ParseCostUSD),
			"openai_cost_usd":     round4(s.CompletionCostUSD),
			"openai_tokens_used":  s.CompletionTokens,
			"cost_per_page":       round4(s.TotalCostUSD / float64(max(s.EstimatedPages, 1))),
			"cost_per_qa_pair":    round4(s.TotalCostUSD / float64(max(s.QAPairsGenerated, 1))),
		},
		"performance_metrics": map[string]any{
			"pages_per_second":      round2(float64(s.EstimatedPages) / math.Max(s.ProcessingSeconds, 1)),
			"chunks_per_second":     round2(float64(s.ChunksCreated) / math.Max(s.ParsingSeconds, 1)),
			"statements_per_second": round2(float64(s.StatementsExtracted) / math.Max(s.ExtractionSeconds, 1)),
			"qa_pairs_per_second":   round2(float64(s.QAPairsGenerated) / math.Max(s.QAGenerationSeconds, 1)),
		},
		"output_files": s.OutputFiles,
	}
}

// SaveToFile writes the summary artifact as indented JSON.
func (s *RunSummary) SaveToFile(path string) error {
	if err := fileutils.WriteJSONFileAtomic(path, s.ToMap(), true); err != nil {
		return fmt.Errorf("save summary to %s: %w", path, err)
	}
	logger.Info("processing summary saved to: %s", path)
	return nil
}

// PrintSummary writes a formatted run report to stdout.
func (s *RunSummary) PrintSummary() {
	rule := strings.Repeat("=", 80)
	fmt.Println()
	fmt.Println(rule)
	color.New(color.Bold).Println("PROCESSING SUMMARY")
	fmt.Println(rule)
	fmt.Printf("Job ID: %s\n", s.JobID)
	fmt.Printf("Document: %s\n", filepath.Base(s.InputPath))
	fmt.Printf("Size: %d bytes (%d pages)\n", s.DocumentSizeBytes, s.EstimatedPages)

	fmt.Println("\nProcessing Time:")
	fmt.Printf("   Total: %.2fs\n", s.ProcessingSeconds)
	fmt.Printf("   Parsing: %.2fs\n", s.ParsingSeconds)
	fmt.Printf("   Extraction: %.2fs\n", s.ExtractionSeconds)
	fmt.Printf("   QA Generation: %.2fs\n", s.QAGenerationSeconds)

	fmt.Println("\nOutput Metrics:")
	fmt.Printf("   Chunks: %d\n", s.ChunksCreated)
	fmt.Printf("   Statements: %d\n", s.StatementsExtracted)
	fmt.Printf("   Q/A Pairs: %d\n", s.QAPairsGenerated)

	fmt.Println("\nCost Breakdown:")
	color.Green("   Total: $%.4f", s.TotalCostUSD)
	fmt.Printf("   Parsing: $%.4f\n", s.ParseCostUSD)
	fmt.Printf("   Completion: $%.4f (%d tokens)\n", s.CompletionCostUSD, s.CompletionTokens)

	fmt.Println("\nOutput Files:")
	for kind, info := range s.OutputFiles {
		fmt.Printf("   %s: %s (%.1f KB)\n", kind, info.Path, float64(info.SizeBytes)/1024)
	}
	fmt.Println(rule)
}

func ratio(num, den int) float64 {
	return float64(num) / float64(max(den, 1))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
