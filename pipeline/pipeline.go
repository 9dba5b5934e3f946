package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jcsk/pdf2qa/config"
	"github.com/jcsk/pdf2qa/costs"
	"github.com/jcsk/pdf2qa/logger"
)

// ErrStageOrder reports a stage-dependency violation: a later stage cannot run
// when an earlier required stage was skipped, since no intermediate cache exists.
var ErrStageOrder = errors.New("stage ordering violation")

// Backends are the external collaborators a Pipeline runs against.
type Backends struct {
	Parse   ParseBackend
	Extract CompletionClient
	QA      CompletionClient
}

// RunOptions controls one pipeline invocation.
type RunOptions struct {
	SkipParse   bool
	SkipExtract bool
	SkipQA      bool

	// JobID identifies the run; defaults to the input filename stem.
	JobID string
}

// Pipeline owns stage sequencing, output path derivation, and the summary and
// ledger lifecycle for each run.
type Pipeline struct {
	cfg       config.Config
	parser    *Parser
	extractor *Extractor
	generator *QAGenerator
	ledger    *costs.Ledger
}

// New wires a Pipeline from configuration, backends, and a cost ledger.
// Construction errors (invalid config, bad schema file) are fatal.
func New(cfg config.Config, backends Backends, ledger *costs.Ledger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	if ledger == nil {
		return nil, errors.New("New: ledger is nil")
	}

	parser, err := NewParser(backends.Parse, ledger,
		WithChunkSize(cfg.Parser.ChunkSize),
		WithChunkOverlap(cfg.Parser.ChunkOverlap),
	)
	if err != nil {
		return nil, err
	}

	extractorOpts := []ExtractorOption{WithExtractorModel(cfg.Extractor.Model)}
	if cfg.Extractor.SchemaPath != "" {
		extractorOpts = append(extractorOpts, WithSchemaFile(cfg.Extractor.SchemaPath))
	}
	extractor, err := NewExtractor(backends.Extract, ledger, extractorOpts...)
	if err != nil {
		return nil, err
	}

	generator, err := NewQAGenerator(backends.QA, ledger,
		WithQAModel(cfg.QAGenerator.Model),
		WithTemperature(cfg.QAGenerator.Temperature),
		WithMaxTokens(cfg.QAGenerator.MaxTokens),
		WithBatchSize(cfg.QAGenerator.BatchSize),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("pipeline initialized")
	return &Pipeline{
		cfg:       cfg,
		parser:    parser,
		extractor: extractor,
		generator: generator,
		ledger:    ledger,
	}, nil
}

// Generator exposes the QA generator for option overrides in tests.
func (p *Pipeline) Generator() *QAGenerator { return p.generator }

// Run drives the three stages over one input document. Stage-ordering
// violations halt the run before the dependent stage produces any output.
func (p *Pipeline) Run(ctx context.Context, inputPath string, opts RunOptions) error {
	doc := NewDocument(inputPath, nil)

	jobID := opts.JobID
	if jobID == "" {
		jobID = JobIDFromPath(inputPath)
	}

	logger.Info("starting pipeline for input: %s with job ID: %s", inputPath, jobID)
	summary := NewRunSummary(jobID, inputPath)

	var chunks []Chunk
	if !opts.SkipParse {
		logger.Info("starting parsing stage")
		summary.StartStage("parse")
		var err error
		chunks, err = p.parser.Parse(ctx, doc, jobID)
		if err != nil {
			return err
		}
		summary.RecordParsing(chunks, summary.EndStage("parse"))

		contentPath := DeriveOutputPath(p.cfg.Export.ContentPath, jobID)
		if err := ExportChunks(contentPath, chunks); err != nil {
			return err
		}
		summary.RecordOutputFile("content", contentPath)
		logger.Info("content exported to: %s", contentPath)
	}

	var statements []Statement
	if !opts.SkipExtract {
		if opts.SkipParse {
			logger.Error("cannot skip parsing stage if extraction stage is enabled")
			return fmt.Errorf("%w: extraction requires chunks from this run's parse", ErrStageOrder)
		}
		logger.Info("starting extraction stage")
		summary.StartStage("extract")
		statements = p.extractor.Extract(ctx, chunks, jobID)
		summary.RecordExtraction(statements, summary.EndStage("extract"))
	}

	if !opts.SkipQA {
		if opts.SkipExtract {
			logger.Error("cannot skip extraction stage if QA generation stage is enabled")
			return fmt.Errorf("%w: QA generation requires statements from this run's extraction", ErrStageOrder)
		}
		logger.Info("starting QA generation stage")
		summary.StartStage("generate")
		pairs := p.generator.Generate(ctx, statements, doc.Path, jobID)
		summary.RecordQA(pairs, summary.EndStage("generate"))

		qaPath := DeriveOutputPath(p.cfg.Export.QAJSONLPath, jobID)
		if err := ExportQAPairs(qaPath, pairs, p.cfg.Export.QAFormat); err != nil {
			return err
		}
		summary.RecordOutputFile("qa_pairs", qaPath)
		logger.Info("QA pairs exported to: %s", qaPath)
	}

	p.finish(summary, jobID)
	return nil
}

// finish closes out the run: finalize the summary against the ledger, write
// both artifacts (best-effort), and print both reports.
func (p *Pipeline) finish(summary *RunSummary, jobID string) {
	summary.Finalize(p.ledger)

	if p.cfg.Export.SummaryPath != "" {
		summaryPath := DeriveOutputPath(p.cfg.Export.SummaryPath, jobID)
		if err := summary.SaveToFile(summaryPath); err != nil {
			logger.Error("failed to save summary: %v", err)
		}
	}
	if err := p.ledger.Persist(); err != nil {
		logger.Error("could not save cost file: %v", err)
	}

	summary.PrintSummary()
	p.ledger.PrintSummary()
}

// JobIDFromPath derives the default job id: the input filename stem.
func JobIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DeriveOutputPath inserts _<jobID> before the final extension of path. The
// derivation is deterministic and idempotent: the same base path and job id
// always yield the same output path.
func DeriveOutputPath(path, jobID string) string {
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	suffix := "_" + jobID
	if strings.HasSuffix(stem, suffix) {
		return filepath.Join(dir, stem+ext)
	}
	return filepath.Join(dir, stem+suffix+ext)
}
