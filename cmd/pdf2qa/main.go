// Command pdf2qa converts documents into fine-tuning Q/A pairs through a
// three stage pipeline: parse, extract statements, generate questions and
// answers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jcsk/pdf2qa/config"
	"github.com/jcsk/pdf2qa/costs"
	"github.com/jcsk/pdf2qa/logger"
	"github.com/jcsk/pdf2qa/pipeline"
	"github.com/jcsk/pdf2qa/provider"
)

type cliOptions struct {
	input       string
	configPath  string
	outputDir   string
	jobID       string
	skipParse   bool
	skipExtract bool
	skipQA      bool
	verbose     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pdf2qa",
		Short:         "Convert PDF, DOCX, and TXT documents into fine-tuning Q/A pairs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newProcessCmd())
	return root
}

func newProcessCmd() *cobra.Command {
	opts := cliOptions{}
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run the document processing pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "input document (pdf, docx, doc, or txt)")
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "directory for output artifacts")
	cmd.Flags().StringVarP(&opts.jobID, "job-id", "j", "", "job identifier (defaults to the input filename stem)")
	cmd.Flags().BoolVar(&opts.skipParse, "skip-parse", false, "skip the parsing stage")
	cmd.Flags().BoolVar(&opts.skipExtract, "skip-extract", false, "skip the extraction stage")
	cmd.Flags().BoolVar(&opts.skipQA, "skip-qa", false, "skip the QA generation stage")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runProcess(ctx context.Context, opts cliOptions) error {
	logger.SetVerbose(opts.verbose)

	// Secrets may live in a local .env file; a missing file is fine.
	if err := godotenv.Load(); err == nil {
		logger.Debug("loaded environment from .env")
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.outputDir != "" {
		if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		cfg.RebaseOutputs(opts.outputDir)
	}

	ledger := costs.NewLedger(cfg.Export.CostFile)

	backends, err := buildBackends(cfg, opts)
	if err != nil {
		return err
	}

	p, err := pipeline.New(cfg, backends, ledger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return p.Run(ctx, opts.input, pipeline.RunOptions{
		SkipParse:   opts.skipParse,
		SkipExtract: opts.skipExtract,
		SkipQA:      opts.skipQA,
		JobID:       opts.jobID,
	})
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		cfg := config.Default()
		cfg.ResolveEnv()
		return cfg, nil
	}
	return config.Load(path)
}

// buildBackends constructs real clients for the stages that will run and
// inert stand-ins for skipped stages, so a skipped stage never demands a key.
func buildBackends(cfg config.Config, opts cliOptions) (pipeline.Backends, error) {
	backends := pipeline.Backends{
		Parse:   disabledParseBackend{},
		Extract: disabledCompletionClient{},
		QA:      disabledCompletionClient{},
	}

	if !opts.skipParse {
		parseClient, err := provider.NewLlamaParseClient(cfg.Parser.APIKey,
			provider.WithLanguage(cfg.Parser.Language))
		if err != nil {
			return pipeline.Backends{}, fmt.Errorf("parser backend: %w (set %s)", err, cfg.Parser.APIKeyEnv)
		}
		backends.Parse = parseClient
	}

	if !opts.skipExtract {
		extractClient, err := provider.NewOpenAIClient(cfg.Extractor.APIKey)
		if err != nil {
			return pipeline.Backends{}, fmt.Errorf("extractor backend: %w (set %s)", err, cfg.Extractor.APIKeyEnv)
		}
		backends.Extract = extractClient
	}

	if !opts.skipQA {
		qaClient, err := provider.NewOpenAIClient(cfg.QAGenerator.APIKey)
		if err != nil {
			return pipeline.Backends{}, fmt.Errorf("qa generator backend: %w (set %s)", err, cfg.QAGenerator.APIKeyEnv)
		}
		backends.QA = qaClient
	}

	return backends, nil
}

type disabledParseBackend struct{}

func (disabledParseBackend) ParseFile(context.Context, string) ([]pipeline.PageBlock, error) {
	return nil, errors.New("parsing stage is disabled")
}

type disabledCompletionClient struct{}

func (disabledCompletionClient) Complete(context.Context, pipeline.CompletionRequest) (pipeline.CompletionResult, error) {
	return pipeline.CompletionResult{}, errors.New("completion stage is disabled")
}
