package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jcsk/pdf2qa/config"
	"github.com/jcsk/pdf2qa/pipeline"
)

func TestProcessCmd_RegistersAllFlags(t *testing.T) {
	t.Parallel()

	cmd := newProcessCmd()
	for _, name := range []string{
		"input", "config", "output-dir", "job-id",
		"skip-parse", "skip-extract", "skip-qa", "verbose",
	} {
		require.NotNil(t, cmd.Flags().Lookup(name), "flag --%s", name)
	}
}

func TestBuildBackends_SkippedStagesNeedNoKeys(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	backends, err := buildBackends(cfg, cliOptions{
		skipParse: true, skipExtract: true, skipQA: true,
	})
	require.NoError(t, err)

	// The stand-ins are present but refuse to be called.
	_, err = backends.Parse.ParseFile(context.Background(), "doc.pdf")
	require.Error(t, err)

	_, err = backends.Extract.Complete(context.Background(), pipeline.CompletionRequest{})
	require.Error(t, err)

	_, err = backends.QA.Complete(context.Background(), pipeline.CompletionRequest{})
	require.Error(t, err)
}

func TestBuildBackends_EnabledStageRequiresKey(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Parser.APIKey = ""

	_, err := buildBackends(cfg, cliOptions{skipExtract: true, skipQA: true})
	require.Error(t, err)
	require.Contains(t, err.Error(), cfg.Parser.APIKeyEnv)
}

func TestBuildBackends_RealClientsForEnabledStages(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Parser.APIKey = "llama-key"
	cfg.Extractor.APIKey = "sk-extract"
	cfg.QAGenerator.APIKey = "sk-qa"

	backends, err := buildBackends(cfg, cliOptions{})
	require.NoError(t, err)
	require.NotNil(t, backends.Parse)
	require.NotNil(t, backends.Extract)
	require.NotNil(t, backends.QA)
}
