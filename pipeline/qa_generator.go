package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jcsk/pdf2qa/costs"
	"github.com/jcsk/pdf2qa/logger"
	"github.com/jcsk/pdf2qa/pipeline/fileutils"
)

const questionPrompt = `Generate exactly one clear, specific question that would have the following statement as its answer.

Requirements:
- Reword the content; do not copy phrases from the statement verbatim.
- Use one of these styles: fact-extraction, list-extraction, conceptual, or section-lookup.
- The question should be detailed enough that this statement would be the expected answer.
- Do not include the answer in your response, only the question.

Statement: %s

Question:`

const answerPrompt = `Given the following statement and question, provide a clear, concise answer based only on the information in the statement. Do not add any information that is not present in the statement.

Choose the form that fits the content: a single sentence, a bulleted list, or a 2-3 sentence summary.
If the statement cannot fully answer the question, say so explicitly rather than inventing information.

Statement: %s

Question: %s

Answer:`

// QAGenerator turns statements into question/answer pairs via two completion
// passes per statement, processed in fixed-size batches.
type QAGenerator struct {
	client      CompletionClient
	ledger      *costs.Ledger
	model       string
	temperature float64
	maxTokens   int
	batchSize   int
	batchDelay  time.Duration
}

// QAOption configures a QAGenerator.
type QAOption func(*QAGenerator)

// WithQAModel sets the completion model used for generation.
func WithQAModel(model string) QAOption {
	return func(g *QAGenerator) {
		if model != "" {
			g.model = model
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) QAOption {
	return func(g *QAGenerator) { g.temperature = t }
}

// WithMaxTokens sets the per-call output token cap.
func WithMaxTokens(n int) QAOption {
	return func(g *QAGenerator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithBatchSize sets how many statements are processed per batch.
func WithBatchSize(n int) QAOption {
	return func(g *QAGenerator) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithBatchDelay sets the pause inserted between batches to respect rate limits.
func WithBatchDelay(d time.Duration) QAOption {
	return func(g *QAGenerator) {
		if d >= 0 {
			g.batchDelay = d
		}
	}
}

// NewQAGenerator creates a QAGenerator over the given backend and cost ledger.
func NewQAGenerator(client CompletionClient, ledger *costs.Ledger, opts ...QAOption) (*QAGenerator, error) {
	if client == nil {
		return nil, fmt.Errorf("NewQAGenerator: client is nil")
	}
	if ledger == nil {
		return nil, fmt.Errorf("NewQAGenerator: ledger is nil")
	}
	g := &QAGenerator{
		client:      client,
		ledger:      ledger,
		model:       "gpt-3.5-turbo",
		temperature: 0.0,
		maxTokens:   256,
		batchSize:   5,
		batchDelay:  time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate produces QA pairs for the statements, batch by batch. A failure
// inside a batch's question or answer pass nulls the whole batch to empty
// strings; empty entries are then dropped at pairing time.
func (g *QAGenerator) Generate(ctx context.Context, statements []Statement, source, jobID string) []QAPair {
	logger.Info("generating Q/A pairs from %d statements", len(statements))

	var pairs []QAPair
	for i := 0; i < len(statements); i += g.batchSize {
		end := i + g.batchSize
		if end > len(statements) {
			end = len(statements)
		}
		batch := statements[i:end]

		questions := g.generateQuestions(ctx, batch, jobID)
		answers := g.generateAnswers(ctx, batch, questions, jobID)

		for j, statement := range batch {
			if j >= len(questions) || j >= len(answers) || questions[j] == "" || answers[j] == "" {
				logger.Warn("skipping statement due to missing question or answer: %s", fileutils.Truncate(statement.Text, 50))
				continue
			}
			pairs = append(pairs, NewQAPair(questions[j], answers[j], statement.Pages, source, statement.ID, nil))
		}

		// Pace between batches to stay under external rate limits.
		if end < len(statements) && g.batchDelay > 0 {
			time.Sleep(g.batchDelay)
		}
	}

	logger.Info("generated %d Q/A pairs", len(pairs))
	return pairs
}

// generateQuestions runs the question pass for one batch. Any call failure
// degrades the entire batch to empty questions.
func (g *QAGenerator) generateQuestions(ctx context.Context, batch []Statement, jobID string) []string {
	questions := make([]string, 0, len(batch))
	for _, statement := range batch {
		resp, err := g.complete(ctx, fmt.Sprintf(questionPrompt, statement.Text), "question_generation", jobID)
		if err != nil {
			logger.Error("error generating questions: %v", err)
			return make([]string, len(batch))
		}
		questions = append(questions, strings.TrimSpace(resp.Text))
	}
	return questions
}

// generateAnswers runs the answer pass for one batch. An empty question skips
// the call and yields an empty answer; any call failure degrades the entire
// batch to empty answers.
func (g *QAGenerator) generateAnswers(ctx context.Context, batch []Statement, questions []string, jobID string) []string {
	answers := make([]string, 0, len(batch))
	for j, statement := range batch {
		if j >= len(questions) || questions[j] == "" {
			answers = append(answers, "")
			continue
		}
		resp, err := g.complete(ctx, fmt.Sprintf(answerPrompt, statement.Text, questions[j]), "answer_generation", jobID)
		if err != nil {
			logger.Error("error generating answers: %v", err)
			return make([]string, len(batch))
		}
		answers = append(answers, strings.TrimSpace(resp.Text))
	}
	return answers
}

func (g *QAGenerator) complete(ctx context.Context, prompt, operation, jobID string) (CompletionResult, error) {
	resp, err := g.client.Complete(ctx, CompletionRequest{
		Model:       g.model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return CompletionResult{}, err
	}
	if resp.Usage != nil {
		g.ledger.RecordCompletion(g.model, operation, resp.Usage.InputTokens, resp.Usage.OutputTokens, jobID, nil)
	}
	return resp, nil
}
