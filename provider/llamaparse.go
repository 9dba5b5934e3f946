package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jcsk/pdf2qa/logger"
	"github.com/jcsk/pdf2qa/pipeline"
)

const defaultLlamaParseBaseURL = "https://api.cloud.llamaindex.ai/api/parsing"

// LlamaParseClient implements pipeline.ParseBackend against the LlamaParse
// cloud API: upload the document, poll the job, fetch the JSON result.
type LlamaParseClient struct {
	apiKey       string
	language     string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	maxPolls     int
}

// LlamaParseOption configures a LlamaParseClient.
type LlamaParseOption func(*LlamaParseClient)

// WithLanguage sets the parsing language hint sent with the upload.
func WithLanguage(lang string) LlamaParseOption {
	return func(c *LlamaParseClient) {
		if lang != "" {
			c.language = lang
		}
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) LlamaParseOption {
	return func(c *LlamaParseClient) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) LlamaParseOption {
	return func(c *LlamaParseClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithPollInterval sets the delay between job status checks.
func WithPollInterval(d time.Duration) LlamaParseOption {
	return func(c *LlamaParseClient) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// NewLlamaParseClient builds a client for the given API key. A missing key is
// a construction error.
func NewLlamaParseClient(apiKey string, opts ...LlamaParseOption) (*LlamaParseClient, error) {
	if apiKey == "" {
		return nil, errors.New("NewLlamaParseClient: API key is empty")
	}
	c := &LlamaParseClient{
		apiKey:       apiKey,
		language:     "en",
		baseURL:      defaultLlamaParseBaseURL,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		pollInterval: 2 * time.Second,
		maxPolls:     150,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type parseJob struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type parseResultPage struct {
	Page int    `json:"page"`
	Text string `json:"text"`
	MD   string `json:"md"`
}

type parseResult struct {
	Pages []parseResultPage `json:"pages"`
}

// ParseFile uploads the document, waits for the parse job to finish, and
// returns one PageBlock per result page with page numbers in the metadata.
func (c *LlamaParseClient) ParseFile(ctx context.Context, path string) ([]pipeline.PageBlock, error) {
	jobID, err := c.upload(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("ParseFile: %w", err)
	}
	logger.Debug("parse job submitted: %s", jobID)

	if err := c.waitForJob(ctx, jobID); err != nil {
		return nil, fmt.Errorf("ParseFile: %w", err)
	}

	result, err := c.fetchResult(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("ParseFile: %w", err)
	}

	blocks := make([]pipeline.PageBlock, 0, len(result.Pages))
	for i, page := range result.Pages {
		text := page.MD
		if text == "" {
			text = page.Text
		}
		pageNum := page.Page
		if pageNum == 0 {
			pageNum = i + 1
		}
		blocks = append(blocks, pipeline.PageBlock{
			Text:     text,
			Metadata: map[string]any{"page": pageNum},
		})
	}
	return blocks, nil
}

func (c *LlamaParseClient) upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if err := mw.WriteField("language", c.language); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var job parseJob
	if err := c.doJSON(req, &job); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if job.ID == "" {
		return "", errors.New("upload: response has no job id")
	}
	return job.ID, nil
}

func (c *LlamaParseClient) waitForJob(ctx context.Context, jobID string) error {
	for i := 0; i < c.maxPolls; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/job/"+jobID, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		var job parseJob
		if err := c.doJSON(req, &job); err != nil {
			return fmt.Errorf("poll job %s: %w", jobID, err)
		}

		switch strings.ToUpper(job.Status) {
		case "SUCCESS", "COMPLETED":
			return nil
		case "ERROR", "FAILED", "CANCELLED":
			return fmt.Errorf("parse job %s ended with status %s", jobID, job.Status)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return fmt.Errorf("parse job %s did not finish after %d polls", jobID, c.maxPolls)
}

func (c *LlamaParseClient) fetchResult(ctx context.Context, jobID string) (parseResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/job/"+jobID+"/result/json", nil)
	if err != nil {
		return parseResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var result parseResult
	if err := c.doJSON(req, &result); err != nil {
		return parseResult{}, fmt.Errorf("fetch result for job %s: %w", jobID, err)
	}
	return result, nil
}

func (c *LlamaParseClient) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %.200s", resp.StatusCode, string(b))
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
