// Package openai implements the batch.Provider contract over the OpenAI
// batch REST API: file upload, batch creation, status retrieval, and result
// download.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/batchops/batchwatch/internal/batch"
	"github.com/batchops/batchwatch/internal/ratelimit"
)

const (
	defaultBaseURL          = "https://api.openai.com/v1"
	defaultEndpoint         = "/v1/chat/completions"
	defaultCompletionWindow = "24h"
	defaultTimeout          = 60 * time.Second
)

// Config captures the connection parameters for the OpenAI API.
type Config struct {
	BaseURL          string
	APIKey           string
	Endpoint         string
	CompletionWindow string
	Timeout          time.Duration
	// MaxRPS caps outbound API calls per operation; <= 0 means unlimited.
	MaxRPS float64
}

// Client talks to the OpenAI batch API. All methods honor context
// cancellation and bound each request with the configured timeout.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Client. The API key is required; everything else has
// working defaults.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.CompletionWindow == "" {
		cfg.CompletionWindow = defaultCompletionWindow
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    ratelimit.New(ratelimit.Config{RPS: cfg.MaxRPS}),
		cfg:        cfg,
		logger:     logger,
	}, nil
}

type fileResponse struct {
	ID string `json:"id"`
}

type batchResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	OutputFileID  string `json:"output_file_id"`
	ErrorFileID   string `json:"error_file_id"`
	RequestCounts struct {
		Total     int `json:"total"`
		Completed int `json:"completed"`
		Failed    int `json:"failed"`
	} `json:"request_counts"`
	Errors struct {
		Data []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"data"`
	} `json:"errors"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// UploadInput uploads the file at path with purpose=batch and returns the
// provider-side file reference.
func (c *Client) UploadInput(ctx context.Context, path string) (batch.ResultRef, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open input file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("purpose", "batch"); err != nil {
		return "", fmt.Errorf("write purpose field: %w", err)
	}
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("copy input file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/files", &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp fileResponse
	if err := c.do(req, "upload input", &resp); err != nil {
		return "", err
	}
	c.logger.Debug("input file uploaded",
		zap.String("path", path),
		zap.String("file_id", resp.ID),
	)
	return batch.ResultRef(resp.ID), nil
}

// Submit uploads the input file and creates a batch job against the
// configured endpoint. Any failure on this path wraps SubmissionError.
func (c *Client) Submit(ctx context.Context, inputPath, description string) (batch.JobID, error) {
	fileRef, err := c.UploadInput(ctx, inputPath)
	if err != nil {
		return "", &batch.SubmissionError{Path: inputPath, Err: err}
	}

	payload := map[string]any{
		"input_file_id":     string(fileRef),
		"endpoint":          c.cfg.Endpoint,
		"completion_window": c.cfg.CompletionWindow,
		"metadata":          map[string]string{"description": description},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", &batch.SubmissionError{Path: inputPath, Err: fmt.Errorf("marshal batch request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/batches", bytes.NewReader(data))
	if err != nil {
		return "", &batch.SubmissionError{Path: inputPath, Err: fmt.Errorf("build batch request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	var resp batchResponse
	if err := c.do(req, "create batch", &resp); err != nil {
		return "", &batch.SubmissionError{Path: inputPath, Err: err}
	}
	c.logger.Info("batch created",
		zap.String("job_id", resp.ID),
		zap.String("input_file_id", string(fileRef)),
	)
	return batch.JobID(resp.ID), nil
}

// CheckStatus fetches the current snapshot for a batch job.
func (c *Client) CheckStatus(ctx context.Context, id batch.JobID) (batch.StatusSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/batches/"+string(id), nil)
	if err != nil {
		return batch.StatusSnapshot{}, fmt.Errorf("build status request: %w", err)
	}
	var resp batchResponse
	if err := c.do(req, "check status", &resp); err != nil {
		return batch.StatusSnapshot{}, err
	}

	snap := batch.StatusSnapshot{
		ID:        batch.JobID(resp.ID),
		Status:    batch.Status(resp.Status),
		OutputRef: batch.ResultRef(resp.OutputFileID),
		ErrorRef:  batch.ResultRef(resp.ErrorFileID),
		Counts: batch.RequestCounts{
			Total:     resp.RequestCounts.Total,
			Completed: resp.RequestCounts.Completed,
			Failed:    resp.RequestCounts.Failed,
		},
	}
	for _, e := range resp.Errors.Data {
		snap.Errors = append(snap.Errors, batch.JobError{Code: e.Code, Message: e.Message})
	}
	return snap, nil
}

// RetrieveResult downloads the content of a provider-side file.
func (c *Client) RetrieveResult(ctx context.Context, ref batch.ResultRef) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/files/"+string(ref)+"/content", nil)
	if err != nil {
		return nil, &batch.RetrievalError{Ref: ref, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &batch.RetrievalError{Ref: ref, Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, &batch.RetrievalError{
			Ref: ref,
			Err: fmt.Errorf("provider returned %d", httpResp.StatusCode),
		}
	}
	content, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &batch.RetrievalError{Ref: ref, Err: err}
	}
	return content, nil
}

// do executes req with auth, decodes a JSON body into out, and maps failures
// onto the provider error taxonomy: transport errors and 429 become
// TransientError, other non-2xx become ProviderError.
func (c *Client) do(req *http.Request, op string, out any) error {
	if err := c.limiter.Wait(req.Context(), op); err != nil {
		return &batch.TransientError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &batch.TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &batch.TransientError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &batch.TransientError{Op: op, Err: fmt.Errorf("rate limited: %s", apiMessage(body))}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &batch.ProviderError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    apiMessage(body),
		}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}

func apiMessage(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
