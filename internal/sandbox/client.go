package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"code-exam-service/internal/domain"
	"golang.org/x/sync/semaphore"
)

const (
	// MaxCodeBytes caps submitted source size.
	MaxCodeBytes = 10 * 1024

	defaultConcurrency    = 10
	defaultRunTimeout     = 3 * time.Second
	defaultRequestTimeout = 15 * time.Second
	runMemoryLimitBytes   = 128_000_000
)

// Options tune the gateway. Zero values fall back to defaults.
type Options struct {
	Concurrency    int
	RunTimeout     time.Duration // enforced by the sandbox itself
	RequestTimeout time.Duration // enforced by the gateway, guards a hung sandbox
	HTTPClient     *http.Client
}

// Client executes learner code against a remote Piston-compatible sandbox.
// A weighted semaphore admits at most Concurrency in-flight calls; excess
// callers queue in arrival order. The slot is released on every exit path so
// a stuck call cannot starve the queue beyond the request timeout.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	sem            *semaphore.Weighted
	runTimeout     time.Duration
	requestTimeout time.Duration
	logger         *slog.Logger
}

func NewClient(baseURL string, opts Options, logger *slog.Logger) *Client {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = defaultRunTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:        baseURL,
		httpClient:     opts.HTTPClient,
		sem:            semaphore.NewWeighted(int64(opts.Concurrency)),
		runTimeout:     opts.RunTimeout,
		requestTimeout: opts.RequestTimeout,
		logger:         logger,
	}
}

type executeRequest struct {
	Language            string        `json:"language"`
	Version             string        `json:"version"`
	Files               []requestFile `json:"files"`
	RunTimeoutMs        int64         `json:"run_timeout_ms"`
	CompileTimeoutMs    int64         `json:"compile_timeout_ms"`
	RunMemoryLimitBytes int64         `json:"run_memory_limit_bytes"`
}

type requestFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type stageResult struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   int    `json:"code"`
	Signal string `json:"signal"`
}

type executeResponse struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Compile  *stageResult `json:"compile"`
	Run      *stageResult `json:"run"`
}

// Execute runs code in the sandbox and returns the raw execution outcome.
// Compile failures (statically checked languages) come back as a result with
// CompileFailed set rather than an error; transport-level problems are
// classified as ErrServiceUnavailable, ErrRequestTimeout or *ExecutionError.
func (c *Client) Execute(ctx context.Context, code, language string) (domain.ExecutionResult, error) {
	if len(code) == 0 {
		return domain.ExecutionResult{}, domain.Validationf("code", "code is required")
	}
	if len(code) > MaxCodeBytes {
		return domain.ExecutionResult{}, domain.Validationf("code", fmt.Sprintf("code exceeds %d bytes", MaxCodeBytes))
	}
	cfg, err := ConfigFor(language)
	if err != nil {
		return domain.ExecutionResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return domain.ExecutionResult{}, classifyCtxErr(ctx, err)
	}
	defer c.sem.Release(1)

	start := time.Now()
	resp, err := c.post(ctx, executeRequest{
		Language:            cfg.Runtime,
		Version:             cfg.Version,
		Files:               []requestFile{{Name: cfg.FileName, Content: code}},
		RunTimeoutMs:        c.runTimeout.Milliseconds(),
		CompileTimeoutMs:    c.runTimeout.Milliseconds(),
		RunMemoryLimitBytes: runMemoryLimitBytes,
	})
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return domain.ExecutionResult{}, err
	}

	result := domain.ExecutionResult{
		ExecutionTimeMs: elapsed,
		Language:        resp.Language,
		Version:         resp.Version,
	}

	if resp.Compile != nil && resp.Compile.Code != 0 {
		result.Stderr = firstNonEmpty(resp.Compile.Stderr, resp.Compile.Stdout, "compile error")
		result.ExitCode = resp.Compile.Code
		result.CompileFailed = true
		return result, nil
	}

	if resp.Run != nil {
		result.Stdout = resp.Run.Stdout
		result.Stderr = resp.Run.Stderr
		result.ExitCode = resp.Run.Code
		result.Signal = resp.Run.Signal
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, payload executeRequest) (*executeResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal execute request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build execute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyCtxErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("sandbox rejected execution", "status", resp.StatusCode)
		return nil, &ExecutionError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var decoded executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrServiceUnavailable, err)
	}
	return &decoded, nil
}

// Runtime describes one language the sandbox can run.
type Runtime struct {
	Language string   `json:"language"`
	Version  string   `json:"version"`
	Aliases  []string `json:"aliases"`
}

// Runtimes lists the sandbox's installed runtimes. Used as a readiness probe.
func (c *Client) Runtimes(ctx context.Context) ([]Runtime, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/runtimes", nil)
	if err != nil {
		return nil, fmt.Errorf("build runtimes request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyCtxErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: runtimes returned %d", ErrServiceUnavailable, resp.StatusCode)
	}

	var runtimes []Runtime
	if err := json.NewDecoder(resp.Body).Decode(&runtimes); err != nil {
		return nil, fmt.Errorf("%w: decode runtimes: %v", ErrServiceUnavailable, err)
	}
	return runtimes, nil
}

func classifyCtxErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return ErrRequestTimeout
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
