package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const subscriptionKeyHeader = "api-subscription-key"

// Question is one analytic question attached to a batch job.
type Question struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Text        string `json:"text"`
	Description string `json:"description,omitempty"`
}

// JobParameters is the configuration bundle submitted when a job starts.
// Build one per job; the client sends it verbatim.
type JobParameters struct {
	Model           string     `json:"model"`
	WithDiarization bool       `json:"with_diarization"`
	NumSpeakers     int        `json:"num_speakers"`
	Questions       []Question `json:"questions"`
}

// StatusResponse is one poll result. RawState keeps the wire string for
// diagnostics; State is the parsed form the poll loop branches on.
type StatusResponse struct {
	State        JobState
	RawState     string
	ErrorMessage string
}

type OutputEntry struct {
	Name string `json:"name"`
}

type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client drives the lifecycle of exactly one batch job. It is not safe for
// concurrent use and must not be reused for a second job.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  *zap.Logger

	jobID             string
	inputStoragePath  string
	outputStoragePath string
	uploaded          bool
	started           bool
}

func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		httpc:   opts.HTTPClient,
		logger:  opts.Logger,
	}
}

func (c *Client) JobID() string {
	return c.jobID
}

// InitializeJob requests a new job context from the service and records the
// assigned identifier and storage paths. A failure leaves the client unusable.
func (c *Client) InitializeJob(ctx context.Context) error {
	if c.jobID != "" {
		return fmt.Errorf("%w: job %s already initialized", ErrInit, c.jobID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/job/init", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInit, err)
	}
	req.Header.Set(subscriptionKeyHeader, c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("job init rejected", zap.Int("status", resp.StatusCode), zap.String("body", readErrorBody(resp.Body)))
		return fmt.Errorf("%w: unexpected status %d", ErrInit, resp.StatusCode)
	}

	var payload struct {
		JobID             string `json:"job_id"`
		InputStoragePath  string `json:"input_storage_path"`
		OutputStoragePath string `json:"output_storage_path"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrInit, err)
	}
	if payload.JobID == "" {
		return fmt.Errorf("%w: service returned no job id", ErrInit)
	}

	c.jobID = payload.JobID
	c.inputStoragePath = strings.TrimRight(payload.InputStoragePath, "/")
	c.outputStoragePath = strings.TrimRight(payload.OutputStoragePath, "/")
	c.logger.Info("job initialized", zap.String("job_id", c.jobID))
	return nil
}

// UploadFile streams the audio content to the job's input storage path. The
// reader is consumed exactly once; the caller still owns closing it.
func (c *Client) UploadFile(ctx context.Context, audio io.Reader, name string) error {
	if c.jobID == "" {
		return fmt.Errorf("%w: job not initialized", ErrUpload)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, audio); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	destination := c.inputStoragePath + "/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, destination, pr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpload, err)
	}
	req.Header.Set(subscriptionKeyHeader, c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("upload rejected", zap.Int("status", resp.StatusCode), zap.String("body", readErrorBody(resp.Body)))
		return fmt.Errorf("%w: unexpected status %d", ErrUpload, resp.StatusCode)
	}

	c.uploaded = true
	c.logger.Info("audio uploaded", zap.String("job_id", c.jobID), zap.String("name", name))
	return nil
}

// StartJob submits the job parameters. The audio must be fully uploaded
// first; a failed start leaves the job in its pre-start state, so the call
// may be repeated.
func (c *Client) StartJob(ctx context.Context, params JobParameters) error {
	if !c.uploaded {
		return fmt.Errorf("%w: audio not uploaded", ErrStart)
	}

	body, err := json.Marshal(struct {
		JobID         string        `json:"job_id"`
		JobParameters JobParameters `json:"job_parameters"`
	}{JobID: c.jobID, JobParameters: params})
	if err != nil {
		return fmt.Errorf("%w: encode parameters: %w", ErrStart, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/job", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}
	req.Header.Set(subscriptionKeyHeader, c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("job start rejected", zap.Int("status", resp.StatusCode), zap.String("body", readErrorBody(resp.Body)))
		return fmt.Errorf("%w: unexpected status %d", ErrStart, resp.StatusCode)
	}

	c.started = true
	c.logger.Info("job started", zap.String("job_id", c.jobID), zap.String("model", params.Model))
	return nil
}

// CheckJobStatus fetches the current state for this job. Errors are left for
// the poll loop to absorb; no retry happens here.
func (c *Client) CheckJobStatus(ctx context.Context) (StatusResponse, error) {
	if !c.started {
		return StatusResponse{}, fmt.Errorf("%w: job not started", ErrStatusCheck)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/job/"+url.PathEscape(c.jobID)+"/status", nil)
	if err != nil {
		return StatusResponse{}, fmt.Errorf("%w: %w", ErrStatusCheck, err)
	}
	req.Header.Set(subscriptionKeyHeader, c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return StatusResponse{}, fmt.Errorf("%w: %w", ErrStatusCheck, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("status check rejected", zap.Int("status", resp.StatusCode), zap.String("body", readErrorBody(resp.Body)))
		return StatusResponse{}, fmt.Errorf("%w: unexpected status %d", ErrStatusCheck, resp.StatusCode)
	}

	var payload struct {
		JobState     string `json:"job_state"`
		ErrorMessage string `json:"error_message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return StatusResponse{}, fmt.Errorf("%w: decode response: %w", ErrStatusCheck, err)
	}

	return StatusResponse{
		State:        ParseJobState(payload.JobState),
		RawState:     payload.JobState,
		ErrorMessage: payload.ErrorMessage,
	}, nil
}

// ListOutputs returns the artifacts available at the job's output storage
// path. Entries without a name are skipped; a malformed listing fails hard.
func (c *Client) ListOutputs(ctx context.Context) ([]OutputEntry, error) {
	if c.outputStoragePath == "" {
		return nil, fmt.Errorf("%w: job not initialized", ErrDownload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.outputStoragePath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	req.Header.Set(subscriptionKeyHeader, c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("output listing rejected", zap.Int("status", resp.StatusCode), zap.String("body", readErrorBody(resp.Body)))
		return nil, fmt.Errorf("%w: unexpected status %d", ErrDownload, resp.StatusCode)
	}

	var entries []OutputEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: decode listing: %w", ErrDownload, err)
	}

	named := entries[:0]
	for _, entry := range entries {
		if strings.TrimSpace(entry.Name) == "" {
			c.logger.Warn("skipping unnamed output entry", zap.String("job_id", c.jobID))
			continue
		}
		named = append(named, entry)
	}
	return named, nil
}

// DownloadOutput opens a streaming download of one artifact. The caller owns
// closing the returned body. The reported length is -1 when unknown.
func (c *Client) DownloadOutput(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	if c.outputStoragePath == "" {
		return nil, 0, fmt.Errorf("%w: job not initialized", ErrDownload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.outputStoragePath+"/"+url.PathEscape(name), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	req.Header.Set(subscriptionKeyHeader, c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDownload, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := readErrorBody(resp.Body)
		resp.Body.Close()
		c.logger.Error("output download rejected", zap.String("name", name), zap.Int("status", resp.StatusCode), zap.String("body", body))
		return nil, 0, fmt.Errorf("%w: %s: unexpected status %d", ErrDownload, name, resp.StatusCode)
	}

	return resp.Body, resp.ContentLength, nil
}

// readErrorBody captures a bounded prefix of an error response for logging.
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 2048))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}
