package jobservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"stmtpipe/constants"
)

// Endpoint suffixes of the analysis service.
const (
	analyzeEndpointSuffix = "/api/InitAnalyzeDocuments"
	summaryEndpointSuffix = "/api/WriteCsvSummary"
)

// Client is a JobService over the analysis service's HTTP surface.
type Client struct {
	endpoint   string
	clientName string
	outputDir  string
	http       *http.Client
	creds      Credentials
	logger     *slog.Logger
}

func NewClient(endpoint, clientName, outputDir string, creds Credentials, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		clientName: clientName,
		outputDir:  outputDir,
		http:       httpClient,
		creds:      creds,
		logger:     logger,
	}
}

type submitPayload struct {
	ClientName string   `json:"clientName"`
	Documents  []string `json:"documents"`
	Overwrite  bool     `json:"overwrite"`
}

type submitResponse struct {
	StatusQueryGetURI string `json:"statusQueryGetUri"`
}

// Submit starts an analysis job over the named documents. A failure here is
// terminal for the run; the caller does not retry it.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (Handle, error) {
	raw, _, err := c.sendJSON(ctx, http.MethodPost, c.endpoint+analyzeEndpointSuffix, submitPayload{
		ClientName: c.clientName,
		Documents:  req.Documents,
		Overwrite:  req.Overwrite,
	})
	if err != nil {
		return Handle{}, fmt.Errorf("submit analyze documents %v: %w", req.Documents, err)
	}
	var resp submitResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Handle{}, fmt.Errorf("decode submit response: %w", err)
	}
	if resp.StatusQueryGetURI == "" {
		return Handle{}, fmt.Errorf("submit response carried no status URL")
	}
	return Handle{StatusURL: resp.StatusQueryGetURI}, nil
}

// Poll fetches and decodes the job's current status snapshot.
func (c *Client) Poll(ctx context.Context, handle Handle) (*Status, error) {
	raw, _, err := c.sendJSON(ctx, http.MethodGet, handle.StatusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", handle.StatusURL, err)
	}
	st, err := DecodeStatus(raw)
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", handle.StatusURL, err)
	}
	return st, nil
}

type summaryPayload struct {
	ClientName      string   `json:"clientName"`
	StatementKeys   []string `json:"statementKeys"`
	OutputDirectory string   `json:"outputDirectory"`
}

type summaryResponse struct {
	Status               string `json:"status"`
	ErrorMessage         string `json:"errorMessage"`
	CheckSummaryFile     string `json:"checkSummaryFile"`
	AccountSummaryFile   string `json:"accountSummaryFile"`
	StatementSummaryFile string `json:"statementSummaryFile"`
	RecordsFile          string `json:"recordsFile"`
}

// Summarize asks the service to roll the extracted statements up into the
// summary CSVs and returns their object keys in sheet order.
func (c *Client) Summarize(ctx context.Context, statementKeys []string) ([]SummaryFile, error) {
	raw, _, err := c.sendJSON(ctx, http.MethodPost, c.endpoint+summaryEndpointSuffix, summaryPayload{
		ClientName:      c.clientName,
		StatementKeys:   statementKeys,
		OutputDirectory: c.outputDir,
	})
	if err != nil {
		return nil, fmt.Errorf("write csv summary: %w", err)
	}
	var resp summaryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode summary response: %w", err)
	}
	if constants.FinalStatus(resp.Status) != constants.FinalSuccess {
		return nil, fmt.Errorf("csv summary returned %q: %s", resp.Status, resp.ErrorMessage)
	}
	return []SummaryFile{
		{Sheet: "Check Summary", Key: resp.CheckSummaryFile},
		{Sheet: "Account Summary", Key: resp.AccountSummaryFile},
		{Sheet: "Statement Summary", Key: resp.StatementSummaryFile},
		{Sheet: "Records", Key: resp.RecordsFile},
	}, nil
}

// sendJSON issues one JSON request and returns the raw response body.
func (c *Client) sendJSON(ctx context.Context, method, url string, body any) ([]byte, int, error) {
	reqID := uuid.New().String()
	start := time.Now()

	var reader io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encode json: %w", err)
		}
		reader = bytes.NewReader(bs)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.creds != nil {
		auth, err := c.creds.Authorization(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("acquire credentials: %w", err)
		}
		req.Header.Set("Authorization", auth)
	}

	c.logger.Debug("jobservice.http.request", "req_id", reqID, "method", method, "url", url)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("jobservice.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, err
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Warn("jobservice.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)

	c.logger.Debug("jobservice.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return raw, resp.StatusCode, nil
}
