package github

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxErrorBody bounds how much of a failed response is kept for logging.
const maxErrorBody = 4 << 10

// BuildRequest is one build command resolved against a pull request.
type BuildRequest struct {
	Repo     string // owner/name of the pull request's repository
	PRNumber int
	Package  string
	Options  BuildOptions
}

// dispatchBody is the workflow_dispatch request payload.
type dispatchBody struct {
	Ref    string         `json:"ref"`
	Inputs map[string]any `json:"inputs"`
}

// WorkflowClient triggers the build workflow through the GitHub REST API.
type WorkflowClient struct {
	http     *http.Client
	baseURL  string
	token    string
	workflow WorkflowConfig
}

// NewWorkflowClient returns a client for cfg.
func NewWorkflowClient(cfg Config) *WorkflowClient {
	return &WorkflowClient{
		http:     &http.Client{Timeout: cfg.Timeout},
		baseURL:  strings.TrimRight(cfg.APIURL, "/"),
		token:    cfg.Token,
		workflow: cfg.Workflow,
	}
}

func (c *WorkflowClient) endpoint() string {
	return fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/dispatches",
		c.baseURL,
		url.PathEscape(c.workflow.Owner),
		url.PathEscape(c.workflow.Repo),
		url.PathEscape(c.workflow.File),
	)
}

// Dispatch triggers the workflow for req. Any non-2xx answer is an error
// wrapping ErrDispatch.
func (c *WorkflowClient) Dispatch(ctx context.Context, req BuildRequest) error {
	inputs := map[string]any{
		"repo":      req.Repo,
		"pr-number": strconv.Itoa(req.PRNumber),
		"packages":  req.Package,
	}
	for _, key := range optionKeys {
		if v, ok := req.Options[key]; ok {
			inputs[key] = v
		}
	}

	payload, err := json.Marshal(dispatchBody{Ref: c.workflow.Ref, Inputs: inputs})
	if err != nil {
		return fmt.Errorf("github: encode dispatch: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("github: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/vnd.github.v3+json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "warden")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDispatch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: status %d after %s: %s",
			ErrDispatch, resp.StatusCode, time.Since(start).Round(time.Millisecond), strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
