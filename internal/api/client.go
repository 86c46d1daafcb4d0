package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jreinjr/dreamwalker/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client is the REST signaling client. Each call is one request/response with
// an explicit timeout; failures are wrapped and surfaced to the caller, never
// retried here.
type Client struct {
	base string
	http *http.Client
	log  zerolog.Logger
}

// NewClient creates a signaling client for the given server base URL.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: defaultTimeout},
		log:  log.With().Str("component", "api").Logger(),
	}
}

type offerRequest struct {
	RequestID string                   `json:"request_id"`
	SDP       string                   `json:"sdp"`
	Params    domain.InitialParameters `json:"params"`
}

type offerResponse struct {
	SDP       string `json:"sdp"`
	SessionID string `json:"session_id"`
}

type candidatePatch struct {
	Candidates []domain.IceCandidate `json:"candidates"`
}

type iceServersResponse struct {
	IceServers []domain.IceServer `json:"ice_servers"`
}

type adaptersResponse struct {
	Adapters []domain.AdapterInfo `json:"adapters"`
}

// Health probes the server. A non-2xx status is an error.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/health", nil, nil)
}

// IceServers fetches STUN/TURN configuration. An empty list is not an error;
// callers fall back to a default.
func (c *Client) IceServers(ctx context.Context) ([]domain.IceServer, error) {
	var resp iceServersResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/ice-servers", nil, &resp); err != nil {
		return nil, err
	}
	return resp.IceServers, nil
}

// Offer submits the local SDP plus initial parameters and returns the remote
// answer SDP and the server-issued session id.
func (c *Client) Offer(ctx context.Context, sdp string, params domain.InitialParameters) (string, string, error) {
	req := offerRequest{
		RequestID: uuid.NewString(),
		SDP:       sdp,
		Params:    params,
	}
	var resp offerResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/offer", req, &resp); err != nil {
		return "", "", err
	}
	if resp.SessionID == "" {
		return "", "", fmt.Errorf("offer: server returned no session id")
	}
	return resp.SDP, resp.SessionID, nil
}

// PatchCandidates sends a batch of trickled ICE candidates for the session.
// A 204 response is the same as success with a body.
func (c *Client) PatchCandidates(ctx context.Context, sessionID string, candidates []domain.IceCandidate) error {
	path := fmt.Sprintf("/api/v1/sessions/%s/candidates", sessionID)
	return c.do(ctx, http.MethodPatch, path, candidatePatch{Candidates: candidates}, nil)
}

// LoadPipeline asks the server to prepare a processing pipeline.
func (c *Client) LoadPipeline(ctx context.Context, req domain.PipelineLoadRequest) error {
	return c.do(ctx, http.MethodPost, "/api/v1/pipelines/load", req, nil)
}

// PipelineStatus polls the load state of the pipeline requested last.
func (c *Client) PipelineStatus(ctx context.Context) (domain.PipelineStatus, error) {
	var status domain.PipelineStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/pipelines/status", nil, &status); err != nil {
		return domain.PipelineStatus{}, err
	}
	return status, nil
}

// ListAdapters fetches the style-adapter files available on the server.
func (c *Client) ListAdapters(ctx context.Context) ([]domain.AdapterInfo, error) {
	var resp adaptersResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/adapters", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Adapters, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("create request %s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug().Str("method", method).Str("path", path).Msg("request")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: http %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	// 204 and other empty-success responses are fine even when the caller
	// expected a body it can live without.
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s %s: unmarshal response: %w", method, path, err)
	}
	return nil
}
