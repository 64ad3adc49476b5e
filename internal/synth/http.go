package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/you/voxq/internal/domain"
)

// HTTPProvider talks to a synthesis service over a small JSON API:
//
//	POST {base}/v1/synthesize   -> 200 {"audio":"<b64>"} or 202 {"job_id":"..."}
//	GET  {base}/v1/jobs/{id}    -> {"status":"pending|done|error","error":"..."}
//	GET  {base}/v1/jobs/{id}/audio -> raw bytes
//
// HTTP status codes carry the fault taxonomy: 429 and 5xx are transient,
// other 4xx are permanent.
type HTTPProvider struct {
	base   string
	apiKey string
	client *http.Client
}

func NewHTTPProvider(base, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		base:   base,
		apiKey: apiKey,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type synthesizeBody struct {
	Text     string  `json:"text"`
	VoiceID  string  `json:"voice_id"`
	Language string  `json:"language,omitempty"`
	Style    string  `json:"style,omitempty"`
	Format   string  `json:"format"`
	Speed    float64 `json:"speed"`
}

func (p *HTTPProvider) Synthesize(ctx context.Context, req domain.Request) (*Result, error) {
	body, err := json.Marshal(synthesizeBody{
		Text:     req.Text,
		VoiceID:  req.VoiceID,
		Language: req.Language,
		Style:    req.Style,
		Format:   req.Format,
		Speed:    req.Speed,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode synthesize body")
	}
	resp, err := p.do(ctx, http.MethodPost, "/v1/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := classify(resp); err != nil {
		return nil, err
	}

	var out struct {
		Audio string `json:"audio"`
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(domain.ErrServer, "undecodable synthesize response")
	}
	if out.JobID != "" {
		return &Result{RemoteID: out.JobID}, nil
	}
	audio, err := base64.StdEncoding.DecodeString(out.Audio)
	if err != nil {
		return nil, errors.Wrap(domain.ErrServer, "undecodable audio payload")
	}
	return &Result{Audio: audio}, nil
}

func (p *HTTPProvider) Poll(ctx context.Context, remoteID string) (bool, error) {
	resp, err := p.do(ctx, http.MethodGet, "/v1/jobs/"+remoteID, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if err := classify(resp); err != nil {
		return false, err
	}

	var out struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, errors.Wrap(domain.ErrServer, "undecodable status response")
	}
	switch out.Status {
	case "done":
		return true, nil
	case "error":
		return false, errors.Wrap(domain.ErrPermanent, out.Error)
	default:
		return false, nil
	}
}

func (p *HTTPProvider) Download(ctx context.Context, remoteID string) ([]byte, error) {
	resp, err := p.do(ctx, http.MethodGet, "/v1/jobs/"+remoteID+"/audio", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := classify(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.base+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "build provider request")
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		// network faults are worth retrying
		return nil, errors.Wrap(domain.ErrServer, err.Error())
	}
	return resp, nil
}

// classify maps an HTTP status to the domain fault taxonomy. 2xx passes.
func classify(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case resp.StatusCode >= 500:
		return errors.Wrap(domain.ErrServer, fmt.Sprintf("status %d", resp.StatusCode))
	default:
		return errors.Wrap(domain.ErrPermanent, fmt.Sprintf("status %d", resp.StatusCode))
	}
}
