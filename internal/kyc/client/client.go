// Package client talks to the KYC HTTP API and drives the submission form.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"akwaba.app/internal/kyc"
)

// SubmitRequest is the body of a submission.
type SubmitRequest struct {
	Role           kyc.Role         `json:"role"`
	DocumentURL    string           `json:"documentUrl"`
	DocumentType   kyc.DocumentType `json:"documentType,omitempty"`
	DocumentNumber string           `json:"documentNumber,omitempty"`
	Consent        bool             `json:"consent"`
}

// SubmitResult is the server's acknowledgement.
type SubmitResult struct {
	Status kyc.Status   `json:"status"`
	Case   kyc.CaseView `json:"case"`
}

type errorBody struct {
	Error  string     `json:"error"`
	Status kyc.Status `json:"status"`
}

// Client is a thin HTTP client for the KYC endpoints.
type Client struct {
	base  *url.URL
	http  *http.Client
	token string
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("kyc client: invalid base url %q", baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: 15 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit posts a submission. It never touches any local cache.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return SubmitResult{}, &TransportError{Err: err}
	}
	resp, err := c.do(ctx, http.MethodPost, "/v1/kyc/submissions", nil, body)
	if err != nil {
		return SubmitResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		var out SubmitResult
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return SubmitResult{}, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
		if out.Status == "" {
			out.Status = out.Case.Status
		}
		if out.Status != kyc.StatusPending {
			return SubmitResult{}, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %q", out.Status)}
		}
		return out, nil
	}
	return SubmitResult{}, decodeFailure(resp)
}

// Fetch reads the caller's case for role.
func (c *Client) Fetch(ctx context.Context, role kyc.Role) (kyc.CaseView, error) {
	q := url.Values{"role": []string{string(role)}}
	resp, err := c.do(ctx, http.MethodGet, "/v1/kyc/cases/me", q, nil)
	if err != nil {
		return kyc.CaseView{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return kyc.CaseView{}, decodeFailure(resp)
	}
	var view kyc.CaseView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return kyc.CaseView{}, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if _, err := kyc.ParseStatus(string(view.Status)); err != nil {
		return kyc.CaseView{}, &TransportError{StatusCode: resp.StatusCode, Err: err}
	}
	return view, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte) (*http.Response, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return resp, nil
}

func decodeFailure(resp *http.Response) error {
	var eb errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &eb)
	msg := strings.TrimSpace(eb.Error)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &ValidationError{StatusCode: resp.StatusCode, Message: msg}
	case http.StatusConflict:
		status, err := kyc.ParseStatus(string(eb.Status))
		if err != nil {
			return &TransportError{StatusCode: resp.StatusCode, Err: errors.New(msg)}
		}
		return &ConflictError{Status: status, Message: msg}
	default:
		return &TransportError{StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
}
