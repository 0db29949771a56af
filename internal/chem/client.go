package chem

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to a chemistry engine over HTTP. Similarity is computed
// locally from the returned fingerprints.
type Client struct {
	endpoint string
	metric   Metric
	http     *http.Client
}

// NewClient creates a client for the engine at endpoint.
func NewClient(endpoint string, metric Metric, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		metric:   metric,
		http:     &http.Client{Timeout: timeout},
	}
}

type hashRequest struct {
	Structure   string      `json:"structure"`
	Sensitivity Sensitivity `json:"sensitivity"`
}

type hashResponse struct {
	Hash string `json:"hash"`
}

type fingerprintResponse struct {
	// Fingerprint is base64 encoded.
	Fingerprint string `json:"fingerprint"`
}

type substructureRequest struct {
	Molecule string `json:"molecule"`
	Query    string `json:"query"`
}

type substructureResponse struct {
	Match bool `json:"match"`
}

// CanonicalHash returns the engine's layered hash at the given sensitivity.
func (c *Client) CanonicalHash(ctx context.Context, structure string, sensitivity Sensitivity) (string, error) {
	var resp hashResponse
	if err := c.post(ctx, "/hash", hashRequest{Structure: structure, Sensitivity: sensitivity}, &resp); err != nil {
		return "", err
	}
	return resp.Hash, nil
}

// Fingerprint returns the engine's fingerprint for structure.
func (c *Client) Fingerprint(ctx context.Context, structure string) (Fingerprint, error) {
	var resp fingerprintResponse
	if err := c.post(ctx, "/fingerprint", hashRequest{Structure: structure}, &resp); err != nil {
		return nil, err
	}
	fp, err := base64.StdEncoding.DecodeString(resp.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("decode fingerprint: %w", err)
	}
	return fp, nil
}

// Similarity scores two fingerprints with the client's metric.
func (c *Client) Similarity(a, b Fingerprint) (float64, error) {
	return Score(c.metric, a, b)
}

// HasSubstructure asks the engine whether molecule contains query.
func (c *Client) HasSubstructure(ctx context.Context, molecule, query string) (bool, error) {
	var resp substructureResponse
	if err := c.post(ctx, "/substructure", substructureRequest{Molecule: molecule, Query: query}, &resp); err != nil {
		return false, err
	}
	return resp.Match, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chemistry engine %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chemistry engine %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chemistry engine %s: decode response: %w", path, err)
	}
	return nil
}
