// Package llm implements the LLM drafting endpoint client used by the
// Draft Queue (spec §4.9, §6).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

const requestTimeout = 30 * time.Second

// Options mirrors the generator's sampling knobs.
type Options struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Client calls a local LLM generator endpoint over HTTP.
type Client struct {
	endpoint string
	model    string
	options  Options
	http     *http.Client
}

// New constructs a Client bound to endpoint and model.
func New(endpoint, model string, options Options) *Client {
	return &Client{
		endpoint: endpoint,
		model:    model,
		options:  options,
		http:     &http.Client{Timeout: requestTimeout},
	}
}

// Generate sends prompt to the drafting endpoint and returns the
// generated text. Any failure — network, non-2xx, malformed body — is
// logged and yields empty text, never an error, matching spec §7's LLM
// failure handling.
func (c *Client) Generate(ctx context.Context, prompt string) string {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: c.options,
	})
	if err != nil {
		log.Printf("llm: marshal request failed: %v", err)
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		log.Printf("llm: build request failed: %v", err)
		return ""
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("llm: request failed: %v", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		log.Printf("llm: non-2xx response: %s", resp.Status)
		return ""
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Printf("llm: decode response failed: %v", err)
		return ""
	}
	return out.Response
}
