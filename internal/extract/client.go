package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to the document-understanding backend: an HTTP service that
// takes raw image bytes and answers with the recognized text plus tagged
// entities (a Document AI processor or a vision-language model constrained
// to the same output schema).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type processRequest struct {
	Content  string `json:"content"` // base64 image bytes
	MimeType string `json:"mime_type"`
}

type processResponse struct {
	Text     string   `json:"text"`
	Entities []Entity `json:"entities"`
}

// Entity is one tagged field in the backend's response.
type Entity struct {
	Type        string `json:"type"`
	MentionText string `json:"mention_text"`
}

// Extract submits the image and maps the response into a normalized Result.
// It never returns an error: every failure path degrades to the default
// Result with FailureReason set, so callers can persist a usable record and
// tests can assert on the failure without parsing logs.
func (c *Client) Extract(ctx context.Context, content []byte, mimeType string) Result {
	body, err := json.Marshal(processRequest{
		Content:  base64.StdEncoding.EncodeToString(content),
		MimeType: mimeType,
	})
	if err != nil {
		return failedResult(fmt.Sprintf("marshal request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return failedResult(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failedResult(fmt.Sprintf("call extraction backend: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failedResult(fmt.Sprintf("extraction backend returned status %d", resp.StatusCode))
	}

	var doc processResponse
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return failedResult(fmt.Sprintf("decode response: %v", err))
	}

	return mapDocument(doc)
}
