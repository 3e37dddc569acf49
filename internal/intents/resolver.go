package intents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// IntentDisable is the intent code meaning "the user wants a human".
const IntentDisable = "disable"

// Resolution is the resolver's best match for a message text.
type Resolution struct {
	Intent string `json:"intent"`
	Answer string `json:"answer,omitempty"`
}

// Resolver matches free text against the chatbot's intent catalogue. A nil
// resolution means no intent matched.
type Resolver interface {
	Resolve(ctx context.Context, text string) (*Resolution, error)
}

// HTTPResolver calls the external chatbot service over HTTP.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver constructs a resolver client.
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Resolve posts the text to the resolver and decodes the matched intent.
func (r *HTTPResolver) Resolve(ctx context.Context, text string) (*Resolution, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/resolve", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("intent resolver returned status %d", resp.StatusCode)
	}

	var res Resolution
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	if res.Intent == "" {
		return nil, nil
	}
	return &res, nil
}
