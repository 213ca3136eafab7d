package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shizukutanaka/resalloc/internal/api"
)

// apiClient talks to a running resalloc API server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *apiClient) get(path string, out interface{}) error {
	return c.do(http.MethodGet, path, out)
}

func (c *apiClient) post(path string, out interface{}) error {
	return c.do(http.MethodPost, path, out)
}

// do decodes the response envelope and then its data field into out.
func (c *apiClient) do(method, path string, out interface{}) error {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		api.Response
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("API returned status %d: %w", resp.StatusCode, err)
	}
	if !envelope.Success {
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, envelope.Error)
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}
