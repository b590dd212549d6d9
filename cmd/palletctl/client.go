package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type palletClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newClient() *palletClient {
	return &palletClient{
		baseURL: serverURL,
		token:   resolvedToken(),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError is the error body returned by the server.
type apiError struct {
	Status  int
	Kind    string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
	Code    string `json:"code"`
}

func (e *apiError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, msg)
}

// do sends a request with an optional JSON body and decodes a JSON response
// into v when v is non-nil.
func (c *palletClient) do(method, path string, query url.Values, body, v any) error {
	raw, err := c.send(method, path, query, body)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode error: %w", err)
	}
	return nil
}

// send performs the request and returns the raw body of a 2xx response.
func (c *palletClient) send(method, path string, query url.Values, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return nil, apiErr
	}
	return data, nil
}

func (c *palletClient) getJSON(path string, query url.Values, v any) error {
	return c.do(http.MethodGet, path, query, nil, v)
}

func (c *palletClient) postJSON(path string, body, v any) error {
	return c.do(http.MethodPost, path, nil, body, v)
}
