package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// APIError is a non-2xx response from the node.
type APIError struct {
	Status  int    // Status is the HTTP status code
	Kind    string // Kind is the stable error kind, e.g. "pool_initialized"
	Message string // Message is the server's error text
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d (%s): %s", e.Status, e.Kind, e.Message)
}

// do sends a request and decodes the JSON response into result.
func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s:\n%w", req.Method, req.URL.Path, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if result == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// submitTx sends instruction bytes via POST /tx.
func (c *Client) submitTx(txBytes []byte, result any) error {
	req, err := http.NewRequest(http.MethodPost, c.url("/tx"), bytes.NewReader(txBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	return c.do(req, result)
}

// httpGet performs a GET request and decodes the JSON response.
func (c *Client) httpGet(path string, result any) error {
	req, err := http.NewRequest(http.MethodGet, c.url(path), nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

// httpPostJSON performs a POST request with JSON body and decodes the JSON response.
func (c *Client) httpPostJSON(path string, body any, result any) error {
	jsonBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body:\n%w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.url(path), bytes.NewReader(jsonBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

// decodeError reads the {"error", "kind"} body of a failed response.
func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}

	_ = json.NewDecoder(resp.Body).Decode(&body)

	return &APIError{Status: resp.StatusCode, Kind: body.Kind, Message: body.Error}
}
