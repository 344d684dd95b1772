package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kylo-io/hadoop-authz/pkg/authz"
)

const apiBase = "/api/authz/v1"

type authzClient struct {
	baseURL string
	http    *http.Client
	user    string
	groups  []string
}

func newClient() *authzClient {
	return &authzClient{
		baseURL: strings.TrimSuffix(resolvedServer(), "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		user:   asUser,
		groups: asGroups,
	}
}

// getJSON performs a GET request and decodes the response.
func (c *authzClient) getJSON(path string, v any) error {
	return c.do(http.MethodGet, path, nil, v)
}

// putJSON performs a PUT request with a JSON body and decodes the response.
func (c *authzClient) putJSON(path string, body any, v any) error {
	return c.do(http.MethodPut, path, body, v)
}

func (c *authzClient) delete(path string) error {
	return c.do(http.MethodDelete, path, nil, nil)
}

func (c *authzClient) do(method, path string, body any, v any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.Header.Set(authz.HeaderRemoteUser, c.user)
	}
	if len(c.groups) > 0 {
		req.Header.Set(authz.HeaderRemoteGroup, strings.Join(c.groups, ","))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return responseError(resp)
	}
	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// responseError turns a failed response into an error, using the server's
// error body when there is one.
func responseError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	msg := fmt.Sprintf("server returned %d", resp.StatusCode)
	if body.Kind != "" {
		msg += " (" + body.Kind + ")"
	}
	msg += ": " + body.Error
	if body.Retryable {
		msg += " [retryable]"
	}
	return errors.New(msg)
}
