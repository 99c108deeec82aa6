package monday

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
	// Some API failures are reported with a flat error message instead.
	ErrorMessage string `json:"error_message"`
}

// query posts a GraphQL document and decodes its data into target.
func (c *Client) query(ctx context.Context, query string, variables map[string]any, target any) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req = c.setHeaders(req)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.request(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	var response graphQLResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if err := response.err(); err != nil {
		return err
	}

	if target == nil || len(response.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(response.Data, target); err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}

	return nil
}

func (r *graphQLResponse) err() error {
	if msg := strings.TrimSpace(r.ErrorMessage); msg != "" {
		return fmt.Errorf("monday api: %s", msg)
	}
	if len(r.Errors) == 0 {
		return nil
	}

	messages := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		messages = append(messages, e.Message)
	}
	return errors.New("monday api: " + strings.Join(messages, "; "))
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	// monday.com expects the raw token, without a scheme.
	req.Header.Set("Authorization", c.token)
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)
	req.Header.Set("API-Version", "2024-10")

	return req
}
