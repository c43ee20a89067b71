package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/rickgao/papertrade/internal/version"
)

// GenericErrorMessage is reported when a failure carries no usable server message.
const GenericErrorMessage = "network error"

// Errors
var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrTransportUnavailable = errors.New("transport unavailable")
)

// APIError represents a failed call: either a non-2xx response or a request
// that never got one (StatusCode 0).
type APIError struct {
	StatusCode int
	Message    string // Server-supplied message, or GenericErrorMessage
	Body       []byte
	Err        error // Underlying transport error, if any
}

func (e *APIError) Error() string {
	return e.Message
}

// Unwrap exposes the taxonomy sentinel and the transport cause to errors.Is.
func (e *APIError) Unwrap() []error {
	errs := make([]error, 0, 2)
	switch {
	case e.StatusCode == 0:
		errs = append(errs, ErrTransportUnavailable)
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		errs = append(errs, ErrUnauthorized)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// errorBody is the error payload the service returns on non-2xx responses.
type errorBody struct {
	Message *string `json:"message"`
}

// Do performs one authenticated call. body, if non-nil, is JSON-encoded;
// result, if non-nil, receives the decoded JSON response.
func (c *Client) Do(ctx context.Context, method, path string, body, result any) error {
	return c.do(ctx, method, path, c.Token(), body, result)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, result any) error {
	data, err := c.doRequest(ctx, method, path, token, body)
	if err != nil {
		return err
	}

	if result == nil {
		return nil
	}
	if len(data) == 0 {
		return fmt.Errorf("decode response: %w", io.ErrUnexpectedEOF)
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request and returns the raw 2xx body.
func (c *Client) doRequest(ctx context.Context, method, path, token string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &APIError{Message: GenericErrorMessage, Err: fmt.Errorf("create request: %w", err)}
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			"method", method,
			"path", path,
			"request_id", requestID,
			"error", err,
		)
		return nil, &APIError{Message: GenericErrorMessage, Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: GenericErrorMessage, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, data),
			Body:       data,
		}
		c.logger.Debug("request rejected",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"request_id", requestID,
			"message", apiErr.Message,
		)
		return nil, apiErr
	}

	return data, nil
}

// errorMessage extracts the server message from an error body.
func errorMessage(status int, data []byte) string {
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err != nil {
		return GenericErrorMessage
	}
	if eb.Message == nil || *eb.Message == "" {
		return fmt.Sprintf("request failed with status %d", status)
	}
	return *eb.Message
}

// withQuery appends encoded query parameters to path.
func withQuery(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}

// get performs a GET request.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	return c.Do(ctx, http.MethodGet, withQuery(path, query), nil, result)
}

// post performs a POST request with a JSON body.
func (c *Client) post(ctx context.Context, path string, body, result any) error {
	return c.Do(ctx, http.MethodPost, path, body, result)
}

// put performs a PUT request with a JSON body.
func (c *Client) put(ctx context.Context, path string, body, result any) error {
	return c.Do(ctx, http.MethodPut, path, body, result)
}
