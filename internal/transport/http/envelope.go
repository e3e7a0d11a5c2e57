package httptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bytedance/sonic"

	"eduverse-client-go/internal/platform/errors"
)

// Envelope is the backend's uniform response wrapper; code 0 is success.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// APIError is a non-success envelope or status from the backend.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d code %d", e.Status, e.Code)
	}
	return fmt.Sprintf("backend returned status %d code %d: %s", e.Status, e.Code, e.Message)
}

// Decode unwraps the envelope and decodes its data into out (which may be nil).
// A 401 maps to auth_expired, a 5xx to transport and any other failure to domain.
func (r *Response) Decode(op string, out any) error {
	var env Envelope
	if len(r.Body) > 0 {
		if err := sonic.Unmarshal(r.Body, &env); err != nil && !r.IsError() {
			return errors.Wrap(errors.KindTransport, op, "malformed response body", err)
		}
	}

	switch {
	case r.Unauthorized():
		return errors.Wrap(errors.KindAuthExpired, op, "credential refused", &APIError{Status: r.Status, Code: env.Code, Message: env.Message})
	case r.Status >= http.StatusInternalServerError:
		return errors.Wrap(errors.KindTransport, op, "backend unavailable", &APIError{Status: r.Status, Code: env.Code, Message: env.Message})
	case r.IsError() || env.Code != 0:
		return errors.Wrap(errors.KindDomain, op, "request rejected", &APIError{Status: r.Status, Code: env.Code, Message: env.Message})
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := sonic.Unmarshal(env.Data, out); err != nil {
		return errors.Wrap(errors.KindTransport, op, "malformed response data", err)
	}
	return nil
}

// Do executes req and decodes the envelope data into out.
func (p *Pipeline) Do(ctx context.Context, op string, req Request, out any) error {
	resp, err := p.Execute(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(op, out)
}

// GetJSON issues a GET and decodes the envelope data into out.
func (p *Pipeline) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return p.Do(ctx, "GET "+path, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// PostJSON issues a JSON POST and decodes the envelope data into out.
func (p *Pipeline) PostJSON(ctx context.Context, path string, body, out any) error {
	return p.Do(ctx, "POST "+path, Request{Method: http.MethodPost, Path: path, JSON: body}, out)
}

// PutJSON issues a JSON PUT and decodes the envelope data into out.
func (p *Pipeline) PutJSON(ctx context.Context, path string, body, out any) error {
	return p.Do(ctx, "PUT "+path, Request{Method: http.MethodPut, Path: path, JSON: body}, out)
}
