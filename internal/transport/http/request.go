package httptransport

import (
	"net/http"
	"net/url"
)

// Request describes one backend call. It holds no one-shot readers, so the
// pipeline can send identical content again after a refresh.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Header    map[string]string
	Body      []byte
	JSON      any
	Multipart *Multipart
}

// Multipart is a form upload. The transport sets the boundary content-type.
type Multipart struct {
	Fields map[string]string
	Files  []FilePart
}

// FilePart is one file in a multipart upload.
type FilePart struct {
	Field       string
	FileName    string
	ContentType string
	Content     []byte
}

// Response is the buffered result of a call.
type Response struct {
	Status  int
	Header  http.Header
	Body    []byte
	Retried bool
}

// Unauthorized reports a 401. After the pipeline's single retry this means
// the refreshed credential was also refused.
func (r *Response) Unauthorized() bool {
	return r != nil && r.Status == http.StatusUnauthorized
}

// IsError reports a 4xx or 5xx status.
func (r *Response) IsError() bool {
	return r != nil && r.Status >= http.StatusBadRequest
}
