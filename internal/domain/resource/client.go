package resource

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"eduverse-client-go/internal/platform/errors"
	httptransport "eduverse-client-go/internal/transport/http"
)

const resourcesPath = "/resources"

// Doer executes a backend request and decodes its envelope. *httptransport.Pipeline satisfies it.
type Doer interface {
	Do(ctx context.Context, op string, req httptransport.Request, out any) error
}

// Client is the off-chain resource API.
type Client struct {
	doer Doer
}

// NewClient builds a Client over an authenticated pipeline.
func NewClient(doer Doer) *Client {
	return &Client{doer: doer}
}

// Create uploads content and metadata and returns the stored record.
func (c *Client) Create(ctx context.Context, draft Draft) (Resource, error) {
	if err := draft.validate(); err != nil {
		return Resource{}, err
	}
	fileName := draft.FileName
	if fileName == "" {
		fileName = "content.bin"
	}
	contentType := draft.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req := httptransport.Request{
		Method: http.MethodPost,
		Path:   resourcesPath,
		Multipart: &httptransport.Multipart{
			Fields: map[string]string{
				"title":          draft.Title,
				"description":    draft.Description,
				"contentAddress": draft.ContentAddress,
				"owner":          draft.Owner,
			},
			Files: []httptransport.FilePart{{
				Field:       "file",
				FileName:    fileName,
				ContentType: contentType,
				Content:     draft.Content,
			}},
		},
	}

	var created Resource
	if err := c.doer.Do(ctx, "resource.create", req, &created); err != nil {
		return Resource{}, err
	}
	if created.ID == "" {
		return Resource{}, errors.New(errors.KindTransport, "resource.create", "backend returned no resource id")
	}
	return created, nil
}

// Get fetches one resource.
func (c *Client) Get(ctx context.Context, id string) (Resource, error) {
	var out Resource
	err := c.doer.Do(ctx, "resource.get", httptransport.Request{
		Method: http.MethodGet,
		Path:   resourcesPath + "/" + url.PathEscape(id),
	}, &out)
	return out, err
}

// AttachLedgerReference records the minted token id and transaction hash on the resource.
func (c *Client) AttachLedgerReference(ctx context.Context, id, tokenID, txHash string) (Resource, error) {
	if tokenID == "" {
		return Resource{}, errors.New(errors.KindDomain, "resource.attach", "token id is required")
	}
	var out Resource
	err := c.doer.Do(ctx, "resource.attach", httptransport.Request{
		Method: http.MethodPut,
		Path:   resourcesPath + "/" + url.PathEscape(id) + "/ledger",
		JSON:   map[string]string{"tokenId": tokenID, "txHash": txHash},
	}, &out)
	return out, err
}

// Search returns one page of resources matching q.
func (c *Client) Search(ctx context.Context, q Query) (Page, error) {
	params := url.Values{}
	if q.Text != "" {
		params.Set("q", q.Text)
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Size > 0 {
		params.Set("size", strconv.Itoa(q.Size))
	}

	var out Page
	err := c.doer.Do(ctx, "resource.search", httptransport.Request{
		Method: http.MethodGet,
		Path:   resourcesPath,
		Query:  params,
	}, &out)
	return out, err
}

func (d Draft) validate() error {
	switch {
	case strings.TrimSpace(d.Title) == "":
		return errors.New(errors.KindDomain, "resource.create", "title is required")
	case strings.TrimSpace(d.ContentAddress) == "":
		return errors.New(errors.KindDomain, "resource.create", "content address is required")
	case len(d.Content) == 0:
		return errors.New(errors.KindDomain, "resource.create", "content is empty")
	}
	return nil
}
