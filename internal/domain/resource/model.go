package resource

import "time"

// Resource is an off-chain learning resource record.
type Resource struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	ContentAddress string    `json:"contentAddress"`
	Owner          string    `json:"owner,omitempty"`
	FileName       string    `json:"fileName,omitempty"`
	Size           int64     `json:"size"`
	TokenID        string    `json:"tokenId,omitempty"`
	TxHash         string    `json:"txHash,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Minted reports whether a ledger reference has been attached.
func (r Resource) Minted() bool {
	return r.TokenID != ""
}

// Draft is the content and metadata for a new resource.
type Draft struct {
	Title          string
	Description    string
	ContentAddress string
	Owner          string
	FileName       string
	ContentType    string
	Content        []byte
}

// Query selects a page of resources.
type Query struct {
	Text string
	Page int
	Size int
}

// Page is one page of search results.
type Page struct {
	Items []Resource `json:"items"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
	Size  int        `json:"size"`
}

// HasMore reports whether further pages exist.
func (p Page) HasMore() bool {
	return p.Page > 0 && len(p.Items) < p.Total
}
