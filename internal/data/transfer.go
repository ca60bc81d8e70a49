package data

import (
	"encoding/json"
	"errors"
	"io"
	"time"
)

// Transfer records one relay invocation: which link was requested, which
// provider served it and how far the stream got.
type Transfer struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Provider  string         `json:"provider"`
	Filename  string         `json:"filename"`
	Bytes     int64          `json:"bytes"`
	Status    TransferStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type Transfers []*Transfer
type TransferStatus string

const (
	StatusActive   TransferStatus = "Active"
	StatusComplete TransferStatus = "Complete"
	StatusFailed   TransferStatus = "Failed"
)

var (
	ErrNotFound      = errors.New("transfer not found")
	ErrInvalidSource = errors.New("source url is required")
	ErrIsFolder      = errors.New("link is a folder, browse it first")
)

func (t *Transfers) ToJSON(w io.Writer) error { return json.NewEncoder(w).Encode(t) }

func (t *Transfer) ToJSON(w io.Writer) error { return json.NewEncoder(w).Encode(t) }

func (t *Transfer) FromJSON(r io.Reader) error { return json.NewDecoder(r).Decode(t) }

func (t *Transfer) Clone() *Transfer {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func (t Transfers) Clone() Transfers {
	out := make(Transfers, 0, len(t))
	for _, tr := range t {
		out = append(out, tr.Clone())
	}
	return out
}
