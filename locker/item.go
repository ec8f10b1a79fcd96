// Package locker is the evidence repository: it stores uploaded artifacts,
// classifies them to report sections and keeps the chain-of-custody log.
package locker

import (
	"errors"
	"time"
)

// Sentinel errors for locker operations.
var (
	ErrItemNotFound     = errors.New("evidence item not found")
	ErrDuplicateItem    = errors.New("duplicate evidence item")
	ErrCustodyTampered  = errors.New("custody log tampered")
	ErrNoText           = errors.New("evidence item has no extracted text")
	ErrInvalidSection   = errors.New("invalid section")
	ErrStoreClosed      = errors.New("store closed")
	ErrUnknownBackend   = errors.New("unknown locker backend")
	ErrFilenameRequired = errors.New("filename is required")
)

// Kind separates documents from photo and video media.
type Kind string

const (
	KindDocument Kind = "document"
	KindMedia    Kind = "media"
)

// ItemStatus tracks how far an item has moved through intake.
type ItemStatus string

const (
	StatusReceived   ItemStatus = "received"
	StatusExtracted  ItemStatus = "extracted"
	StatusClassified ItemStatus = "classified"
	StatusFailed     ItemStatus = "failed"
)

// Item is one stored evidence artifact.
type Item struct {
	ID            string     `json:"id"`
	Exhibit       string     `json:"exhibit"`
	CaseID        string     `json:"case_id"`
	Filename      string     `json:"filename"`
	StoredPath    string     `json:"stored_path"`
	TextPath      string     `json:"text_path,omitempty"`
	SHA256        string     `json:"sha256"`
	Size          int64      `json:"size"`
	MimeType      string     `json:"mime_type"`
	Kind          Kind       `json:"kind"`
	Title         string     `json:"title,omitempty"`
	Section       string     `json:"section,omitempty"`
	Rule          string     `json:"rule,omitempty"`
	Status        ItemStatus `json:"status"`
	AddedBy       string     `json:"added_by"`
	AddedAt       time.Time  `json:"added_at"`
	ExtractMethod string     `json:"extract_method,omitempty"`
	Warnings      []string   `json:"warnings,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// HasText reports whether extracted text is stored for the item.
func (i *Item) HasText() bool {
	return i.TextPath != ""
}

func (i *Item) clone() *Item {
	c := *i
	if i.Warnings != nil {
		c.Warnings = append([]string(nil), i.Warnings...)
	}
	return &c
}
