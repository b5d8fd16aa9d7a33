// Package pipeline orchestrates classification end to end: asset
// identification, document classification, routing, learning write-back,
// and the externally exposed operations.
package pipeline

import (
	"context"
)

// Email is one inbound message from the external email source.
type Email struct {
	Sender      string       `json:"sender"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments"`
}

// Attachment is one file carried by an email.
type Attachment struct {
	Filename string `json:"filename"`
	Bytes    []byte `json:"-"`
}

// EmailSource yields inbound emails. Retrieval and authentication are
// external concerns; the pipeline only consumes.
type EmailSource interface {
	// Next blocks for the next email. Returns nil, io.EOF when drained.
	Next(ctx context.Context) (*Email, error)
}

// SecurityScanner checks an attachment before routing. An external
// antivirus integration implements this.
type SecurityScanner interface {
	// Scan returns threat == "" for a clean attachment.
	Scan(ctx context.Context, att Attachment) (threat string, err error)
}

// DocumentSink persists an accepted document under (asset, category).
type DocumentSink interface {
	Store(ctx context.Context, assetID, category string, att Attachment) error
}
