// Package knowledge implements the knowledge document store: Markdown-backed
// documents with ordered parts, an on-disk index, and reviewer comments.
package knowledge

import (
	"strconv"
	"time"
)

// Type is the category a knowledge document is classified into by the
// generator's keyword scoring table.
type Type string

const (
	TypeAlgorithm Type = "algorithm"
	TypeContract  Type = "contract"
	TypeSchema    Type = "schema"
	TypeWiring    Type = "wiring"
	TypeInvariant Type = "invariant"
	TypeFlow      Type = "flow"
)

// Status is a document's lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusOutdated Status = "outdated"
	StatusArchived Status = "archived"
)

// Origin marks a document synced in from a peer machine, nil for local ones.
type Origin struct {
	MachineID       string `json:"machineId"`
	MachineHostname string `json:"machineHostname"`
	MachineOS       string `json:"machineOS"`
}

// Part is one ordered section of a document's body.
type Part struct {
	PartID  string `json:"partId"` // "{doc.ID}.{1-based index}"
	Title   string `json:"title"`
	Summary string `json:"summary"` // one paragraph
	Content string `json:"content"` // everything after the summary paragraph
}

// Document is a knowledge document: a title, a type, an ordered list of
// parts, and provenance metadata.
type Document struct {
	ID     string `json:"id"` // "K\d+" for local documents
	Title  string `json:"title"`
	Type   Type   `json:"type"`
	Project string `json:"project"` // absolute path, used as an identifier only
	Status Status `json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	SourceSessionID string    `json:"sourceSessionId,omitempty"`
	SourceAgentID   string    `json:"sourceAgentId,omitempty"`
	SourceTimestamp time.Time `json:"sourceTimestamp,omitempty"`

	Parts []Part `json:"parts"`

	Origin *Origin `json:"origin,omitempty"`
}

// Renumber fixes parts[i].PartID to "{doc.ID}.{i+1}" for every part, per
// invariant 1: partId tracks position, not creation order.
func (d *Document) Renumber() {
	for i := range d.Parts {
		d.Parts[i].PartID = PartID(d.ID, i)
	}
}

// PartID formats the partId for the part at the given zero-based index.
func PartID(docID string, zeroBasedIndex int) string {
	return docID + "." + strconv.Itoa(zeroBasedIndex+1)
}

// IndexKey is the index's lookup key: "id" for local documents,
// "machineId:id" for remote ones.
func IndexKey(machineID, id string) string {
	if machineID == "" {
		return id
	}
	return machineID + ":" + id
}

// IndexEntry is the lightweight metadata the index persists per document,
// enough to list/filter without reading the backing file.
type IndexEntry struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Type            Type      `json:"type"`
	Project         string    `json:"project"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	SourceSessionID string    `json:"sourceSessionId,omitempty"`
	SourceAgentID   string    `json:"sourceAgentId,omitempty"`
	PartCount       int       `json:"partCount"`
	Origin          *Origin   `json:"origin,omitempty"`
}

// Filter selects documents for List; zero-value fields are unconstrained.
type Filter struct {
	Project string
	Type    Type
	Status  Status
	Origin  string // "local", "remote", or "" for both
}

// Comment is a reviewer or LLM note attached to a document, optionally
// scoped to one part.
type Comment struct {
	ID         int          `json:"id"`
	DocumentID string       `json:"documentId"`
	PartID     string       `json:"partId,omitempty"`
	Type       CommentType  `json:"type"`
	Content    string       `json:"content"`
	Source     CommentSrc   `json:"source"`
	State      CommentState `json:"state"`
	CreatedAt  time.Time    `json:"createdAt"`
	AddressedAt time.Time   `json:"addressedAt,omitempty"`
}

type CommentType string

const (
	CommentRemove   CommentType = "remove"
	CommentUpdate   CommentType = "update"
	CommentOutdated CommentType = "outdated"
	CommentExpand   CommentType = "expand"
	CommentGeneral  CommentType = "general"
)

type CommentSrc string

const (
	CommentSourceLLM      CommentSrc = "llm"
	CommentSourceUser     CommentSrc = "user"
	CommentSourceReviewer CommentSrc = "reviewer"
)

type CommentState string

const (
	CommentNotAddressed CommentState = "not_addressed"
	CommentAddressed    CommentState = "addressed"
)

// CommentFile is the per-document comments JSON file: an array plus its own
// monotonic ID allocator.
type CommentFile struct {
	Comments      []Comment `json:"comments"`
	NextCommentID int       `json:"nextCommentId"`
}
