// Package workorder implements the plan annotation model: named work-order
// records, each owning an ordered collection of uploaded plan documents and
// a ledger of photo-tagged annotation points.
package workorder

import (
	"errors"
	"time"
)

// ErrIndexOutOfRange is returned when a document or point is addressed by an
// invalid position.
var ErrIndexOutOfRange = errors.New("index out of range")

// ErrMissingInput is returned when a required user-supplied field (name,
// photo, document bytes) is absent or empty.
var ErrMissingInput = errors.New("missing required input")

// CaptureSource records where a point's photo came from.
type CaptureSource string

const (
	SourceCamera  CaptureSource = "camera"
	SourceGallery CaptureSource = "gallery"
)

// Document is an uploaded plan file owned by one work order. Content holds
// the raw PDF bytes; PageWidth/PageHeight are the native dimensions of the
// plan raster and define document space for its points.
type Document struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Content    []byte  `json:"content"`
	PageCount  int     `json:"page_count"`
	PageWidth  float64 `json:"page_width"`
	PageHeight float64 `json:"page_height"`
}

// Point is a photo-tagged annotation anchored to document-space coordinates
// on one page of one document. Coordinates are relative to the document's
// native raster, never to the on-screen stage, so display survives resizes.
// DocumentID is the stable reference; positional document indexes are
// derived at the presentation boundary.
type Point struct {
	ID           string        `json:"id"`
	DocumentID   string        `json:"document_id"`
	Page         int           `json:"page"`
	X            float64       `json:"x"`
	Y            float64       `json:"y"`
	Image        []byte        `json:"image"`
	Name         string        `json:"name"`
	Comment      string        `json:"comment"`
	OriginalName string        `json:"original_name"`
	CreatedAt    time.Time     `json:"created_at"`
	Source       CaptureSource `json:"source"`
	SessionID    string        `json:"session_id"`
}

// State is the full persisted record of one work order. Every mutation
// re-serializes the whole struct to storage.
type State struct {
	Documents        []Document `json:"documents"`
	ActiveDocumentID string     `json:"active_document_id"`
	ActivePage       int        `json:"active_page"`
	Points           []Point    `json:"points"`
}

// EmptyState is the state of a freshly created work order.
func EmptyState() State {
	return State{
		Documents:  []Document{},
		ActivePage: 1,
		Points:     []Point{},
	}
}

// DocumentIndex returns the position of the document with the given id, or
// -1 if it is not part of the collection.
func (s *State) DocumentIndex(id string) int {
	for i := range s.Documents {
		if s.Documents[i].ID == id {
			return i
		}
	}
	return -1
}

// ActiveDocument returns the active document and its position, or nil and
// -1 when the collection is empty or the cursor is unset.
func (s *State) ActiveDocument() (*Document, int) {
	idx := s.DocumentIndex(s.ActiveDocumentID)
	if idx < 0 {
		return nil, -1
	}
	return &s.Documents[idx], idx
}
