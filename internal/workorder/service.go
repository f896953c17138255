package workorder

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/njagatron/PEPE-DOT/internal/geometry"
	"github.com/njagatron/PEPE-DOT/internal/pdfinfo"
)

// Service implements the document-collection and point-ledger operations on
// top of the Store. Every operation loads the named work order's state,
// mutates a copy, and persists it before returning; when the write fails
// the copy is discarded so memory never runs ahead of storage. The mutex
// serializes those load-mutate-save cycles across callers (HTTP handlers,
// MCP tools) so overlapping mutations cannot overwrite each other's writes.
type Service struct {
	store     *Store
	sessionID string
	decode    func(raw []byte) (pdfinfo.Info, error)

	mu sync.Mutex
}

// NewService creates a Service. sessionID partitions this run's points from
// earlier sessions in the default ledger view.
func NewService(store *Store, sessionID string) *Service {
	return &Service{
		store:     store,
		sessionID: sessionID,
		decode:    pdfinfo.Read,
	}
}

// SessionID returns the identifier tagged onto points created by this run.
func (s *Service) SessionID() string {
	return s.sessionID
}

// Store exposes the underlying work-order store.
func (s *Service) Store() *Store {
	return s.store
}

// --- Document collection ---

// AddDocument decodes raw plan bytes, appends the document with a fresh
// identifier, and makes it active at page 1.
func (s *Service) AddDocument(order, name string, raw []byte) (State, error) {
	if len(raw) == 0 {
		return State{}, fmt.Errorf("%w: document content", ErrMissingInput)
	}
	if strings.TrimSpace(name) == "" {
		return State{}, fmt.Errorf("%w: document name", ErrMissingInput)
	}

	info, err := s.decode(raw)
	if err != nil {
		return State{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.State(order)
	if err != nil {
		return State{}, err
	}

	doc := Document{
		ID:         uuid.New().String(),
		Name:       name,
		Content:    raw,
		PageCount:  info.PageCount,
		PageWidth:  info.PageWidth,
		PageHeight: info.PageHeight,
	}
	state.Documents = append(state.Documents, doc)
	state.ActiveDocumentID = doc.ID
	state.ActivePage = 1

	if err := s.store.Save(order, state); err != nil {
		return State{}, err
	}
	return state, nil
}

// SelectDocument makes the document at index active and resets the page
// cursor to 1. Selecting the already-active document is idempotent beyond
// the page reset.
func (s *Service) SelectDocument(order string, index int) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.State(order)
	if err != nil {
		return State{}, err
	}
	if index < 0 || index >= len(state.Documents) {
		return State{}, fmt.Errorf("%w: document %d of %d", ErrIndexOutOfRange, index, len(state.Documents))
	}

	state.ActiveDocumentID = state.Documents[index].ID
	state.ActivePage = 1

	if err := s.store.Save(order, state); err != nil {
		return State{}, err
	}
	return state, nil
}

// RenameDocument renames in place. Document names carry no uniqueness rule.
func (s *Service) RenameDocument(order string, index int, newName string) (State, error) {
	if strings.TrimSpace(newName) == "" {
		return State{}, fmt.Errorf("%w: document name", ErrMissingInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.State(order)
	if err != nil {
		return State{}, err
	}
	if index < 0 || index >= len(state.Documents) {
		return State{}, fmt.Errorf("%w: document %d of %d", ErrIndexOutOfRange, index, len(state.Documents))
	}

	state.Documents[index].Name = newName

	if err := s.store.Save(order, state); err != nil {
		return State{}, err
	}
	return state, nil
}

// RemoveDocument deletes the document at index and cascades: its points are
// removed, points of later documents keep their id reference (their derived
// index shifts down by one), and the active document falls back to the
// previous position, or to none when the collection empties.
func (s *Service) RemoveDocument(order string, index int) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.State(order)
	if err != nil {
		return State{}, err
	}
	if index < 0 || index >= len(state.Documents) {
		return State{}, fmt.Errorf("%w: document %d of %d", ErrIndexOutOfRange, index, len(state.Documents))
	}

	removed := state.Documents[index]
	wasActive := state.ActiveDocumentID == removed.ID

	kept := state.Points[:0]
	for _, p := range state.Points {
		if p.DocumentID != removed.ID {
			kept = append(kept, p)
		}
	}
	state.Points = kept
	state.Documents = append(state.Documents[:index], state.Documents[index+1:]...)

	if wasActive {
		if len(state.Documents) == 0 {
			state.ActiveDocumentID = ""
			state.ActivePage = 1
		} else {
			next := index - 1
			if next < 0 {
				next = 0
			}
			state.ActiveDocumentID = state.Documents[next].ID
			state.ActivePage = 1
		}
	}

	if err := s.store.Save(order, state); err != nil {
		return State{}, err
	}
	return state, nil
}

// ChangePage moves the page cursor by direction (+1 or -1), clamped to
// [1, pageCount]. Without an active document this is a no-op.
func (s *Service) ChangePage(order string, direction int) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.State(order)
	if err != nil {
		return State{}, err
	}

	doc, _ := state.ActiveDocument()
	if doc == nil {
		return state, nil
	}

	page := state.ActivePage + direction
	if page < 1 {
		page = 1
	}
	if page > doc.PageCount {
		page = doc.PageCount
	}
	if page == state.ActivePage {
		return state, nil
	}
	state.ActivePage = page

	if err := s.store.Save(order, state); err != nil {
		return State{}, err
	}
	return state, nil
}

// --- Point ledger ---

// PointInput carries the user-supplied fields for a new point. Coordinates
// are document-space by default; when Stage is non-zero they are treated as
// stage pixels and mapped through the fit of the active document's native
// raster into that stage.
type PointInput struct {
	BaseName     string
	Comment      string
	Image        []byte
	OriginalName string
	Source       CaptureSource
	X            float64
	Y            float64
	Stage        geometry.Size
}

// AddPoint appends a point to the ledger, tagged with the active document,
// the active page, and this run's session identifier. The stored name is
// the user base name concatenated with the creation date (YYYYMMDD).
func (s *Service) AddPoint(order string, input PointInput) (State, error) {
	if strings.TrimSpace(input.BaseName) == "" {
		return State{}, fmt.Errorf("%w: point name", ErrMissingInput)
	}
	if len(input.Image) == 0 {
		return State{}, fmt.Errorf("%w: point photo", ErrMissingInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.State(order)
	if err != nil {
		return State{}, err
	}

	doc, _ := state.ActiveDocument()
	if doc == nil {
		return State{}, fmt.Errorf("%w: no document loaded", ErrMissingInput)
	}

	x, y := input.X, input.Y
	if input.Stage.Width > 0 && input.Stage.Height > 0 {
		fit := geometry.Fit(input.Stage, geometry.Size{Width: doc.PageWidth, Height: doc.PageHeight})
		x, y = fit.ToDocument(input.X, input.Y)
	}

	source := input.Source
	if source == "" {
		source = SourceGallery
	}

	now := time.Now().UTC()
	point := Point{
		ID:           uuid.New().String(),
		DocumentID:   doc.ID,
		Page:         state.ActivePage,
		X:            x,
		Y:            y,
		Image:        input.Image,
		Name:         strings.TrimSpace(input.BaseName) + now.Format("20060102"),
		Comment:      input.Comment,
		OriginalName: input.OriginalName,
		CreatedAt:    now,
		Source:       source,
		SessionID:    s.sessionID,
	}
	state.Points = append(state.Points, point)

	if err := s.store.Save(order, state); err != nil {
		return State{}, err
	}
	return state, nil
}

// EditPoint updates only the provided fields of the point at index. A name
// that is empty after trimming leaves the stored name unchanged.
func (s *Service) EditPoint(order string, index int, newName, newComment *string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.State(order)
	if err != nil {
		return State{}, err
	}
	if index < 0 || index >= len(state.Points) {
		return State{}, fmt.Errorf("%w: point %d of %d", ErrIndexOutOfRange, index, len(state.Points))
	}

	if newName != nil {
		if trimmed := strings.TrimSpace(*newName); trimmed != "" {
			state.Points[index].Name = trimmed
		}
	}
	if newComment != nil {
		state.Points[index].Comment = *newComment
	}

	if err := s.store.Save(order, state); err != nil {
		return State{}, err
	}
	return state, nil
}

// RemovePoint deletes the point at index; later points shift down.
func (s *Service) RemovePoint(order string, index int) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.State(order)
	if err != nil {
		return State{}, err
	}
	if index < 0 || index >= len(state.Points) {
		return State{}, fmt.Errorf("%w: point %d of %d", ErrIndexOutOfRange, index, len(state.Points))
	}

	state.Points = append(state.Points[:index], state.Points[index+1:]...)

	if err := s.store.Save(order, state); err != nil {
		return State{}, err
	}
	return state, nil
}

// PointFilter narrows the ledger view. DocumentIndex -1 and Page 0 match
// everything; the session restriction is lifted by AllSessions.
type PointFilter struct {
	DocumentIndex int
	Page          int
	AllSessions   bool
}

// PointRecord is a ledger entry together with its positional identifiers,
// used at the presentation boundary.
type PointRecord struct {
	Point
	Index         int    `json:"index"`
	DocumentIndex int    `json:"document_index"`
	DocumentName  string `json:"document_name"`
}

// Points returns the ledger entries matching the filter, in insertion
// order. The view is recomputed on every call, never cached.
func (s *Service) Points(order string, filter PointFilter) ([]PointRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.State(order)
	if err != nil {
		return nil, err
	}
	return s.filterPoints(state, filter), nil
}

func (s *Service) filterPoints(state State, filter PointFilter) []PointRecord {
	records := []PointRecord{}
	for i, p := range state.Points {
		docIdx := state.DocumentIndex(p.DocumentID)
		if filter.DocumentIndex >= 0 && docIdx != filter.DocumentIndex {
			continue
		}
		if filter.Page > 0 && p.Page != filter.Page {
			continue
		}
		if !filter.AllSessions && p.SessionID != s.sessionID {
			continue
		}

		docName := ""
		if docIdx >= 0 {
			docName = state.Documents[docIdx].Name
		}
		records = append(records, PointRecord{
			Point:         p,
			Index:         i,
			DocumentIndex: docIdx,
			DocumentName:  docName,
		})
	}
	return records
}
