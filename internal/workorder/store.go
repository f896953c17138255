package workorder

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/njagatron/PEPE-DOT/internal/storage"
)

// Backend abstracts the persistent record store for work orders.
type Backend interface {
	ListWorkOrders() ([]string, error)
	CreateWorkOrder(name string, state []byte) error
	GetWorkOrderState(name string) ([]byte, error)
	SaveWorkOrderState(name string, state []byte) error
	RenameWorkOrder(oldName, newName string) error
	DeleteWorkOrder(name string) error
	ActiveWorkOrder() (string, error)
	SetActiveWorkOrder(name string) error
}

// Store persists work-order states as serialized blobs behind a Backend.
// Each save overwrites the full record; there are no partial updates.
type Store struct {
	backend Backend
}

// NewStore wraps a storage backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// List returns work-order names in append order.
func (s *Store) List() ([]string, error) {
	return s.backend.ListWorkOrders()
}

// Create persists an empty state under name. The name must be non-empty
// after trimming; an exact-match collision fails with storage.ErrDuplicate.
func (s *Store) Create(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: work order name", ErrMissingInput)
	}
	blob, err := json.Marshal(EmptyState())
	if err != nil {
		return fmt.Errorf("serializing empty state: %w", err)
	}
	return s.backend.CreateWorkOrder(name, blob)
}

// State returns the persisted state for name, or an empty state if none
// exists. The active cursor is not touched.
func (s *Store) State(name string) (State, error) {
	blob, err := s.backend.GetWorkOrderState(name)
	if errors.Is(err, storage.ErrNotFound) {
		return EmptyState(), nil
	}
	if err != nil {
		return State{}, err
	}

	var state State
	if err := json.Unmarshal(blob, &state); err != nil {
		return State{}, fmt.Errorf("deserializing state for %q: %w", name, err)
	}
	if state.ActivePage < 1 {
		state.ActivePage = 1
	}
	return state, nil
}

// Load returns the state for name and marks it as the active work order.
// Unlike State, loading a name that was never created fails with
// storage.ErrNotFound; only Create brings records into existence.
func (s *Store) Load(name string) (State, error) {
	blob, err := s.backend.GetWorkOrderState(name)
	if err != nil {
		return State{}, err
	}

	var state State
	if err := json.Unmarshal(blob, &state); err != nil {
		return State{}, fmt.Errorf("deserializing state for %q: %w", name, err)
	}
	if state.ActivePage < 1 {
		state.ActivePage = 1
	}
	if err := s.backend.SetActiveWorkOrder(name); err != nil {
		return State{}, fmt.Errorf("setting active work order: %w", err)
	}
	return state, nil
}

// Save re-serializes the full state of name to storage (write-through).
func (s *Store) Save(name string, state State) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("serializing state for %q: %w", name, err)
	}
	return s.backend.SaveWorkOrderState(name, blob)
}

// Rename atomically moves the record and index entry; the active cursor
// follows when it pointed at oldName.
func (s *Store) Rename(oldName, newName string) error {
	if strings.TrimSpace(newName) == "" {
		return fmt.Errorf("%w: work order name", ErrMissingInput)
	}
	return s.backend.RenameWorkOrder(oldName, newName)
}

// Delete removes the record and index entry. If name was active no work
// order becomes active.
func (s *Store) Delete(name string) error {
	return s.backend.DeleteWorkOrder(name)
}

// Active returns the active work-order name, or "" when none is active.
func (s *Store) Active() (string, error) {
	return s.backend.ActiveWorkOrder()
}
