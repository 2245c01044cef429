// internal/store/store.go
// Package store keeps the result bundles of finished runs under unique
// titles and persists them to SQLite.
package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ColonelBlimp/stepfit/internal/analysis"
)

var (
	// ErrDuplicateTitle indicates a bundle is already stored under the title
	ErrDuplicateTitle = errors.New("title already exists")
	// ErrNotFound indicates no bundle is stored under the title
	ErrNotFound = errors.New("result not found")
	// ErrNilBundle indicates a nil bundle was passed to Put or Commit
	ErrNilBundle = errors.New("bundle is nil")
)

// Store maps titles to result bundles, keeping insertion order.
// Bundles are never removed.
type Store struct {
	mu      sync.RWMutex
	order   []string
	bundles map[string]*analysis.Bundle
}

// New creates an empty store
func New() *Store {
	return &Store{bundles: make(map[string]*analysis.Bundle)}
}

// Put stores b under title. b.Title is not consulted.
func (s *Store) Put(title string, b *analysis.Bundle) error {
	if b == nil {
		return ErrNilBundle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(title, b)
}

func (s *Store) putLocked(title string, b *analysis.Bundle) error {
	if _, ok := s.bundles[title]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTitle, title)
	}
	s.bundles[title] = b
	s.order = append(s.order, title)
	return nil
}

// Get returns the bundle stored under title.
func (s *Store) Get(title string) (*analysis.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bundles[title]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, title)
	}
	return b, nil
}

// Titles returns all titles in insertion order
func (s *Store) Titles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of stored bundles
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// NextTitle returns the title the next run with params would get:
// "{window}_{threshold:.3f}_{n}", n being one more than the number of
// titles already sharing the prefix. If that title is taken (possible
// after a restore) n is raised until the title is free.
func (s *Store) NextTitle(params analysis.Params) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextTitleLocked(params)
}

func (s *Store) nextTitleLocked(params analysis.Params) string {
	prefix := TitlePrefix(params)
	n := 1
	for _, t := range s.order {
		if strings.HasPrefix(t, prefix) {
			n++
		}
	}
	title := fmt.Sprintf("%s%d", prefix, n)
	for {
		if _, ok := s.bundles[title]; !ok {
			return title
		}
		n++
		title = fmt.Sprintf("%s%d", prefix, n)
	}
}

// Commit titles b, stores it and returns the title.
func (s *Store) Commit(b *analysis.Bundle) (string, error) {
	if b == nil {
		return "", ErrNilBundle
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	title := s.nextTitleLocked(b.Params)
	b.Title = title
	if err := s.putLocked(title, b); err != nil {
		return "", err
	}
	return title, nil
}

// TitlePrefix is the title prefix shared by all runs with params.
func TitlePrefix(params analysis.Params) string {
	return fmt.Sprintf("%d_%.3f_", params.Window, params.Threshold)
}
