// Package memory provides an in-memory data gateway for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/genre-analyzer/internal/analysis"
)

// Store holds requests, genres and associations in maps guarded by a RWMutex.
type Store struct {
	mu           sync.RWMutex
	requests     map[int64]analysis.Request
	genres       map[int64]analysis.Genre
	associations map[int64]map[int64]struct{}
	pingErr      error
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		requests:     make(map[int64]analysis.Request),
		genres:       make(map[int64]analysis.Genre),
		associations: make(map[int64]map[int64]struct{}),
	}
}

// PutRequest inserts or replaces an analysis request.
func (s *Store) PutRequest(req analysis.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
}

// PutGenre inserts or replaces a genre.
func (s *Store) PutGenre(g analysis.Genre) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genres[g.ID] = g
}

// Associate links a request to a genre. Repeating a pair is a no-op.
func (s *Store) Associate(requestID, genreID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.genres[genreID]; !ok {
		return fmt.Errorf("genre %d: %w", genreID, analysis.ErrNotFound)
	}
	set, ok := s.associations[requestID]
	if !ok {
		set = make(map[int64]struct{})
		s.associations[requestID] = set
	}
	set[genreID] = struct{}{}
	return nil
}

// SetPingError makes Ping fail, for readiness tests.
func (s *Store) SetPingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

// FetchRequest returns the stored request or ErrNotFound.
func (s *Store) FetchRequest(ctx context.Context, id int64) (analysis.Request, error) {
	if err := ctx.Err(); err != nil {
		return analysis.Request{}, fmt.Errorf("fetch analysis request %d: %w: %w", id, analysis.ErrStoreUnavailable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return analysis.Request{}, fmt.Errorf("analysis request %d: %w", id, analysis.ErrNotFound)
	}
	return req, nil
}

// FetchGenreAssociations returns the request's genres ordered by genre id.
func (s *Store) FetchGenreAssociations(ctx context.Context, requestID int64) ([]analysis.GenreAssociation, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch genre associations: %w: %w", analysis.ErrStoreUnavailable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]analysis.GenreAssociation, 0, len(s.associations[requestID]))
	for genreID := range s.associations[requestID] {
		g := s.genres[genreID]
		out = append(out, analysis.GenreAssociation{
			GenreID:       g.ID,
			GenreName:     g.Name,
			GenreKeywords: g.Keywords,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GenreID < out[j].GenreID })
	return out, nil
}

// Ping reports the configured ping error, if any.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pingErr != nil {
		return fmt.Errorf("ping memory store: %w: %w", analysis.ErrStoreUnavailable, s.pingErr)
	}
	return nil
}
