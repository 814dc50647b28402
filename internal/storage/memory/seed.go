package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/genre-analyzer/internal/analysis"
)

// Seed is the on-disk fixture format used to populate a Store for local runs.
type Seed struct {
	Genres   []SeedGenre   `yaml:"genres"`
	Requests []SeedRequest `yaml:"requests"`
}

// SeedGenre is one genre row in a seed file.
type SeedGenre struct {
	ID       int64  `yaml:"id"`
	Name     string `yaml:"name"`
	Keywords string `yaml:"keywords"`
}

// SeedRequest is one analysis request and the genre ids it is associated with.
type SeedRequest struct {
	ID     int64   `yaml:"id"`
	Text   string  `yaml:"text"`
	Genres []int64 `yaml:"genres"`
}

// LoadSeedFile reads a YAML seed file and applies it to the store.
func (s *Store) LoadSeedFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	return s.ApplySeed(seed)
}

// ApplySeed inserts every genre, request and association in the seed.
func (s *Store) ApplySeed(seed Seed) error {
	for _, g := range seed.Genres {
		s.PutGenre(analysis.Genre{ID: g.ID, Name: g.Name, Keywords: g.Keywords})
	}
	for _, r := range seed.Requests {
		s.PutRequest(analysis.Request{ID: r.ID, Text: r.Text})
		for _, genreID := range r.Genres {
			if err := s.Associate(r.ID, genreID); err != nil {
				return fmt.Errorf("seed request %d: %w", r.ID, err)
			}
		}
	}
	return nil
}
