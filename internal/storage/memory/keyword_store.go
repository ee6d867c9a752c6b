// Package memory provides an in-memory keyword repository for development
// and testing.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/serpwatch/rankscan/internal/rank"
)

// ErrNotFound is returned when a project or keyword does not exist for the
// given tenant scope.
var ErrNotFound = errors.New("not found")

// KeywordStore implements rank.KeywordRepository with mutex-guarded maps.
// Appends mutate only the keyword's own history slice under the lock, so
// overlapping runs cannot lose points.
type KeywordStore struct {
	mu       sync.RWMutex
	projects map[string]rank.Project
	keywords map[string]*rank.Keyword
	// owner maps keyword id to its project id for scope checks.
	owner map[string]string
}

// NewKeywordStore constructs an empty store.
func NewKeywordStore() *KeywordStore {
	return &KeywordStore{
		projects: make(map[string]rank.Project),
		keywords: make(map[string]*rank.Keyword),
		owner:    make(map[string]string),
	}
}

// CreateProject registers a project.
func (s *KeywordStore) CreateProject(_ context.Context, p rank.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[p.ID]; exists {
		return fmt.Errorf("project %s already exists", p.ID)
	}
	s.projects[p.ID] = p
	return nil
}

// CreateKeyword registers a keyword with its "not yet checked" sentinel
// point, mirroring how the dashboard creates keywords.
func (s *KeywordStore) CreateKeyword(_ context.Context, tenantID string, kw rank.Keyword, registeredAt time.Time) error {
	if len([]rune(kw.Term)) < 3 {
		return fmt.Errorf("keyword term must be at least 3 characters")
	}
	if !rank.ValidCountry(kw.Country) {
		return fmt.Errorf("unsupported country %q", kw.Country)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[kw.ProjectID]
	if !ok || project.TenantID != tenantID {
		return fmt.Errorf("project %s: %w", kw.ProjectID, ErrNotFound)
	}
	if _, exists := s.keywords[kw.ID]; exists {
		return fmt.Errorf("keyword %s already exists", kw.ID)
	}
	stored := kw
	stored.History = []rank.HistoryPoint{{CheckedAt: registeredAt, Position: nil}}
	s.keywords[kw.ID] = &stored
	s.owner[kw.ID] = kw.ProjectID
	return nil
}

// DeleteProject removes a project and cascades to its keywords and their
// history.
func (s *KeywordStore) DeleteProject(_ context.Context, tenantID, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[projectID]
	if !ok || project.TenantID != tenantID {
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	delete(s.projects, projectID)
	for id, owner := range s.owner {
		if owner == projectID {
			delete(s.keywords, id)
			delete(s.owner, id)
		}
	}
	return nil
}

// ListScanTargets returns keywords joined with project context, optionally
// scoped to one tenant. History slices are copied so callers never alias
// the store's internal state.
func (s *KeywordStore) ListScanTargets(_ context.Context, tenantID string) ([]rank.ScanTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var targets []rank.ScanTarget
	for id, kw := range s.keywords {
		project, ok := s.projects[s.owner[id]]
		if !ok {
			continue
		}
		if tenantID != "" && project.TenantID != tenantID {
			continue
		}
		cp := *kw
		cp.History = make([]rank.HistoryPoint, len(kw.History))
		copy(cp.History, kw.History)
		targets = append(targets, rank.ScanTarget{
			TenantID:      project.TenantID,
			ProjectID:     project.ID,
			ProjectDomain: project.Domain,
			ScanDay:       project.ScanDay,
			Keyword:       cp,
		})
	}
	return targets, nil
}

// AppendHistory atomically appends one point to a keyword's history.
func (s *KeywordStore) AppendHistory(_ context.Context, tenantID, projectID, keywordID string, point rank.HistoryPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kw, ok := s.keywords[keywordID]
	if !ok || s.owner[keywordID] != projectID {
		return fmt.Errorf("keyword %s: %w", keywordID, ErrNotFound)
	}
	project, ok := s.projects[projectID]
	if !ok || project.TenantID != tenantID {
		return fmt.Errorf("keyword %s: %w", keywordID, ErrNotFound)
	}
	kw.History = append(kw.History, point)
	return nil
}

// History returns a copy of a keyword's history, for assertions and local
// tooling.
func (s *KeywordStore) History(keywordID string) []rank.HistoryPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kw, ok := s.keywords[keywordID]
	if !ok {
		return nil
	}
	out := make([]rank.HistoryPoint, len(kw.History))
	copy(out, kw.History)
	return out
}
