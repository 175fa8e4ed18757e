// Package store keeps the template library in memory and publishes immutable
// copies of it to readers.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ByLCY/stencil/model"
)

// ErrNotFound 表示模板、分组或活动模板不存在。
var ErrNotFound = errors.New("store: not found")

// Reader is the read side consumed by the HTTP surface and the CLI.
// Every returned template is a copy owned by the caller.
type Reader interface {
	Template(id string) (*model.Template, error)
	Templates() []*model.Template
	Categories() []model.Category
	ActiveTemplate(group string) (*model.Template, error)
}

// Store is a concurrency-safe template library.
type Store struct {
	mu         sync.RWMutex
	templates  map[string]*model.Template
	categories []model.Category
	// activated 记录通过 Activate 设置的活动模板，重新加载后仍然生效
	activated map[string]string
}

var _ Reader = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{templates: map[string]*model.Template{}, activated: map[string]string{}}
}

// Add inserts a template. IDs must be unique and the canvas must be valid.
func (s *Store) Add(t *model.Template) error {
	if t == nil || t.ID == "" {
		return errors.New("store: template id is required")
	}
	if err := t.Validate(); err != nil {
		return fmt.Errorf("模板 %s: %w", t.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.templates[t.ID]; dup {
		return fmt.Errorf("store: duplicate template id %q", t.ID)
	}
	s.templates[t.ID] = t.Clone()
	return nil
}

// SetCategories replaces the category list.
func (s *Store) SetCategories(cats []model.Category) {
	s.mu.Lock()
	s.categories = append([]model.Category(nil), cats...)
	s.mu.Unlock()
}

func (s *Store) Template(id string) (*model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %q: %w", id, ErrNotFound)
	}
	return t.Clone(), nil
}

// Templates returns every template ordered by ID.
func (s *Store) Templates() []*model.Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Categories() []model.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Category(nil), s.categories...)
}

// ActiveTemplate returns the template currently active in group.
func (s *Store) ActiveTemplate(group string) (*model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.templates {
		if t.Group == group && t.Active {
			return t.Clone(), nil
		}
	}
	return nil, fmt.Errorf("group %q has no active template: %w", group, ErrNotFound)
}

// Activate makes id the only active template of group.
func (s *Store) Activate(group, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok || t.Group != group {
		return fmt.Errorf("template %q in group %q: %w", id, group, ErrNotFound)
	}
	s.activateLocked(group, id)
	s.activated[group] = id
	return nil
}

func (s *Store) activateLocked(group, id string) {
	for _, t := range s.templates {
		if t.Group == group {
			t.Active = t.ID == id
		}
	}
}

// replace swaps in a freshly loaded library and re-applies earlier activations
// whose template still exists in the same group.
func (s *Store) replace(next *Store) {
	next.mu.RLock()
	templates, categories := next.templates, next.categories
	next.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = templates
	s.categories = categories
	for group, id := range s.activated {
		if t, ok := s.templates[id]; ok && t.Group == group {
			s.activateLocked(group, id)
		} else {
			delete(s.activated, group)
		}
	}
	s.normalizeLocked()
}

// normalizeLocked 保证每个分组至多一个活动模板（保留 ID 最小的那个）。
func (s *Store) normalizeLocked() {
	ids := make([]string, 0, len(s.templates))
	for id := range s.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	seen := map[string]bool{}
	for _, id := range ids {
		t := s.templates[id]
		if !t.Active || t.Group == "" {
			continue
		}
		if seen[t.Group] {
			t.Active = false
			continue
		}
		seen[t.Group] = true
	}
}
