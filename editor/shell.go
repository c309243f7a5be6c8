package editor

import (
	"fmt"
	"sync"
)

// Section is one of the mutually exclusive views of the admin panel.
type Section string

const (
	SectionEditor    Section = "editor"
	SectionPreview   Section = "preview"
	SectionPublished Section = "published"
	SectionDrafts    Section = "drafts"
)

// Sections lists every section in navigation order.
var Sections = []Section{SectionEditor, SectionPreview, SectionPublished, SectionDrafts}

// ParseSection maps a query value to a Section.
func ParseSection(s string) (Section, bool) {
	for _, sec := range Sections {
		if string(sec) == s {
			return sec, true
		}
	}
	return "", false
}

// Shell tracks which section is visible, whether the editor is read-only,
// and whether there are unsaved changes. Exactly one section is active at
// a time.
type Shell struct {
	mu       sync.RWMutex
	active   Section
	admin    bool
	viewOnly bool
	unsaved  bool
}

// NewShell starts on the editor section. Non-admin shells are permanently
// read-only.
func NewShell(admin bool) *Shell {
	return &Shell{active: SectionEditor, admin: admin}
}

func (s *Shell) Active() Section {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Shell) Switch(sec Section) error {
	if _, ok := ParseSection(string(sec)); !ok {
		return fmt.Errorf("editor: unknown section %q", sec)
	}
	s.mu.Lock()
	s.active = sec
	s.mu.Unlock()
	return nil
}

// CanMutate reports whether edits are currently allowed.
func (s *Shell) CanMutate() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.admin && !s.viewOnly
}

func (s *Shell) ViewOnly() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewOnly || !s.admin
}

func (s *Shell) SetViewOnly(v bool) {
	s.mu.Lock()
	s.viewOnly = v
	s.mu.Unlock()
}

func (s *Shell) MarkDirty() {
	s.mu.Lock()
	s.unsaved = true
	s.mu.Unlock()
}

func (s *Shell) MarkSaved() {
	s.mu.Lock()
	s.unsaved = false
	s.mu.Unlock()
}

func (s *Shell) Unsaved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unsaved
}
