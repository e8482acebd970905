package core

import "pkt.systems/notesync/schema"

// tabSession is the ordered set of open tabs plus the active selection.
// At most one tab exists per id, and a non-zero active id always names an
// open tab.
type tabSession struct {
	tabs   map[schema.DocID]*tab
	order  []schema.DocID
	active schema.DocID
}

func newTabSession() *tabSession {
	return &tabSession{tabs: make(map[schema.DocID]*tab)}
}

// open selects the tab for doc.ID, appending a new tab first if none is open.
// It reports whether a tab was appended.
func (s *tabSession) open(doc schema.Document) bool {
	if _, ok := s.tabs[doc.ID]; ok {
		s.active = doc.ID
		return false
	}
	s.tabs[doc.ID] = newTab(doc)
	s.order = append(s.order, doc.ID)
	s.active = doc.ID
	return true
}

// close removes a tab. The last remaining tab is never closed. When the
// active tab goes away the first remaining tab becomes active.
func (s *tabSession) close(id schema.DocID) (*tab, error) {
	t := s.tabs[id]
	if t == nil {
		return nil, schema.ErrTabNotFound
	}
	if len(s.order) <= 1 {
		return nil, schema.ErrCannotCloseLastTab
	}
	delete(s.tabs, id)
	s.order = removeTabID(s.order, id)
	if s.active == id {
		s.active = s.order[0]
	}
	return t, nil
}

// edit replaces the content in place. Unchanged content is still an edit.
func (s *tabSession) edit(id schema.DocID, content string) error {
	t := s.tabs[id]
	if t == nil {
		return schema.ErrTabNotFound
	}
	t.Content = content
	return nil
}

func (s *tabSession) setTitle(id schema.DocID, title string) error {
	t := s.tabs[id]
	if t == nil {
		return schema.ErrTabNotFound
	}
	t.Title = title
	return nil
}

func (s *tabSession) activate(id schema.DocID) error {
	if _, ok := s.tabs[id]; !ok {
		return schema.ErrTabNotFound
	}
	s.active = id
	return nil
}

func (s *tabSession) activeTab() (*tab, bool) {
	if s.active.IsZero() {
		return nil, false
	}
	t, ok := s.tabs[s.active]
	return t, ok
}

func (s *tabSession) get(id schema.DocID) *tab {
	return s.tabs[id]
}

func (s *tabSession) has(id schema.DocID) bool {
	_, ok := s.tabs[id]
	return ok
}

func (s *tabSession) ids() []schema.DocID {
	return append([]schema.DocID(nil), s.order...)
}

func (s *tabSession) len() int {
	return len(s.order)
}

// rekey moves a tab to a new id, keeping its position and selection.
func (s *tabSession) rekey(from, to schema.DocID) bool {
	t := s.tabs[from]
	if t == nil {
		return false
	}
	if _, exists := s.tabs[to]; exists {
		return false
	}
	delete(s.tabs, from)
	t.ID = to
	s.tabs[to] = t
	for i, id := range s.order {
		if id == from {
			s.order[i] = to
			break
		}
	}
	if s.active == from {
		s.active = to
	}
	return true
}

func removeTabID(order []schema.DocID, id schema.DocID) []schema.DocID {
	for i, current := range order {
		if current == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
