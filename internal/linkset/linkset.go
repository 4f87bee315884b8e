// Package linkset owns the pinned, discovered and rejected link collections
// of one document and keeps them free of duplicates.
//
// Invariants after every mutating call:
//   - no URL is in both pinned and discovered
//   - no rejected URL is in discovered
//   - rejected holds each URL once
//
// A Manager is not safe for concurrent use; the session loop owns it.
package linkset

import (
	"slices"

	"github.com/starford/contextpad/internal/models"
)

// Pending link placeholders shown until verification completes.
const (
	PendingTitle       = "Verifying..."
	PendingDescription = "We quickly check this link for you."
)

// Manager holds the link collections of the current document.
type Manager struct {
	pinned     []models.LinkResult
	discovered []models.LinkResult
	rejected   []string
	rejectedIx map[string]struct{}
	pending    map[string]struct{}
}

// New returns an empty Manager.
func New() *Manager {
	m := &Manager{}
	m.Reset()
	return m
}

// Reset clears all collections.
func (m *Manager) Reset() {
	m.pinned = []models.LinkResult{}
	m.discovered = []models.LinkResult{}
	m.rejected = []string{}
	m.rejectedIx = make(map[string]struct{})
	m.pending = make(map[string]struct{})
}

// Replace loads the collections of a stored document. Stored data may
// predate the invariants, so it is re-established here: duplicate pinned
// URLs keep their first occurrence, and discovered drops anything pinned
// or rejected.
func (m *Manager) Replace(links models.Links) {
	m.Reset()
	for _, u := range links.Rejected {
		m.addRejected(u)
	}
	seen := make(map[string]struct{}, len(links.Pinned))
	for _, l := range links.Pinned {
		if _, dup := seen[l.URL]; dup {
			continue
		}
		seen[l.URL] = struct{}{}
		m.pinned = append(m.pinned, l)
	}
	m.StoreResults(links.Discovered)
}

// StoreResults replaces discovered with candidates minus anything pinned or
// rejected. Candidate order is kept; duplicate candidates keep the first.
func (m *Manager) StoreResults(candidates []models.LinkResult) {
	skip := make(map[string]struct{}, len(m.pinned)+len(m.rejected)+len(candidates))
	for _, l := range m.pinned {
		skip[l.URL] = struct{}{}
	}
	for u := range m.rejectedIx {
		skip[u] = struct{}{}
	}
	out := make([]models.LinkResult, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := skip[c.URL]; ok {
			continue
		}
		skip[c.URL] = struct{}{}
		out = append(out, c)
	}
	m.discovered = out
}

// Pin moves the discovered link with url to the end of pinned. It reports
// whether anything moved; a missing url is a no-op.
func (m *Manager) Pin(url string) bool {
	i := indexOf(m.discovered, url)
	if i < 0 {
		return false
	}
	link := m.discovered[i]
	m.discovered = slices.Delete(m.discovered, i, i+1)
	m.pinned = append(m.pinned, link)
	return true
}

// Unpin moves the pinned link with url to the front of discovered. A link
// rejected while pinned is dropped instead of resurfacing.
func (m *Manager) Unpin(url string) bool {
	i := indexOf(m.pinned, url)
	if i < 0 {
		return false
	}
	link := m.pinned[i]
	m.pinned = slices.Delete(m.pinned, i, i+1)
	delete(m.pending, url)
	if m.IsRejected(url) {
		return true
	}
	if j := indexOf(m.discovered, url); j >= 0 {
		m.discovered = slices.Delete(m.discovered, j, j+1)
	}
	m.discovered = slices.Insert(m.discovered, 0, link)
	return true
}

// Reject removes url from discovered and records it as rejected. It
// reports whether the rejected set grew.
func (m *Manager) Reject(url string) bool {
	if url == "" {
		return false
	}
	if i := indexOf(m.discovered, url); i >= 0 {
		m.discovered = slices.Delete(m.discovered, i, i+1)
	}
	return m.addRejected(url)
}

// IsRejected reports whether url was rejected for this document.
func (m *Manager) IsRejected(url string) bool {
	_, ok := m.rejectedIx[url]
	return ok
}

// AddPending pins every url that is neither rejected nor already pinned as
// a placeholder awaiting verification. It returns the urls added.
func (m *Manager) AddPending(urls []string) []string {
	var added []string
	for _, u := range urls {
		if u == "" || m.IsRejected(u) || indexOf(m.pinned, u) >= 0 {
			continue
		}
		if i := indexOf(m.discovered, u); i >= 0 {
			m.discovered = slices.Delete(m.discovered, i, i+1)
		}
		m.pinned = append(m.pinned, models.LinkResult{
			URL:         u,
			Title:       PendingTitle,
			Description: PendingDescription,
		})
		m.pending[u] = struct{}{}
		added = append(added, u)
	}
	return added
}

// ResolvePending settles the pending links of one batch: those in verified
// get their metadata, the rest of the batch is dropped. Pending links of
// other batches are left alone.
func (m *Manager) ResolvePending(batch []string, verified []models.LinkResult) {
	byURL := make(map[string]models.LinkResult, len(verified))
	for _, v := range verified {
		byURL[v.URL] = v
	}
	var unverified []string
	for _, u := range batch {
		if _, ok := m.pending[u]; !ok {
			continue
		}
		v, ok := byURL[u]
		if !ok {
			unverified = append(unverified, u)
			continue
		}
		if i := indexOf(m.pinned, u); i >= 0 {
			m.pinned[i].Title = v.Title
			m.pinned[i].Description = v.Description
		}
		delete(m.pending, u)
	}
	m.DropPending(unverified)
}

// DropPending removes the pinned links of batch that are still awaiting
// verification.
func (m *Manager) DropPending(batch []string) {
	drop := make(map[string]struct{}, len(batch))
	for _, u := range batch {
		if _, ok := m.pending[u]; ok {
			drop[u] = struct{}{}
			delete(m.pending, u)
		}
	}
	if len(drop) == 0 {
		return
	}
	m.pinned = slices.DeleteFunc(m.pinned, func(l models.LinkResult) bool {
		_, ok := drop[l.URL]
		return ok
	})
}

// PendingCount returns the number of links awaiting verification.
func (m *Manager) PendingCount() int {
	return len(m.pending)
}

// Links returns a deep copy of the collections.
func (m *Manager) Links() models.Links {
	return models.Links{
		Pinned:     m.pinned,
		Discovered: m.discovered,
		Rejected:   m.rejected,
	}.Clone()
}

func (m *Manager) addRejected(url string) bool {
	if _, ok := m.rejectedIx[url]; ok {
		return false
	}
	m.rejectedIx[url] = struct{}{}
	m.rejected = append(m.rejected, url)
	return true
}

func indexOf(links []models.LinkResult, url string) int {
	return slices.IndexFunc(links, func(l models.LinkResult) bool { return l.URL == url })
}
