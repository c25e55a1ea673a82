// Package document provides the mutable state tree owned by a session.
//
// A Document is a titled collection of string-keyed values with a revision
// counter that advances on every mutation. Individual operations are safe for
// concurrent use; compound read-modify-write sections are serialized by the
// owning session's document lock, not by this package.
package document

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/bower/pkg/domain"
)

// Document is a mutable state tree. The zero value is not usable; construct
// with New.
type Document struct {
	mu       sync.RWMutex
	title    string
	fields   map[string]any
	revision int64
}

// New creates an empty document at revision zero.
func New() *Document {
	return &Document{
		fields: make(map[string]any),
	}
}

// Title returns the document title.
func (d *Document) Title() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.title
}

// SetTitle replaces the document title.
func (d *Document) SetTitle(title string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.title == title {
		return
	}
	d.title = title
	d.revision++
}

// Set stores a value under key, replacing any previous value.
func (d *Document) Set(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fields[key] = value
	d.revision++
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.fields[key]
	return v, ok
}

// Delete removes key from the document. Removing an absent key is a no-op.
func (d *Document) Delete(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.fields[key]; !ok {
		return
	}
	delete(d.fields, key)
	d.revision++
}

// Keys returns the document's keys in sorted order.
func (d *Document) Keys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	keys := make([]string, 0, len(d.fields))
	for k := range d.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys in the document.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.fields)
}

// Revision returns the mutation counter. It increases monotonically and never
// resets for the lifetime of the document.
func (d *Document) Revision() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.revision
}

// Decode maps the value stored under key onto out, which must be a pointer.
// Map values decode onto struct fields via their mapstructure tags.
func (d *Document) Decode(key string, out any) error {
	v, ok := d.Get(key)
	if !ok {
		return fmt.Errorf("document: no value for key %q", key)
	}
	if err := mapstructure.Decode(v, out); err != nil {
		return fmt.Errorf("document: decode %q: %w", key, err)
	}
	return nil
}

// Snapshot returns a deep copy of the document contents. Mutating the result
// does not affect the document.
func (d *Document) Snapshot() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return domain.CloneMap(d.fields)
}

// Restore replaces the document contents with a deep copy of state in a
// single step. The title is untouched; the revision advances once.
func (d *Document) Restore(state map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fields = domain.CloneMap(state)
	if d.fields == nil {
		d.fields = make(map[string]any)
	}
	d.revision++
}
