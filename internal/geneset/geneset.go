// Package geneset loads named gene-set collections (GMT files) such as the
// GO and KEGG categories distributed by MSigDB.
package geneset

import (
	"errors"
	"sort"
)

// ErrEmptyCollection is returned when a collection is absent or holds no sets.
var ErrEmptyCollection = errors.New("gene-set collection is empty")

// Set is one pathway or ontology term. Genes are unique, in file order.
type Set struct {
	Name        string
	Description string
	Genes       []string
}

// NewSet creates a set, dropping empty and repeated members.
func NewSet(name, description string, genes []string) *Set {
	seen := make(map[string]bool, len(genes))
	members := make([]string, 0, len(genes))
	for _, g := range genes {
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		members = append(members, g)
	}
	return &Set{Name: name, Description: description, Genes: members}
}

// Size returns the number of members.
func (s *Set) Size() int { return len(s.Genes) }

// Overlap returns the members contained in the universe, in set order.
func (s *Set) Overlap(contains func(string) bool) []string {
	var out []string
	for _, g := range s.Genes {
		if contains(g) {
			out = append(out, g)
		}
	}
	return out
}

// Collection maps set names to sets for one category (e.g. GO_BP).
type Collection struct {
	Name string
	sets map[string]*Set
}

// NewCollection creates an empty collection.
func NewCollection(name string) *Collection {
	return &Collection{Name: name, sets: make(map[string]*Set)}
}

// Add inserts s. A later set with the same name replaces the earlier one.
func (c *Collection) Add(s *Set) {
	c.sets[s.Name] = s
}

// Get returns the named set.
func (c *Collection) Get(name string) (*Set, bool) {
	s, ok := c.sets[name]
	return s, ok
}

// Len returns the number of sets.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.sets)
}

// Sets returns all sets sorted by name.
func (c *Collection) Sets() []*Set {
	out := make([]*Set, 0, len(c.sets))
	for _, s := range c.sets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate returns ErrEmptyCollection for nil or empty collections.
func (c *Collection) Validate() error {
	if c.Len() == 0 {
		return ErrEmptyCollection
	}
	return nil
}
