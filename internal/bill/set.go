package bill

import (
	"cmp"
	"encoding/json"
	"slices"
)

// AppendUnique appends the values not already present, keeping first-seen
// order.
func AppendUnique[T comparable](set []T, values ...T) []T {
	for _, v := range values {
		if !slices.Contains(set, v) {
			set = append(set, v)
		}
	}
	return set
}

// UniqueReferences drops references equal in every field.
func UniqueReferences(refs []Reference) []Reference {
	seen := make(map[Reference]struct{}, len(refs))
	out := make([]Reference, 0, len(refs))
	for _, r := range refs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// UniqueMetadata drops records equal in every field and returns the rest
// sorted by bill id, then by content.
func UniqueMetadata(ms []Metadata) []Metadata {
	type keyed struct {
		key string
		m   Metadata
	}
	seen := make(map[string]struct{}, len(ms))
	items := make([]keyed, 0, len(ms))
	for _, m := range ms {
		k := contentKey(m)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		items = append(items, keyed{key: k, m: m})
	}
	slices.SortFunc(items, func(a, b keyed) int {
		if c := cmp.Compare(a.m.ID(), b.m.ID()); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})
	out := make([]Metadata, len(items))
	for i, it := range items {
		out[i] = it.m
	}
	return out
}

func contentKey(m Metadata) string {
	data, err := json.Marshal(m)
	if err != nil {
		return m.ID()
	}
	return string(data)
}
