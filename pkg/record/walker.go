package record

import (
	"iter"
	"slices"
	"strings"
)

// Path is the ordered list of mapping keys leading from the root to a leaf.
// Sequence indices are never part of a path.
type Path []string

// String renders the canonical dotted form, e.g. "address.city"
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Addressable reports whether the dotted form of p parses back to p. Keys
// that contain a dot are not.
func (p Path) Addressable() bool {
	if len(p) == 0 {
		return false
	}
	for _, seg := range p {
		if strings.Contains(seg, ".") {
			return false
		}
	}
	return true
}

// ParsePath splits a dotted field path into its segments
func ParsePath(dotted string) Path {
	return strings.Split(dotted, ".")
}

// CollectTextValues yields every text leaf of root in depth-first order,
// descending through both mappings and sequences. Each call to the returned
// sequence walks the tree again.
func CollectTextValues(root Node) iter.Seq[string] {
	return func(yield func(string) bool) {
		walkValues(root, yield)
	}
}

func walkValues(n Node, yield func(string) bool) bool {
	switch v := n.(type) {
	case Text:
		return yield(string(v))
	case Mapping:
		for _, key := range sortedKeys(v) {
			if !walkValues(v[key], yield) {
				return false
			}
		}
	case Sequence:
		for _, item := range v {
			if !walkValues(item, yield) {
				return false
			}
		}
	}
	return true
}

// CollectTextFields yields (path, text) for every text leaf reachable from
// root through mappings only. Leaves behind a sequence have no stable dotted
// address and are skipped.
func CollectTextFields(root Node) iter.Seq2[Path, string] {
	return func(yield func(Path, string) bool) {
		m, ok := root.(Mapping)
		if !ok {
			return
		}
		walkFields(m, nil, yield)
	}
}

func walkFields(m Mapping, prefix Path, yield func(Path, string) bool) bool {
	for _, key := range sortedKeys(m) {
		path := append(slices.Clip(prefix), key)
		switch v := m[key].(type) {
		case Text:
			if !yield(path, string(v)) {
				return false
			}
		case Mapping:
			if !walkFields(v, path, yield) {
				return false
			}
		}
	}
	return true
}

// ResolveParent walks every segment but the last through nested mappings and
// returns the mapping expected to hold the final segment. It reports false
// for an empty path, the single empty segment, a non-mapping root, or any
// intermediate segment that is missing or not a mapping.
func ResolveParent(root Node, segments []string) (Mapping, bool) {
	if len(segments) == 0 || (len(segments) == 1 && segments[0] == "") {
		return nil, false
	}
	parent, ok := root.(Mapping)
	if !ok {
		return nil, false
	}
	for _, seg := range segments[:len(segments)-1] {
		child, ok := parent[seg].(Mapping)
		if !ok {
			return nil, false
		}
		parent = child
	}
	return parent, true
}

// WriteLeaf replaces the value stored at dotted with a text leaf. The write
// happens only when the parent resolves and already holds the final key;
// otherwise the tree is left untouched and false is returned.
func WriteLeaf(root Node, dotted string, value string) bool {
	segments := ParsePath(dotted)
	parent, ok := ResolveParent(root, segments)
	if !ok {
		return false
	}
	last := segments[len(segments)-1]
	if _, exists := parent[last]; !exists {
		return false
	}
	parent[last] = Text(value)
	return true
}

func sortedKeys(m Mapping) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
