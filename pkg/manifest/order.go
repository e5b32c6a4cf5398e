package manifest

import (
	"slices"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// The library is Russian-first; numeric runs compare as numbers and case or
// accents never split two names apart.
var (
	collatorMu sync.Mutex
	collator   = collate.New(language.Russian, collate.Numeric, collate.Loose)
)

// CompareNames orders two display names with the library collation.
func CompareNames(a, b string) int {
	collatorMu.Lock()
	defer collatorMu.Unlock()
	return collator.CompareString(a, b)
}

// Compare orders siblings: folders first, then by name.
func Compare(a, b *Node) int {
	if a.Type != b.Type {
		if a.Type == TypeFolder {
			return -1
		}
		if b.Type == TypeFolder {
			return 1
		}
	}
	return CompareNames(a.Name, b.Name)
}

// SortSiblings sorts one level in place. The sort is stable so re-sorting an
// ordered slice never moves equal names.
func SortSiblings(nodes []*Node) {
	slices.SortStableFunc(nodes, Compare)
}

// Normalize returns a deep copy of nodes with every level re-sorted.
// Fields other than order are preserved.
func Normalize(nodes []*Node) []*Node {
	if nodes == nil {
		return nil
	}
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		cp := *n
		if n.Children != nil {
			cp.Children = Normalize(n.Children)
		}
		out = append(out, &cp)
	}
	SortSiblings(out)
	return out
}
