// Package reflist holds reference identifier lists: the set of canonical
// IDs known to be valid for one molecule kind in one organism, such as the
// UniProt proteome of human. The consistency pass checks every node in the
// network against these lists and removes nodes whose IDs are unknown.
package reflist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ErrMissingList is returned when a validation step needs a reference list
// that was never registered. The caller must treat this as fatal for the
// step rather than skipping the unvalidatable nodes.
var ErrMissingList = errors.New("no reference list registered")

// List is the set of valid identifiers for one (kind, idType, taxon)
// combination. Membership checks are case-sensitive.
type List struct {
	Kind   string
	IDType string
	Taxon  int

	members map[string]struct{}
}

// NewList builds a List from a slice of identifiers. Duplicates and empty
// strings are dropped.
func NewList(kind, idType string, taxon int, ids []string) *List {
	members := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		members[id] = struct{}{}
	}
	return &List{Kind: kind, IDType: idType, Taxon: taxon, members: members}
}

// LoadFile reads a reference list from a file with one identifier per
// line. Blank lines and lines starting with '#' are skipped.
func LoadFile(kind, idType string, taxon int, path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening reference list %s: %w", path, err)
	}
	defer f.Close()

	list, err := Read(kind, idType, taxon, f)
	if err != nil {
		return nil, fmt.Errorf("reading reference list %s: %w", path, err)
	}
	return list, nil
}

// Read builds a List from a reader with one identifier per line.
func Read(kind, idType string, taxon int, r io.Reader) (*List, error) {
	members := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		members[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &List{Kind: kind, IDType: idType, Taxon: taxon, members: members}, nil
}

// Contains reports whether the identifier is a member of the list.
func (l *List) Contains(id string) bool {
	_, ok := l.members[id]
	return ok
}

// Len returns the number of identifiers in the list.
func (l *List) Len() int {
	return len(l.members)
}

// listKey identifies one list slot in a Registry. Two lists for the same
// kind and taxon in different identifier namespaces are distinct slots.
type listKey struct {
	kind   string
	idType string
	taxon  int
}

// Registry indexes reference lists by molecule kind, identifier namespace
// and taxon. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	lists map[listKey]*List
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{lists: make(map[listKey]*List)}
}

func keyFor(kind, idType string, taxon int) listKey {
	return listKey{
		kind:   strings.ToLower(kind),
		idType: strings.ToLower(idType),
		taxon:  taxon,
	}
}

// Add registers a list under its kind, identifier namespace and taxon,
// replacing any previous list for the same slot. Kinds and namespaces are
// matched case-insensitively.
func (r *Registry) Add(list *List) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists[keyFor(list.Kind, list.IDType, list.Taxon)] = list
}

// Get returns the list for a kind, identifier namespace and taxon, or
// ErrMissingList.
func (r *Registry) Get(kind, idType string, taxon int) (*List, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list, ok := r.lists[keyFor(kind, idType, taxon)]
	if !ok {
		return nil, fmt.Errorf("%w: kind %q idType %q taxon %d", ErrMissingList, kind, idType, taxon)
	}
	return list, nil
}

// HasKind reports whether at least one list is registered for a kind,
// in any identifier namespace or taxon. Kinds without any list are not
// under validation at all.
func (r *Registry) HasKind(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k := strings.ToLower(kind)
	for key := range r.lists {
		if key.kind == k {
			return true
		}
	}
	return false
}

// Len returns the number of registered lists.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lists)
}
