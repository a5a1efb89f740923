package policy

import (
	"slices"
	"sort"
)

// Declaration is one namespace binding found in a document. Prefix is empty
// for a default namespace declaration. Path and Line locate the declaring
// element.
type Declaration struct {
	Prefix string
	URI    string
	Path   string
	Line   int
}

// Namespaces is the set of helper namespaces of one document. It is computed
// once per lexing pass and shared by every query built during that pass.
type Namespaces struct {
	uris      map[string]struct{}
	Conflicts []*AmbiguousHelperNamespaceError
}

// IsHelper reports whether uri is a helper namespace. The empty uri never is.
func (n *Namespaces) IsHelper(uri string) bool {
	if n == nil || uri == "" {
		return false
	}
	_, ok := n.uris[uri]
	return ok
}

func (n *Namespaces) Len() int {
	if n == nil {
		return 0
	}
	return len(n.uris)
}

// URIs returns the helper namespaces in lexical order.
func (n *Namespaces) URIs() []string {
	out := make([]string, 0, n.Len())
	if n == nil {
		return out
	}
	for uri := range n.uris {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

// Classify computes the helper namespaces among the declarations of a
// document. Deny-listed namespaces are never helpers. When the policy has an
// allow-list, only listed namespaces qualify, and an allow-listed namespace
// that is also deny-listed is recorded as a conflict. Strict policies return
// the first conflict as an error instead.
func (p *Policy) Classify(decls []Declaration) (*Namespaces, error) {
	ns := &Namespaces{uris: make(map[string]struct{})}

	for _, d := range decls {
		if d.URI == "" {
			continue
		}

		claimed := len(p.HelperNamespaces) == 0 || slices.Contains(p.HelperNamespaces, d.URI)
		if !claimed {
			continue
		}

		if p.IsNonHelper(d.URI) {
			if len(p.HelperNamespaces) > 0 {
				conflict := &AmbiguousHelperNamespaceError{URI: d.URI, Prefix: d.Prefix, Path: d.Path, Line: d.Line}
				if p.Strict {
					return nil, conflict
				}
				ns.Conflicts = append(ns.Conflicts, conflict)
			}
			continue
		}

		ns.uris[d.URI] = struct{}{}
	}

	return ns, nil
}
