package authz

import (
	"fmt"
	"strings"
)

// FindGroup returns the group named name from groups.
func FindGroup(groups []Group, name string) (*Group, error) {
	for i := range groups {
		if groups[i].Name == name {
			g := groups[i]
			return &g, nil
		}
	}
	return nil, &Error{Kind: KindNotFound, Op: "get group", Err: errUnknownGroup(name)}
}

// GroupsFromNames builds the group inventory for a list of group names.
// Blank names are skipped.
func GroupsFromNames(names []string) []Group {
	groups := make([]Group, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		groups = append(groups, Group{ID: n, Name: n})
	}
	return groups
}

func errUnknownGroup(name string) error {
	return fmt.Errorf("group %q is not known to the backend", name)
}
