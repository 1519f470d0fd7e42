package query

import (
	"slices"
	"strings"
)

// Key identifies a cached server collection: a resource name (the
// namespace) plus ordered filter discriminators, e.g. {"budgets", ["active"]}.
type Key struct {
	Resource string
	Params   []string
}

func NewKey(resource string, params ...string) Key {
	return Key{Resource: resource, Params: params}
}

// In reports whether the key belongs to any of the namespaces.
func (k Key) In(namespaces ...string) bool {
	return slices.Contains(namespaces, k.Resource)
}

func (k Key) Equal(o Key) bool {
	return k.Resource == o.Resource && slices.Equal(k.Params, o.Params)
}

// Param returns the i-th discriminator or "".
func (k Key) Param(i int) string {
	if i < 0 || i >= len(k.Params) {
		return ""
	}
	return k.Params[i]
}

// String renders the key for logs, e.g. "budgets/active".
func (k Key) String() string {
	if len(k.Params) == 0 {
		return k.Resource
	}
	return k.Resource + "/" + strings.Join(k.Params, "/")
}

// id is the map index; NUL cannot appear in resource names or params.
func (k Key) id() string {
	if len(k.Params) == 0 {
		return k.Resource
	}
	return k.Resource + "\x00" + strings.Join(k.Params, "\x00")
}
