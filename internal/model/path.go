package model

import "strings"

// PathContext is the chain of folder display names from the traversal root
// to the current folder. It is immutable: Child returns a new value.
type PathContext struct {
	names []string
}

// NewPathContext starts a context at the root folder's display name.
func NewPathContext(root string) PathContext {
	return PathContext{names: []string{root}}
}

// Child returns the context one level deeper.
func (p PathContext) Child(name string) PathContext {
	names := make([]string, len(p.names), len(p.names)+1)
	copy(names, p.names)
	return PathContext{names: append(names, name)}
}

// Names returns a copy of the name chain.
func (p PathContext) Names() []string {
	return append([]string(nil), p.names...)
}

// Depth is the number of names in the chain.
func (p PathContext) Depth() int { return len(p.names) }

// String joins the chain with "/".
func (p PathContext) String() string {
	return strings.Join(p.names, "/")
}
