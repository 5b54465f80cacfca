package domain

import "strings"

// NewID builds a record id of the form <baseURL>/<name>#<name>. The part before
// the fragment is the url of the store holding the record.
func NewID(baseURL, name string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	name = strings.TrimSpace(name)
	return baseURL + "/" + name + "#" + name
}

// URLOf returns the store url addressed by id.
func URLOf(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.Index(id, "#"); i >= 0 {
		return id[:i]
	}
	return id
}

// LocalName returns the fragment of id, or its last path segment when there is
// no fragment.
func LocalName(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.LastIndex(id, "#"); i >= 0 {
		return id[i+1:]
	}
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// ChildID returns an id in the namespace of parent, e.g. a step of a plan.
func ChildID(parent, name string) string {
	return URLOf(parent) + "#" + strings.TrimSpace(name)
}
