// Package settings holds the hardening feature toggles. A Settings value is an
// immutable snapshot handed to each component at construction.
package settings

import (
	"sort"
	"strings"
)

// Feature toggle names
const (
	LoginLockout           = "login_lockout"
	HideVersion            = "hide_version"
	DisableXMLRPC          = "disable_xmlrpc"
	FilterRESTEndpoints    = "filter_rest_endpoints"
	BlockAuthorEnumeration = "block_author_enumeration"
	SecureCookies          = "secure_cookies"
	GenericLoginErrors     = "generic_login_errors"
	SecurityHeaders        = "security_headers"
)

// Known lists every toggle the service understands
var Known = []string{
	LoginLockout,
	HideVersion,
	DisableXMLRPC,
	FilterRESTEndpoints,
	BlockAuthorEnumeration,
	SecureCookies,
	GenericLoginErrors,
	SecurityHeaders,
}

// Settings maps feature name to enabled. Absent names are disabled.
type Settings struct {
	values map[string]bool
}

// New copies values into a Settings snapshot
func New(values map[string]bool) Settings {
	copied := make(map[string]bool, len(values))
	for name, enabled := range values {
		copied[normalize(name)] = enabled
	}
	return Settings{values: copied}
}

// FromList enables every name in the list
func FromList(names []string) Settings {
	values := make(map[string]bool, len(names))
	for _, name := range names {
		if name = normalize(name); name != "" {
			values[name] = true
		}
	}
	return Settings{values: values}
}

// Get reports whether a feature is enabled
func (s Settings) Get(name string) bool {
	return s.values[normalize(name)]
}

// With returns a copy with one feature set
func (s Settings) With(name string, enabled bool) Settings {
	next := New(s.values)
	next.values[normalize(name)] = enabled
	return next
}

// Merge returns a copy where every entry in override replaces the current value
func (s Settings) Merge(override map[string]bool) Settings {
	next := New(s.values)
	for name, enabled := range override {
		next.values[normalize(name)] = enabled
	}
	return next
}

// Enabled returns the enabled feature names, sorted
func (s Settings) Enabled() []string {
	names := make([]string, 0, len(s.values))
	for name, enabled := range s.values {
		if enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
