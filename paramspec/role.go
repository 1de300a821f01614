// Package paramspec is the Signature Parser (C2): it walks an endpoint's
// declared "in" struct field by field, assigns each a role per the §4.2
// decision table, and synthesizes the decoder/validator/required/multi-
// value facts the Endpoint Runtime needs to bind a request.
package paramspec

import (
	"reflect"

	"github.com/kitehttp/kite/typeinfo"
)

// Role is the source slot a parameter is extracted from (§3).
type Role int

const (
	RolePath Role = iota
	RoleQuery
	RoleHeader
	RoleCookie
	RoleBody
	RoleForm
	RoleFile
	RoleDependency
	RolePlugin
	RolePrimitive
	RoleTransitive
)

func (r Role) String() string {
	switch r {
	case RolePath:
		return "path"
	case RoleQuery:
		return "query"
	case RoleHeader:
		return "header"
	case RoleCookie:
		return "cookie"
	case RoleBody:
		return "body"
	case RoleForm:
		return "form"
	case RoleFile:
		return "file"
	case RoleDependency:
		return "dependency"
	case RolePlugin:
		return "plugin"
	case RolePrimitive:
		return "primitive"
	default:
		return "transitive"
	}
}

// DependencyChecker reports whether t is registered as a node in the
// dependency graph, directly or via an alias resolvable to one (§4.2
// rule 3). paramspec depends on this instead of importing depgraph
// directly so the two packages can evolve independently.
type DependencyChecker func(t reflect.Type) bool

// PrimitiveTypes is the set of framework-primitive types recognized by
// rule 4 (request, response writer, context, scope handle, websocket).
// Registered by the kite package at init time to avoid a import
// cycle (paramspec must not depend on kite).
var PrimitiveTypes = map[reflect.Type]bool{}

func isPrimitive(t reflect.Type) bool {
	return PrimitiveTypes[t]
}

// classify implements the §4.2 decision table for one struct field.
func classify(f reflect.StructField, routePath string, isDependency DependencyChecker) (Role, string) {
	if v, ok := f.Tag.Lookup("role"); ok {
		return roleFromString(v), sourceKeyTag(f)
	}
	if key, ok := f.Tag.Lookup("path"); ok {
		return RolePath, orName(key, f.Name)
	}
	if key, ok := f.Tag.Lookup("query"); ok {
		return RoleQuery, orName(key, f.Name)
	}
	if key, ok := f.Tag.Lookup("header"); ok {
		return RoleHeader, orName(key, f.Name)
	}
	if key, ok := f.Tag.Lookup("cookie"); ok {
		return RoleCookie, orName(key, f.Name)
	}
	if _, ok := f.Tag.Lookup("body"); ok {
		return RoleBody, f.Name
	}
	if _, ok := f.Tag.Lookup("form"); ok {
		return RoleForm, f.Name
	}
	if _, ok := f.Tag.Lookup("file"); ok {
		return RoleFile, f.Name
	}
	if name, ok := f.Tag.Lookup("plugin"); ok {
		return RolePlugin, name
	}
	if matchesPlaceholder(f.Name, routePath) {
		return RolePath, f.Name
	}
	if isDependency != nil && isDependency(f.Type) {
		return RoleDependency, f.Name
	}
	if isPrimitive(f.Type) {
		return RolePrimitive, f.Name
	}
	d, _ := typeinfo.Introspect(f.Type)
	if d.IsStructured {
		return RoleBody, f.Name
	}
	return RoleQuery, f.Name
}

func roleFromString(s string) Role {
	switch s {
	case "path":
		return RolePath
	case "query":
		return RoleQuery
	case "header":
		return RoleHeader
	case "cookie":
		return RoleCookie
	case "body":
		return RoleBody
	case "form":
		return RoleForm
	case "file":
		return RoleFile
	case "dependency":
		return RoleDependency
	case "plugin":
		return RolePlugin
	case "primitive":
		return RolePrimitive
	default:
		return RoleTransitive
	}
}

func sourceKeyTag(f reflect.StructField) string {
	for _, key := range []string{"path", "query", "header", "cookie"} {
		if v, ok := f.Tag.Lookup(key); ok && v != "" {
			return v
		}
	}
	return f.Name
}

func orName(tagValue, fieldName string) string {
	if tagValue == "" {
		return fieldName
	}
	return tagValue
}

// matchesPlaceholder reports whether fieldName (case-insensitively)
// names a "{name}" placeholder in routePath, implementing §4.2 rule 2.
func matchesPlaceholder(fieldName, routePath string) bool {
	for _, seg := range splitSegments(routePath) {
		if len(seg) >= 2 && seg[0] == '{' && seg[len(seg)-1] == '}' {
			name := seg[1 : len(seg)-1]
			if equalFold(name, fieldName) {
				return true
			}
		}
	}
	return false
}

func splitSegments(p string) []string {
	var segs []string
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				segs = append(segs, p[start:i])
			}
			start = i + 1
		}
	}
	return segs
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
