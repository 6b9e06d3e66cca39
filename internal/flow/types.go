// Package flow is a thin client for a ShotGrid/Flow-style production
// tracking service. It speaks the service's api3/json RPC endpoint and
// holds no local state beyond the HTTP connection; every record it returns
// is a transient, partial projection that may be stale relative to
// concurrent remote edits.
package flow

import (
	"encoding/json"
	"fmt"
)

// Entity type names used by the bridge.
const (
	EntityProject  = "Project"
	EntitySequence = "Sequence"
	EntityShot     = "Shot"
	EntityTask     = "Task"
	EntityVersion  = "Version"
	EntityNote     = "Note"
	EntityUser     = "HumanUser"
)

// Filter is a single query condition. On the wire it is the triplet
// ["field", "relation", value].
type Filter struct {
	Field    string
	Relation string
	Value    any
}

// MarshalJSON encodes the filter in the service's triplet form.
func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.Field, f.Relation, f.Value})
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Relation: "is", Value: value}
}

// Contains builds a substring filter.
func Contains(field, value string) Filter {
	return Filter{Field: field, Relation: "contains", Value: value}
}

// Order is a sort specification for Find.
type Order struct {
	FieldName string `json:"field_name"`
	Direction string `json:"direction"` // "asc" or "desc"
}

// Ref is a link to another entity.
type Ref struct {
	Type string `json:"type"`
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// Record is a partial projection of a remote entity: the requested fields
// plus "id" and "type".
type Record map[string]any

// Int returns the named field as an int, or 0 when absent.
// JSON numbers decode as float64; both forms are accepted.
func (r Record) Int(field string) int {
	switch v := r[field].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// Str returns the named field as a string, or "" when absent or not a string.
func (r Record) Str(field string) string {
	if s, ok := r[field].(string); ok {
		return s
	}
	return ""
}

// Ref returns the named field as an entity link. The second return is false
// when the field is absent or not a link.
func (r Record) Ref(field string) (Ref, bool) {
	m, ok := r[field].(map[string]any)
	if !ok {
		return Ref{}, false
	}
	ref := Ref{Type: Record(m).Str("type"), ID: Record(m).Int("id"), Name: Record(m).Str("name")}
	if ref.ID == 0 {
		return Ref{}, false
	}
	return ref, true
}

// Fault is an error reported by the remote service.
type Fault struct {
	Message string
	Code    int
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Code != 0 {
		return fmt.Sprintf("flow: fault %d: %s", f.Code, f.Message)
	}
	return fmt.Sprintf("flow: fault: %s", f.Message)
}

// authFaultCode is the service's error code for rejected credentials.
const authFaultCode = 102

// IsAuthFault reports whether err is a credentials rejection.
func IsAuthFault(err error) bool {
	f, ok := err.(*Fault)
	if !ok {
		return false
	}
	if f.Code == authFaultCode {
		return true
	}
	msg := f.Message
	return containsFold(msg, "authentication") || containsFold(msg, "401")
}
