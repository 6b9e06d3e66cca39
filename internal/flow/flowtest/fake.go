// Package flowtest provides an in-memory flow.Session for tests.
package flowtest

import (
	"context"
	"sync"

	"github.com/kmori/shotpipe/internal/flow"
)

// Call records one invocation against the fake.
type Call struct {
	Method  string // "find", "create", "update", "upload_thumbnail"
	Entity  string
	Filters []flow.Filter
	Fields  []string
	Data    map[string]any
	ID      int
}

// Fake is a canned-response flow.Session. Responses are keyed by entity
// type; zero values mean "no results". Safe for concurrent use.
type Fake struct {
	mu    sync.Mutex
	calls []Call

	// FindResults maps entity type to the records Find returns.
	FindResults map[string][]flow.Record

	// FindErr maps entity type to an error Find returns instead.
	FindErr map[string]error

	// CreateResult is returned by Create when CreateErr is nil.
	CreateResult flow.Record
	CreateErr    error

	UpdateErr error
	UploadErr error
}

var _ flow.Session = (*Fake)(nil)

func (f *Fake) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

// Calls returns a copy of all recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns the recorded calls matching method and entity.
func (f *Fake) CallsTo(method, entity string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Method == method && c.Entity == entity {
			out = append(out, c)
		}
	}
	return out
}

// Find implements flow.Session.
func (f *Fake) Find(ctx context.Context, entity string, filters []flow.Filter, fields []string, opts ...flow.FindOption) ([]flow.Record, error) {
	f.record(Call{Method: "find", Entity: entity, Filters: filters, Fields: fields})
	if err := f.FindErr[entity]; err != nil {
		return nil, err
	}
	return f.FindResults[entity], nil
}

// FindOne implements flow.Session.
func (f *Fake) FindOne(ctx context.Context, entity string, filters []flow.Filter, fields []string, opts ...flow.FindOption) (flow.Record, error) {
	records, err := f.Find(ctx, entity, filters, fields, opts...)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// Create implements flow.Session.
func (f *Fake) Create(ctx context.Context, entity string, data map[string]any) (flow.Record, error) {
	f.record(Call{Method: "create", Entity: entity, Data: data})
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	if f.CreateResult != nil {
		return f.CreateResult, nil
	}
	return flow.Record{"type": entity, "id": 1}, nil
}

// Update implements flow.Session.
func (f *Fake) Update(ctx context.Context, entity string, id int, data map[string]any) (flow.Record, error) {
	f.record(Call{Method: "update", Entity: entity, ID: id, Data: data})
	if f.UpdateErr != nil {
		return nil, f.UpdateErr
	}
	return flow.Record{"type": entity, "id": id}, nil
}

// UploadThumbnail implements flow.Session.
func (f *Fake) UploadThumbnail(ctx context.Context, entity string, id int, path string) error {
	f.record(Call{Method: "upload_thumbnail", Entity: entity, ID: id})
	return f.UploadErr
}
