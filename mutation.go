package godgraph

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/dgo/v230/protos/api"
)

// MutationBuilder assembles an api.Mutation from Go values, handling
// the JSON encoding. The zero value is ready to use:
//
//	mu, err := new(godgraph.MutationBuilder).
//		SetJSON(person).
//		CommitNow().
//		Build()
type MutationBuilder struct {
	mu  api.Mutation
	err error
}

// SetJSON marshals v and adds it as the set payload.
func (b *MutationBuilder) SetJSON(v any) *MutationBuilder {
	b.mu.SetJson = b.marshal(v)
	return b
}

// DeleteJSON marshals v and adds it as the delete payload.
func (b *MutationBuilder) DeleteJSON(v any) *MutationBuilder {
	b.mu.DeleteJson = b.marshal(v)
	return b
}

// SetNquads adds raw N-Quads to set.
func (b *MutationBuilder) SetNquads(nquads string) *MutationBuilder {
	b.mu.SetNquads = []byte(nquads)
	return b
}

// DelNquads adds raw N-Quads to delete.
func (b *MutationBuilder) DelNquads(nquads string) *MutationBuilder {
	b.mu.DelNquads = []byte(nquads)
	return b
}

// Cond guards the mutation with an upsert condition, e.g.
// "@if(eq(len(v), 0))".
func (b *MutationBuilder) Cond(cond string) *MutationBuilder {
	b.mu.Cond = cond
	return b
}

// CommitNow marks the mutation for single-round-trip commit.
func (b *MutationBuilder) CommitNow() *MutationBuilder {
	b.mu.CommitNow = true
	return b
}

// Build returns the assembled mutation, or the first encoding error.
func (b *MutationBuilder) Build() (*api.Mutation, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &b.mu, nil
}

func (b *MutationBuilder) marshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("%w: encoding mutation payload: %v", ErrInvalidArgument, err)
	}
	return data
}
