package store

import (
	"context"

	"github.com/nextlevelbuilder/autoreply/internal/rules"
)

// RuleStore manages the three rule flavors. Numbers within a flavor stay dense
// (1..N): Create inserts at the requested position (or appends when Number is 0)
// and shifts later rules down, Delete closes the gap.
type RuleStore interface {
	List(ctx context.Context, flavor rules.Flavor) ([]rules.Record, error)
	Get(ctx context.Context, flavor rules.Flavor, number int) (*rules.Record, error)
	Create(ctx context.Context, rec *rules.Record) error
	Update(ctx context.Context, rec *rules.Record) error
	Delete(ctx context.Context, flavor rules.Flavor, number int) error
}

// Variable is a static template variable.
type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// VariableStore manages the static variable table.
type VariableStore interface {
	ListVariables(ctx context.Context) ([]Variable, error)
	SetVariable(ctx context.Context, v Variable) error
	DeleteVariable(ctx context.Context, name string) error
}
