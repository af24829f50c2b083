// Package catalog holds the static list of mobile operators shown on the
// landing screen and derives the payment screen target for each of them.
package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// PaymentPath is the path of the payment screen.
const PaymentPath = "/payment"

// Query parameter names read by the payment screen.
const (
	ParamOperator = "operator"
	ParamColor    = "color"
)

var (
	// ErrEmptyID is returned when an operator has no identifier.
	ErrEmptyID = errors.New("catalog: empty operator id")
	// ErrDuplicateID is returned when two operators share an identifier.
	ErrDuplicateID = errors.New("catalog: duplicate operator id")
)

// Operator is an immutable operator record.
type Operator struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Color string `yaml:"color" json:"color"`
	Logo  string `yaml:"logo" json:"logo"`
}

// Target is a navigable location: a path plus query parameters.
type Target struct {
	Path  string
	Query url.Values
}

// String renders the target as path?query.
func (t Target) String() string {
	if len(t.Query) == 0 {
		return t.Path
	}
	return t.Path + "?" + t.Query.Encode()
}

// Catalog is an ordered, read-only operator list.
type Catalog struct {
	operators []Operator
	byID      map[string]int
}

// Defaults returns the operators offered when no override is configured.
func Defaults() []Operator {
	return []Operator{
		{ID: "mts", Name: "МТС", Color: "red", Logo: "/mts-logo.png"},
		{ID: "beeline", Name: "Билайн", Color: "yellow", Logo: "/beeline-logo.png"},
		{ID: "megafon", Name: "Мегафон", Color: "green", Logo: "/megafon-logo.png"},
	}
}

// New builds a catalog from the given records, preserving their order.
func New(ops []Operator) (*Catalog, error) {
	c := &Catalog{
		operators: make([]Operator, 0, len(ops)),
		byID:      make(map[string]int, len(ops)),
	}
	for _, op := range ops {
		op.ID = strings.TrimSpace(op.ID)
		if op.ID == "" {
			return nil, fmt.Errorf("%w (name %q)", ErrEmptyID, op.Name)
		}
		if _, exists := c.byID[op.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, op.ID)
		}
		c.byID[op.ID] = len(c.operators)
		c.operators = append(c.operators, op)
	}
	return c, nil
}

// MustDefault returns the built-in catalog.
func MustDefault() *Catalog {
	c, err := New(Defaults())
	if err != nil {
		panic(err)
	}
	return c
}

// List returns the operators in display order. The slice is a copy.
func (c *Catalog) List() []Operator {
	out := make([]Operator, len(c.operators))
	copy(out, c.operators)
	return out
}

// Len reports the number of operators.
func (c *Catalog) Len() int {
	return len(c.operators)
}

// Lookup finds an operator by id.
func (c *Catalog) Lookup(id string) (Operator, bool) {
	i, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Operator{}, false
	}
	return c.operators[i], true
}

// NavigationTarget builds the payment screen location for op.
func NavigationTarget(op Operator) Target {
	q := url.Values{}
	q.Set(ParamOperator, op.Name)
	q.Set(ParamColor, op.Color)
	return Target{Path: PaymentPath, Query: q}
}

// EntryParams reads the operator context from payment screen query parameters.
// Missing parameters yield empty strings.
func EntryParams(q url.Values) (name, color string) {
	return q.Get(ParamOperator), q.Get(ParamColor)
}
