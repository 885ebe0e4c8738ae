package rules

import (
	"fmt"
	"sync"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// Info describes a registered rule for status APIs.
type Info struct {
	ID          string   `json:"id"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
	Priority    int      `json:"priority"`
}

// Registry holds rules in priority order: the first registered rule is
// evaluated first. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	order []Rule
	byID  map[string]Rule
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Rule)}
}

// DefaultRegistry returns the built-in rule set in priority order. Risk
// vetoes come before the lay rules so a skip always wins over a match.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(GradeSkip{})
	r.Register(LiquidityGate{})
	r.Register(OddsBand{})
	r.Register(FavouriteGap{})
	return r
}

// Register appends a rule at the lowest priority. Registering an ID twice
// replaces the rule in place.
func (r *Registry) Register(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[rule.ID()]; ok {
		for i, existing := range r.order {
			if existing.ID() == rule.ID() {
				r.order[i] = rule
			}
		}
	} else {
		r.order = append(r.order, rule)
	}
	r.byID[rule.ID()] = rule
}

// Get returns the rule registered under id.
func (r *Registry) Get(id string) (Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("rule %q: not registered", id)
	}
	return rule, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// List returns info for every rule in priority order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.order))
	for i, rule := range r.order {
		out = append(out, Info{
			ID:          rule.ID(),
			Category:    rule.Category(),
			Description: rule.Description(),
			Priority:    i + 1,
		})
	}
	return out
}

// Result is the outcome of evaluating a rule set together with the rule
// that produced it.
type Result struct {
	RuleID  string
	Outcome Outcome
}

// Evaluate runs the active rules in priority order and returns the first
// outcome that is not a NoMatch. Inactive rules are ignored. When every active
// rule returns NoMatch the result has an empty RuleID.
func (r *Registry) Evaluate(active map[string]bool, runners []domain.Runner, settings domain.Settings, market domain.Market) Result {
	r.mu.RLock()
	order := make([]Rule, len(r.order))
	copy(order, r.order)
	r.mu.RUnlock()

	for _, rule := range order {
		if !active[rule.ID()] {
			continue
		}
		out := rule.Evaluate(runners, settings, market)
		if out.Kind != KindNoMatch {
			return Result{RuleID: rule.ID(), Outcome: out}
		}
	}
	return Result{Outcome: NoMatch()}
}
