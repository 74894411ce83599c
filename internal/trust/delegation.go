package trust

import "time"

// DefaultMaxDepth bounds how far a delegation may propagate when walking the
// graph.
const DefaultMaxDepth = 3

// Delegation is a directed, weighted trust edge between two addresses.
// Amount is the fraction of the delegator's trust lent to the delegate,
// in (0,1].
type Delegation struct {
	ID        string    `json:"id"`
	Delegator string    `json:"delegator"`
	Delegate  string    `json:"delegate"`
	Amount    float64   `json:"amount"`
	MaxDepth  int       `json:"max_depth"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
