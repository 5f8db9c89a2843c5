package domain

import "time"

// Policy is an operator-supplied Rego module evaluated before token issuance.
// Rules must declare package blueprint.issuance and may define allow.
type Policy struct {
	ID        string
	Name      string
	Rules     string
	Enabled   bool
	CreatedAt time.Time
}
