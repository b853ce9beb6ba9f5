package model

import "time"

// Customer types.
const (
	CustomerIndividual = "individual"
	CustomerCorporate  = "corporate"
)

// Customer is the read-only collaborator record; CRUD lives elsewhere in the
// workshop app, the dispatch engine only queries it.
type Customer struct {
	ID          int        `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Phone       string     `db:"phone" json:"phone"`
	Type        string     `db:"type" json:"type"`
	Tags        []string   `db:"tags" json:"tags"`
	LastVisitAt *time.Time `db:"last_visit_at" json:"last_visit_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
