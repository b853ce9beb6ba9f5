package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/fixhub/workshop-backend/internal/model"
)

// CustomerRepositoryInterface is the read-only view of the customer store the
// dispatch engine is allowed to take. Record CRUD lives in the main app.
type CustomerRepositoryInterface interface {
	// FindByFilter returns customers matching the spec's type/tag/visit
	// criteria in id order. Manual numbers are not its concern.
	FindByFilter(f model.FilterSpec, now time.Time) ([]model.Customer, error)
}

type CustomerRepository struct {
	DB *sql.DB
}

func (r *CustomerRepository) FindByFilter(f model.FilterSpec, now time.Time) ([]model.Customer, error) {
	query := `SELECT id, name, phone, type, tags, last_visit_at, created_at FROM customers WHERE 1=1`
	args := []any{}
	argPos := 1

	if len(f.Types) > 0 {
		query += fmt.Sprintf(" AND type = ANY($%d)", argPos)
		args = append(args, pq.Array(f.Types))
		argPos++
	}
	if len(f.IncludeTags) > 0 {
		query += fmt.Sprintf(" AND tags && $%d", argPos)
		args = append(args, pq.Array(f.IncludeTags))
		argPos++
	}
	if len(f.ExcludeTags) > 0 {
		query += fmt.Sprintf(" AND NOT (tags && $%d)", argPos)
		args = append(args, pq.Array(f.ExcludeTags))
		argPos++
	}
	if f.LastVisitDays != nil {
		query += fmt.Sprintf(" AND last_visit_at >= $%d", argPos)
		args = append(args, now.AddDate(0, 0, -*f.LastVisitDays))
		argPos++
	}
	if f.InactiveDays != nil {
		query += fmt.Sprintf(" AND (last_visit_at IS NULL OR last_visit_at < $%d)", argPos)
		args = append(args, now.AddDate(0, 0, -*f.InactiveDays))
		argPos++
	}

	query += " ORDER BY id"

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := []model.Customer{}
	for rows.Next() {
		var c model.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Type, pq.Array(&c.Tags), &c.LastVisitAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

var _ CustomerRepositoryInterface = (*CustomerRepository)(nil)
