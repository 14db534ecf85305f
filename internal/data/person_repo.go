package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
)

// ErrPersonNotFound indicates the person does not exist.
var ErrPersonNotFound = errors.New("person not found")

// PersonRepo reads people extracted by the upstream discovery collaborator.
type PersonRepo struct {
	DB *sql.DB
}

// NewPersonRepo creates a PersonRepo with the given database handle.
func NewPersonRepo(db *sql.DB) *PersonRepo {
	return &PersonRepo{DB: db}
}

// GetByID retrieves a person by id.
func (r *PersonRepo) GetByID(ctx context.Context, id int64) (*model.Person, error) {
	person := &model.Person{}
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, domain
		FROM people
		WHERE id = $1
	`, id).Scan(&person.ID, &person.FirstName, &person.LastName, &person.Domain)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPersonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	return person, nil
}

// ListByDomain returns every person extracted for a domain.
func (r *PersonRepo) ListByDomain(ctx context.Context, domain string) ([]*model.Person, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, first_name, last_name, domain
		FROM people
		WHERE domain = $1
		ORDER BY id
	`, domain)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()

	var out []*model.Person
	for rows.Next() {
		person := &model.Person{}
		if err := rows.Scan(&person.ID, &person.FirstName, &person.LastName, &person.Domain); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, person)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	return out, nil
}
