// Package postgres implements the mock backend's store on pgx, for
// setups where the dev data should outlive the process.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inpass/internal/domain"
	"inpass/internal/mockserver"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the schema when it is missing.
func (s *Store) Init(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			login TEXT NOT NULL UNIQUE,
			full_name TEXT NOT NULL,
			group_id TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS absences (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			type TEXT NOT NULL,
			start_date TIMESTAMPTZ NOT NULL,
			end_date TIMESTAMPTZ,
			status TEXT NOT NULL,
			rejection_reason TEXT NOT NULL DEFAULT '',
			declaration BOOLEAN NOT NULL DEFAULT FALSE,
			doc_id TEXT,
			doc_name TEXT,
			doc_mime TEXT,
			created_at TIMESTAMPTZ NOT NULL
		);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Store) CreateUser(ctx context.Context, user mockserver.User) error {
	const query = `
		INSERT INTO users (id, login, full_name, group_id, password_hash, created_at)
		VALUES ($1, lower($2), $3, $4, $5, $6)
		ON CONFLICT (login) DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, query,
		user.ID,
		user.Login,
		user.FullName,
		user.GroupID,
		user.PasswordHash,
		user.CreatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return mockserver.ErrLoginTaken
	}
	return nil
}

func (s *Store) UserByLogin(ctx context.Context, login string) (mockserver.User, error) {
	const query = `
		SELECT id, login, full_name, group_id, password_hash, created_at
		FROM users
		WHERE login = lower($1)
	`
	return s.scanUser(s.pool.QueryRow(ctx, query, login))
}

func (s *Store) UserByID(ctx context.Context, id string) (mockserver.User, error) {
	const query = `
		SELECT id, login, full_name, group_id, password_hash, created_at
		FROM users
		WHERE id = $1
	`
	return s.scanUser(s.pool.QueryRow(ctx, query, id))
}

func (s *Store) scanUser(row pgx.Row) (mockserver.User, error) {
	var u mockserver.User
	err := row.Scan(&u.ID, &u.Login, &u.FullName, &u.GroupID, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return mockserver.User{}, mockserver.ErrNotFound
	}
	return u, err
}

func (s *Store) CreateAbsence(ctx context.Context, a mockserver.StoredAbsence) error {
	const query = `
		INSERT INTO absences (id, user_id, type, start_date, end_date, status,
			rejection_reason, declaration, doc_id, doc_name, doc_mime, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	docID, docName, docMime := docColumns(a.AbsenceRequest)
	_, err := s.pool.Exec(ctx, query,
		a.ID,
		a.UserID,
		string(a.Type),
		a.StartDate,
		a.EndDate,
		string(a.Status),
		a.RejectionReason,
		a.DeclarationToDean,
		docID,
		docName,
		docMime,
		a.CreatedAt,
	)
	return err
}

func (s *Store) UpdateAbsence(ctx context.Context, a mockserver.StoredAbsence) error {
	const query = `
		UPDATE absences
		SET type = $2, start_date = $3, end_date = $4, status = $5,
			rejection_reason = $6, declaration = $7, doc_id = $8, doc_name = $9, doc_mime = $10
		WHERE id = $1
	`
	docID, docName, docMime := docColumns(a.AbsenceRequest)
	tag, err := s.pool.Exec(ctx, query,
		a.ID,
		string(a.Type),
		a.StartDate,
		a.EndDate,
		string(a.Status),
		a.RejectionReason,
		a.DeclarationToDean,
		docID,
		docName,
		docMime,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return mockserver.ErrNotFound
	}
	return nil
}

func (s *Store) AbsenceByID(ctx context.Context, id string) (mockserver.StoredAbsence, error) {
	const query = `
		SELECT id, user_id, type, start_date, end_date, status,
			rejection_reason, declaration, doc_id, doc_name, doc_mime, created_at
		FROM absences
		WHERE id = $1
	`
	a, err := scanAbsence(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return mockserver.StoredAbsence{}, mockserver.ErrNotFound
	}
	return a, err
}

func (s *Store) ListAbsences(ctx context.Context, userID string, params domain.ListParams) ([]mockserver.StoredAbsence, error) {
	size := params.Size
	if size <= 0 {
		size = 10
	}
	page := params.Page
	if page <= 0 {
		page = 1
	}
	order := "DESC"
	if params.Sorting == domain.SortCreateAsc {
		order = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, type, start_date, end_date, status,
			rejection_reason, declaration, doc_id, doc_name, doc_mime, created_at
		FROM absences
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at %s
		LIMIT $3 OFFSET $4
	`, order)

	rows, err := s.pool.Query(ctx, query, userID, string(params.Status), size, (page-1)*size)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []mockserver.StoredAbsence{}
	for rows.Next() {
		a, err := scanAbsence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func docColumns(a domain.AbsenceRequest) (id, name, mime *string) {
	if len(a.Documents) == 0 {
		return nil, nil, nil
	}
	doc := a.Documents[0]
	return &doc.ID, &doc.Name, &doc.MimeType
}

func scanAbsence(row pgx.Row) (mockserver.StoredAbsence, error) {
	var (
		a       mockserver.StoredAbsence
		docID   *string
		docName *string
		docMime *string
	)
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Type,
		&a.StartDate,
		&a.EndDate,
		&a.Status,
		&a.RejectionReason,
		&a.DeclarationToDean,
		&docID,
		&docName,
		&docMime,
		&a.CreatedAt,
	)
	if err != nil {
		return mockserver.StoredAbsence{}, err
	}
	if docID != nil {
		doc := domain.Document{ID: *docID}
		if docName != nil {
			doc.Name = *docName
		}
		if docMime != nil {
			doc.MimeType = *docMime
		}
		a.Documents = []domain.Document{doc}
	}
	return a, nil
}
