package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"servicehub/pkg/database"
	"servicehub/pkg/models"
)

// ErrConflict means the ref or the (language, legacy id) pair is taken.
var ErrConflict = errors.New("service already exists")

// Repo is the canonical service store.
type Repo struct {
	DB *sql.DB
}

type ListQuery struct {
	Language string
	Limit    int
	Offset   int
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

const selectColumns = `
	SELECT canonical_ref, legacy_id, language, display_name, icon_url, pricing_plan, active, created_at, updated_at
	FROM services
`

// FindAll returns every canonical service ordered by language, legacy id.
func (r *Repo) FindAll(ctx context.Context) ([]models.CanonicalService, error) {
	rows, err := r.DB.QueryContext(ctx, selectColumns+` ORDER BY language, legacy_id`)
	if err != nil {
		return nil, database.Unavailable("find all services", err)
	}
	return collect(rows, "find all services")
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.CanonicalService, error) {
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		rows *sql.Rows
		err  error
	)
	if lang := strings.TrimSpace(q.Language); lang != "" {
		rows, err = r.DB.QueryContext(ctx, selectColumns+`
			WHERE language = ?
			ORDER BY legacy_id
			LIMIT ? OFFSET ?
		`, lang, limit, offset)
	} else {
		rows, err = r.DB.QueryContext(ctx, selectColumns+`
			ORDER BY language, legacy_id
			LIMIT ? OFFSET ?
		`, limit, offset)
	}
	if err != nil {
		return nil, database.Unavailable("list services", err)
	}
	return collect(rows, "list services")
}

func (r *Repo) FindByCanonicalRef(ctx context.Context, ref string) (*models.CanonicalService, error) {
	row := r.DB.QueryRowContext(ctx, selectColumns+` WHERE canonical_ref = ?`, ref)
	s, err := scanService(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, database.Unavailable("find service by ref", err)
	}
	return s, nil
}

// FindByLegacyID looks up a legacy id inside one language; legacy ids are
// not unique across languages.
func (r *Repo) FindByLegacyID(ctx context.Context, language string, legacyID int) (*models.CanonicalService, error) {
	row := r.DB.QueryRowContext(ctx, selectColumns+` WHERE language = ? AND legacy_id = ?`, language, legacyID)
	s, err := scanService(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, database.Unavailable("find service by legacy id", err)
	}
	return s, nil
}

// Create inserts s and assigns a fresh canonical ref when it has none. A
// zero legacy id gets the next free one in the service's language.
func (r *Repo) Create(ctx context.Context, s models.CanonicalService) (*models.CanonicalService, error) {
	if s.CanonicalRef == "" {
		s.CanonicalRef = uuid.NewString()
	}
	if s.LegacyID == 0 {
		err := r.DB.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(legacy_id), 0) + 1 FROM services WHERE language = ?`, s.Language,
		).Scan(&s.LegacyID)
		if err != nil {
			return nil, database.Unavailable("next legacy id", err)
		}
	}
	plan, err := json.Marshal(s.PricingPlan)
	if err != nil {
		return nil, fmt.Errorf("marshal pricing plan: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO services (canonical_ref, legacy_id, language, display_name, icon_url, pricing_plan, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.CanonicalRef, s.LegacyID, s.Language, s.DisplayName, s.IconURL, string(plan), s.Active, now, now)
	if err != nil {
		if isConstraint(err) {
			return nil, ErrConflict
		}
		return nil, database.Unavailable("create service", err)
	}

	s.CreatedAt, s.UpdatedAt = now, now
	return &s, nil
}

// Update rewrites the mutable fields of the service with s.CanonicalRef.
// It returns nil when no such service exists.
func (r *Repo) Update(ctx context.Context, s models.CanonicalService) (*models.CanonicalService, error) {
	plan, err := json.Marshal(s.PricingPlan)
	if err != nil {
		return nil, fmt.Errorf("marshal pricing plan: %w", err)
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE services
		SET legacy_id = ?, language = ?, display_name = ?, icon_url = ?, pricing_plan = ?, active = ?, updated_at = ?
		WHERE canonical_ref = ?
	`, s.LegacyID, s.Language, s.DisplayName, s.IconURL, string(plan), s.Active, time.Now().UTC(), s.CanonicalRef)
	if err != nil {
		if isConstraint(err) {
			return nil, ErrConflict
		}
		return nil, database.Unavailable("update service", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return r.FindByCanonicalRef(ctx, s.CanonicalRef)
}

func (r *Repo) SetActive(ctx context.Context, ref string, active bool) (*models.CanonicalService, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE services SET active = ?, updated_at = ? WHERE canonical_ref = ?
	`, active, time.Now().UTC(), ref)
	if err != nil {
		return nil, database.Unavailable("set service status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return r.FindByCanonicalRef(ctx, ref)
}

// Delete hard-removes the service. There is no tombstone.
func (r *Repo) Delete(ctx context.Context, ref string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM services WHERE canonical_ref = ?`, ref)
	if err != nil {
		return false, database.Unavailable("delete service", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

type scanner interface {
	Scan(dest ...any) error
}

func scanService(row scanner) (*models.CanonicalService, error) {
	var (
		s       models.CanonicalService
		iconURL sql.NullString
		plan    string
	)
	if err := row.Scan(
		&s.CanonicalRef, &s.LegacyID, &s.Language, &s.DisplayName, &iconURL, &plan, &s.Active, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.IconURL = iconURL.String
	if err := json.Unmarshal([]byte(plan), &s.PricingPlan); err != nil {
		return nil, fmt.Errorf("decode pricing plan for %s: %w", s.CanonicalRef, err)
	}
	return &s, nil
}

func collect(rows *sql.Rows, op string) ([]models.CanonicalService, error) {
	defer rows.Close()

	var out []models.CanonicalService
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, database.Unavailable(op, err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Unavailable(op, err)
	}
	return out, nil
}
