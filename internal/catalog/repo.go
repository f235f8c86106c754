package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"servicehub/pkg/database"
	"servicehub/pkg/models"
)

// Repo stores one JSON document per language in catalog_documents.
type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// documentBody is the persisted JSON; language lives in its own column.
// Undeclared document keys are stored next to categories.
type documentBody struct {
	Categories []models.Category `json:"categories"`
}

var bodyKeys = map[string]bool{"categories": true}

func (r *Repo) GetByLanguage(ctx context.Context, language string) (*models.CatalogDocument, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT language, body, updated_at
		FROM catalog_documents
		WHERE language = ?
	`, language)

	doc, err := scanDocument(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, database.Unavailable("get catalog "+language, err)
	}
	return doc, nil
}

func (r *Repo) Languages(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT language FROM catalog_documents ORDER BY language`)
	if err != nil {
		return nil, database.Unavailable("list catalog languages", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var lang string
		if err := rows.Scan(&lang); err != nil {
			return nil, database.Unavailable("scan catalog language", err)
		}
		out = append(out, lang)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Unavailable("list catalog languages", err)
	}
	return out, nil
}

// FindDocumentsContainingIdentifier narrows the reconciler's search to
// documents holding at least one entry with the given legacy id or
// canonical ref. Both empty means nothing can match.
func (r *Repo) FindDocumentsContainingIdentifier(ctx context.Context, legacyID *int, canonicalRef string) ([]models.CatalogDocument, error) {
	if legacyID == nil && canonicalRef == "" {
		return nil, nil
	}

	var legacy any
	if legacyID != nil {
		legacy = *legacyID
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT d.language, d.body, d.updated_at
		FROM catalog_documents d
		WHERE EXISTS (
			SELECT 1
			FROM json_each(d.body, '$.categories') c,
			     json_each(c.value, '$.entries') e
			WHERE (?1 IS NOT NULL AND json_extract(e.value, '$.legacy_id') = ?1)
			   OR (?2 <> '' AND json_extract(e.value, '$.canonical_ref') = ?2)
		)
		ORDER BY d.language
	`, legacy, canonicalRef)
	if err != nil {
		return nil, database.Unavailable("find catalogs by identifier", err)
	}
	defer rows.Close()

	var out []models.CatalogDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, database.Unavailable("scan catalog", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Unavailable("find catalogs by identifier", err)
	}
	return out, nil
}

// ReplaceDocument writes the whole document in one statement, so readers
// see either the old tree or the new one.
func (r *Repo) ReplaceDocument(ctx context.Context, doc models.CatalogDocument) error {
	if doc.Language == "" {
		return fmt.Errorf("replace catalog: language required")
	}
	body, err := json.Marshal(documentBody{Categories: doc.Categories})
	if err == nil {
		body, err = models.MergeExtra(body, doc.Extra)
	}
	if err != nil {
		return fmt.Errorf("marshal catalog %s: %w", doc.Language, err)
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO catalog_documents (language, body, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(language) DO UPDATE SET
		  body = excluded.body,
		  updated_at = excluded.updated_at
	`, doc.Language, string(body), time.Now().UTC())
	if err != nil {
		return database.Unavailable("replace catalog "+doc.Language, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*models.CatalogDocument, error) {
	var (
		doc     models.CatalogDocument
		body    string
		updated sql.NullTime
	)
	if err := s.Scan(&doc.Language, &body, &updated); err != nil {
		return nil, err
	}

	var b documentBody
	if err := json.Unmarshal([]byte(body), &b); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", doc.Language, err)
	}
	extra, err := models.SplitExtra([]byte(body), bodyKeys)
	if err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", doc.Language, err)
	}
	doc.Categories = b.Categories
	doc.Extra = extra
	if updated.Valid {
		doc.UpdatedAt = updated.Time
	}
	return &doc, nil
}

// ErrNotFound is returned by operations that need an existing document.
var ErrNotFound = errors.New("catalog not found")
