package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/programisto-labs/edrm-mailer/internal/mailer/domain"
)

const templateColumns = "id, entity_id, name, subject, body, category, created_at, updated_at"

// TemplateRepository reads and manages mail templates in Postgres.
type TemplateRepository struct {
	pg *pgxpool.Pool
}

func NewTemplateRepository(pg *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{pg: pg}
}

var _ domain.TemplateRepository = (*TemplateRepository)(nil)

func scanTemplate(row pgx.Row) (domain.Template, error) {
	var (
		t        domain.Template
		id       pgtype.UUID
		entityID pgtype.UUID
	)
	err := row.Scan(&id, &entityID, &t.Name, &t.Subject, &t.Body, &t.Category, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.Template{}, err
	}
	t.ID = fromPgUUID(id)
	t.EntityID = fromPgUUIDPtr(entityID)
	return t, nil
}

// Resolve looks up a template by name with the three-tier fallback:
// entity-scoped match first, then a global template (no entity), then a bare
// lookup by name alone for deployments that never adopted entity scoping.
func (r *TemplateRepository) Resolve(ctx context.Context, name string, entityID *uuid.UUID) (domain.Template, error) {
	if entityID != nil {
		t, err := scanTemplate(r.pg.QueryRow(ctx,
			"SELECT "+templateColumns+" FROM mail_templates WHERE name = $1 AND entity_id = $2", name, toPgUUID(*entityID)))
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.Template{}, fmt.Errorf("resolve template %q: %w", name, err)
		}
	}

	t, err := scanTemplate(r.pg.QueryRow(ctx,
		"SELECT "+templateColumns+" FROM mail_templates WHERE name = $1 AND entity_id IS NULL", name))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Template{}, fmt.Errorf("resolve template %q: %w", name, err)
	}

	t, err = scanTemplate(r.pg.QueryRow(ctx,
		"SELECT "+templateColumns+" FROM mail_templates WHERE name = $1 ORDER BY created_at LIMIT 1", name))
	if err == nil {
		return t, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Template{}, domain.TemplateNotFoundError{Name: name}
	}
	return domain.Template{}, fmt.Errorf("resolve template %q: %w", name, err)
}

func (r *TemplateRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Template, error) {
	t, err := scanTemplate(r.pg.QueryRow(ctx,
		"SELECT "+templateColumns+" FROM mail_templates WHERE id = $1", toPgUUID(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Template{}, domain.TemplateNotFoundError{Name: id.String()}
	}
	return t, err
}

func (r *TemplateRepository) Create(ctx context.Context, t *domain.Template) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Category == "" {
		t.Category = "global"
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := r.pg.Exec(ctx, `
		INSERT INTO mail_templates (id, entity_id, name, subject, body, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		toPgUUID(t.ID), toPgUUIDPtr(t.EntityID), t.Name, t.Subject, t.Body, t.Category, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r *TemplateRepository) Update(ctx context.Context, t *domain.Template) error {
	t.UpdatedAt = time.Now().UTC()
	tag, err := r.pg.Exec(ctx, `
		UPDATE mail_templates
		SET entity_id = $2, name = $3, subject = $4, body = $5, category = $6, updated_at = $7
		WHERE id = $1`,
		toPgUUID(t.ID), toPgUUIDPtr(t.EntityID), t.Name, t.Subject, t.Body, t.Category, t.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.TemplateNotFoundError{Name: t.ID.String()}
	}
	return nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pg.Exec(ctx, "DELETE FROM mail_templates WHERE id = $1", toPgUUID(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.TemplateNotFoundError{Name: id.String()}
	}
	return nil
}

var templateSortColumns = map[string]string{
	"name":      "name",
	"subject":   "subject",
	"category":  "category",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

func (r *TemplateRepository) List(ctx context.Context, q domain.ListTemplatesQuery) ([]domain.Template, int64, error) {
	where := []string{"TRUE"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Category != "" && q.Category != "all" {
		where = append(where, "category = "+arg(q.Category))
	}
	if q.Search != "" {
		// Keyword search over name and subject, one ILIKE per keyword.
		for _, kw := range strings.Fields(q.Search) {
			p := arg("%" + kw + "%")
			where = append(where, "(name ILIKE "+p+" OR subject ILIKE "+p+")")
		}
	}

	cond := strings.Join(where, " AND ")
	var total int64
	if err := r.pg.QueryRow(ctx, "SELECT COUNT(*) FROM mail_templates WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortCol, ok := templateSortColumns[q.SortBy]
	if !ok {
		sortCol = "updated_at"
	}
	dir := "DESC"
	if strings.EqualFold(q.SortOrder, "asc") {
		dir = "ASC"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	rows, err := r.pg.Query(ctx,
		"SELECT "+templateColumns+" FROM mail_templates WHERE "+cond+
			" ORDER BY "+sortCol+" "+dir+" LIMIT "+arg(limit)+" OFFSET "+arg(offset), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]domain.Template, 0, limit)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}
