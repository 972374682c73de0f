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

const messageColumns = "id, template_id, entity_id, to_addr, from_addr, subject, body, sent_at, created_at, updated_at"

// MessageRepository persists the audit record of each dispatch attempt.
type MessageRepository struct {
	pg *pgxpool.Pool
}

func NewMessageRepository(pg *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pg: pg}
}

var _ domain.MessageRepository = (*MessageRepository)(nil)

func scanMessage(row pgx.Row) (domain.Message, error) {
	var (
		m          domain.Message
		id         pgtype.UUID
		templateID pgtype.UUID
		entityID   pgtype.UUID
		sentAt     pgtype.Timestamptz
	)
	err := row.Scan(&id, &templateID, &entityID, &m.To, &m.From, &m.Subject, &m.Body, &sentAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return domain.Message{}, err
	}
	m.ID = fromPgUUID(id)
	m.TemplateID = fromPgUUIDPtr(templateID)
	m.EntityID = fromPgUUIDPtr(entityID)
	m.SentAt = fromPgTimePtr(sentAt)
	return m, nil
}

func (r *MessageRepository) Create(ctx context.Context, m *domain.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	_, err := r.pg.Exec(ctx, `
		INSERT INTO mail_messages (id, template_id, entity_id, to_addr, from_addr, subject, body, sent_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8, $9)`,
		toPgUUID(m.ID), toPgUUIDPtr(m.TemplateID), toPgUUIDPtr(m.EntityID), m.To, m.From, m.Subject, m.Body, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r *MessageRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Message, error) {
	m, err := scanMessage(r.pg.QueryRow(ctx,
		"SELECT "+messageColumns+" FROM mail_messages WHERE id = $1", toPgUUID(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, domain.MessageNotFoundError{ID: id}
	}
	return m, err
}

// MarkSent records a successful delivery. Last write wins: repeated resends
// overwrite sent_at with the latest attempt's time.
func (r *MessageRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pg.Exec(ctx,
		"UPDATE mail_messages SET sent_at = $2, updated_at = $2 WHERE id = $1", toPgUUID(id), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.MessageNotFoundError{ID: id}
	}
	return nil
}

var messageSortColumns = map[string]string{
	"to":        "to_addr",
	"from":      "from_addr",
	"subject":   "subject",
	"sentAt":    "sent_at",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

func (r *MessageRepository) List(ctx context.Context, q domain.ListMessagesQuery) ([]domain.Message, int64, error) {
	where := []string{"TRUE"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Template != "" && q.Template != "all" {
		if tid, err := uuid.Parse(q.Template); err == nil {
			where = append(where, "template_id = "+arg(toPgUUID(tid)))
		}
	}
	if q.From != "" && q.From != "all" {
		where = append(where, "from_addr = "+arg(q.From))
	}
	if q.To != "" && q.To != "all" {
		where = append(where, "to_addr = "+arg(q.To))
	}
	if q.Search != "" {
		// Keyword search over subject, recipient, sender and body.
		for _, kw := range strings.Fields(q.Search) {
			p := arg("%" + kw + "%")
			where = append(where, "(subject ILIKE "+p+" OR to_addr ILIKE "+p+" OR from_addr ILIKE "+p+" OR body ILIKE "+p+")")
		}
	}

	cond := strings.Join(where, " AND ")
	var total int64
	if err := r.pg.QueryRow(ctx, "SELECT COUNT(*) FROM mail_messages WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortCol, ok := messageSortColumns[q.SortBy]
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
		"SELECT "+messageColumns+" FROM mail_messages WHERE "+cond+
			" ORDER BY "+sortCol+" "+dir+" LIMIT "+arg(limit)+" OFFSET "+arg(offset), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]domain.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}
