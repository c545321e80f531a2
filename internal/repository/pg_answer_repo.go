package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qahub/qa-stream/internal/domain"
)

type pgAnswerRepository struct {
	pool *pgxpool.Pool
}

// NewPgAnswerRepository returns an AnswerRepository backed by PostgreSQL.
func NewPgAnswerRepository(pool *pgxpool.Pool) AnswerRepository {
	return &pgAnswerRepository{pool: pool}
}

// InsertBatch builds one multi-row INSERT ... RETURNING statement so the
// batch commits atomically: either every variant of an entry is stored
// or none is.
func (r *pgAnswerRepository) InsertBatch(ctx context.Context, answers []NewAnswer) ([]domain.Answer, error) {
	if len(answers) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO answers (question_id, body, user_id)
		VALUES `)

	args := make([]any, 0, len(answers)*3)
	for i, a := range answers {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d,$%d,$%d)", i*3+1, i*3+2, i*3+3)
		args = append(args, a.QuestionID, a.Body, a.UserID)
	}
	sb.WriteString(`
		RETURNING id, question_id, body, user_id, created_at, updated_at, votes`)

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("insert answers: %w", err)
	}
	defer rows.Close()

	stored := make([]domain.Answer, 0, len(answers))
	for rows.Next() {
		var a domain.Answer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.Body, &a.UserID, &a.CreatedAt, &a.UpdatedAt, &a.Votes); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		stored = append(stored, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("insert answers: %w", err)
	}
	return stored, nil
}

// compile-time check that pgAnswerRepository implements AnswerRepository
var _ AnswerRepository = (*pgAnswerRepository)(nil)
