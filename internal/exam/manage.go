package exam

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Ambiguous characters are excluded so codes survive being read aloud.
const accessCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	accessCodeLength   = 8
	accessCodeAttempts = 5
)

type ExamRecord struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Subject         string     `json:"subject"`
	Description     string     `json:"description"`
	Instructions    string     `json:"instructions"`
	AccessCode      string     `json:"access_code"`
	DurationMinutes int        `json:"duration_minutes"`
	IsPublished     bool       `json:"is_published"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	EndAt           *time.Time `json:"end_at,omitempty"`
	QuestionCount   int        `json:"question_count"`
	CreatedBy       int64      `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type CreateExamInput struct {
	Title           string
	Subject         string
	Description     string
	Instructions    string
	DurationMinutes int
	StartAt         *time.Time
	EndAt           *time.Time
	CreatedBy       int64
}

type UpdateExamInput struct {
	ID              int64
	Title           string
	Subject         string
	Description     string
	Instructions    string
	DurationMinutes int
	StartAt         *time.Time
	EndAt           *time.Time
	ActorID         int64
}

type ExamQuestionItem struct {
	QuestionID   int64  `json:"question_id"`
	SeqNo        int    `json:"seq_no"`
	QuestionText string `json:"question_text"`
	QuestionType string `json:"question_type"`
	Points       int    `json:"points"`
}

type ReplaceExamQuestionsInput struct {
	ExamID      int64
	QuestionIDs []int64
	ActorID     int64
}

// CreateExam stores a new unpublished exam and assigns it a fresh access
// code. The duration defaults when the caller omits it.
func (s *Service) CreateExam(ctx context.Context, in CreateExamInput) (*ExamRecord, error) {
	if strings.TrimSpace(in.Title) == "" || in.CreatedBy <= 0 {
		return nil, ErrInvalidInput
	}
	if in.DurationMinutes <= 0 {
		in.DurationMinutes = s.defaultExamMinutes
	}
	if in.StartAt != nil && in.EndAt != nil && in.EndAt.Before(*in.StartAt) {
		return nil, ErrInvalidInput
	}

	for attempt := 0; attempt < accessCodeAttempts; attempt++ {
		code, err := generateAccessCode()
		if err != nil {
			return nil, err
		}

		var id int64
		err = s.db.QueryRowContext(ctx, `
			INSERT INTO exams (
				title, subject, description, instructions, access_code,
				duration_minutes, start_at, end_at, created_by
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (access_code) DO NOTHING
			RETURNING id
		`,
			strings.TrimSpace(in.Title), strings.TrimSpace(in.Subject),
			in.Description, in.Instructions, code,
			in.DurationMinutes, in.StartAt, in.EndAt, in.CreatedBy,
		).Scan(&id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("insert exam: %w", err)
		}
		return s.getExamRecord(ctx, id)
	}
	return nil, ErrAccessCodeExhausted
}

func (s *Service) UpdateExam(ctx context.Context, in UpdateExamInput) (*ExamRecord, error) {
	if in.ID <= 0 || strings.TrimSpace(in.Title) == "" {
		return nil, ErrInvalidInput
	}
	if in.StartAt != nil && in.EndAt != nil && in.EndAt.Before(*in.StartAt) {
		return nil, ErrInvalidInput
	}
	if err := s.requireExamOwner(ctx, in.ID, in.ActorID); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE exams
		SET title = $2,
		    subject = $3,
		    description = $4,
		    instructions = $5,
		    duration_minutes = $6,
		    start_at = $7,
		    end_at = $8,
		    updated_at = now()
		WHERE id = $1
	`,
		in.ID, strings.TrimSpace(in.Title), strings.TrimSpace(in.Subject),
		in.Description, in.Instructions, in.DurationMinutes, in.StartAt, in.EndAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update exam rows: %w", err)
	}
	if affected == 0 {
		return nil, ErrExamNotFound
	}
	return s.getExamRecord(ctx, in.ID)
}

// DeleteExam refuses to remove an exam that already has submissions.
func (s *Service) DeleteExam(ctx context.Context, examID, actorID int64) error {
	if examID <= 0 {
		return ErrInvalidInput
	}
	if err := s.requireExamOwner(ctx, examID, actorID); err != nil {
		return err
	}

	var hasSubmissions bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM submissions WHERE exam_id = $1)
	`, examID).Scan(&hasSubmissions); err != nil {
		return fmt.Errorf("check exam submissions: %w", err)
	}
	if hasSubmissions {
		return ErrExamInUse
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM exams WHERE id = $1`, examID); err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	return nil
}

func (s *Service) ListExams(ctx context.Context, ownerID int64) ([]ExamRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.title, e.subject, e.description, e.instructions,
		       e.access_code, e.duration_minutes, e.is_published,
		       e.start_at, e.end_at, e.created_by, e.created_at, e.updated_at,
		       (SELECT COUNT(*) FROM exam_questions eq WHERE eq.exam_id = e.id)
		FROM exams e
		WHERE e.created_by = $1
		ORDER BY e.created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	defer rows.Close()

	items := make([]ExamRecord, 0)
	for rows.Next() {
		rec, err := scanExamRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exams: %w", err)
	}
	return items, nil
}

func (s *Service) GetExam(ctx context.Context, examID, actorID int64) (*ExamRecord, error) {
	if err := s.requireExamOwner(ctx, examID, actorID); err != nil {
		return nil, err
	}
	return s.getExamRecord(ctx, examID)
}

// PublishExam flips the exam live. An exam with no questions cannot be
// published.
func (s *Service) PublishExam(ctx context.Context, examID, actorID int64, publish bool) (*ExamRecord, error) {
	if err := s.requireExamOwner(ctx, examID, actorID); err != nil {
		return nil, err
	}

	if publish {
		total, err := countExamQuestions(ctx, s.db, examID)
		if err != nil {
			return nil, err
		}
		if total == 0 {
			return nil, ErrInvalidInput
		}
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE exams SET is_published = $2, updated_at = now() WHERE id = $1
	`, examID, publish); err != nil {
		return nil, fmt.Errorf("publish exam: %w", err)
	}
	return s.getExamRecord(ctx, examID)
}

// ReplaceExamQuestions swaps the exam's question list atomically, keeping
// the order the caller gave.
func (s *Service) ReplaceExamQuestions(ctx context.Context, in ReplaceExamQuestionsInput) ([]ExamQuestionItem, error) {
	if in.ExamID <= 0 {
		return nil, ErrInvalidInput
	}
	seen := map[int64]struct{}{}
	for _, id := range in.QuestionIDs {
		if id <= 0 {
			return nil, ErrInvalidInput
		}
		if _, dup := seen[id]; dup {
			return nil, ErrInvalidInput
		}
		seen[id] = struct{}{}
	}
	if err := s.requireExamOwner(ctx, in.ExamID, in.ActorID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin replace questions tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM exam_questions WHERE exam_id = $1
	`, in.ExamID); err != nil {
		return nil, fmt.Errorf("clear exam questions: %w", err)
	}

	for i, questionID := range in.QuestionIDs {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO exam_questions (exam_id, question_id, seq_no)
			SELECT $1, id, $3 FROM questions WHERE id = $2
		`, in.ExamID, questionID, i+1)
		if err != nil {
			return nil, fmt.Errorf("insert exam question: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("insert exam question rows: %w", err)
		}
		if affected == 0 {
			return nil, ErrQuestionNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit replace questions: %w", err)
	}
	return s.ListExamQuestions(ctx, in.ExamID, in.ActorID)
}

func (s *Service) ListExamQuestions(ctx context.Context, examID, actorID int64) ([]ExamQuestionItem, error) {
	if err := s.requireExamOwner(ctx, examID, actorID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT eq.question_id, eq.seq_no, q.question_text, q.question_type, q.points
		FROM exam_questions eq
		JOIN questions q ON q.id = eq.question_id
		WHERE eq.exam_id = $1
		ORDER BY eq.seq_no
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("list exam questions: %w", err)
	}
	defer rows.Close()

	items := make([]ExamQuestionItem, 0)
	for rows.Next() {
		var item ExamQuestionItem
		if err := rows.Scan(&item.QuestionID, &item.SeqNo, &item.QuestionText, &item.QuestionType, &item.Points); err != nil {
			return nil, fmt.Errorf("scan exam question: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exam questions: %w", err)
	}
	return items, nil
}

func (s *Service) requireExamOwner(ctx context.Context, examID, actorID int64) error {
	if examID <= 0 {
		return ErrInvalidInput
	}
	var createdBy int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT created_by FROM exams WHERE id = $1
	`, examID).Scan(&createdBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrExamNotFound
		}
		return fmt.Errorf("load exam owner: %w", err)
	}
	if actorID > 0 && createdBy != actorID {
		return ErrExamForbidden
	}
	return nil
}

func (s *Service) getExamRecord(ctx context.Context, examID int64) (*ExamRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT e.id, e.title, e.subject, e.description, e.instructions,
		       e.access_code, e.duration_minutes, e.is_published,
		       e.start_at, e.end_at, e.created_by, e.created_at, e.updated_at,
		       (SELECT COUNT(*) FROM exam_questions eq WHERE eq.exam_id = e.id)
		FROM exams e
		WHERE e.id = $1
	`, examID)
	rec, err := scanExamRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExamRecord(row rowScanner) (*ExamRecord, error) {
	var (
		rec     ExamRecord
		startAt sql.NullTime
		endAt   sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &rec.Title, &rec.Subject, &rec.Description, &rec.Instructions,
		&rec.AccessCode, &rec.DurationMinutes, &rec.IsPublished,
		&startAt, &endAt, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt,
		&rec.QuestionCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan exam: %w", err)
	}
	if startAt.Valid {
		rec.StartAt = &startAt.Time
	}
	if endAt.Valid {
		rec.EndAt = &endAt.Time
	}
	return &rec, nil
}

func generateAccessCode() (string, error) {
	buf := make([]byte, accessCodeLength)
	max := big.NewInt(int64(len(accessCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate access code: %w", err)
		}
		buf[i] = accessCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
