package question

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrQuestionNotFound  = errors.New("question not found")
	ErrQuestionForbidden = errors.New("question forbidden")
	ErrQuestionInUse     = errors.New("question is used by an exam")
)

const (
	TypeMCQ    = "mcq"
	TypeDirect = "direct"

	defaultTolerance = 10
)

type Service struct {
	db *sql.DB
}

type OptionInput struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type QuestionInput struct {
	Text          string
	Type          string
	Points        int
	Options       []OptionInput
	CorrectAnswer string
	Tolerance     *int
	TimeLimitSecs int
	MediaType     string
	MediaURL      string
}

type CreateInput struct {
	QuestionInput
	CreatedBy int64
}

type UpdateInput struct {
	QuestionInput
	ID      int64
	ActorID int64
}

type Option struct {
	SeqNo     int    `json:"seq_no"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type Question struct {
	ID            int64     `json:"id"`
	Text          string    `json:"text"`
	Type          string    `json:"type"`
	Points        int       `json:"points"`
	Options       []Option  `json:"options,omitempty"`
	CorrectAnswer string    `json:"correct_answer,omitempty"`
	Tolerance     int       `json:"tolerance"`
	TimeLimitSecs int       `json:"time_limit_secs"`
	MediaType     string    `json:"media_type,omitempty"`
	MediaURL      string    `json:"media_url,omitempty"`
	CreatedBy     int64     `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// validateQuestionInput normalizes and checks one authoring payload. MCQ
// questions need at least two options and one correct one; direct questions
// need a canonical answer and a tolerance within 0..100.
func validateQuestionInput(in *QuestionInput) error {
	in.Text = strings.TrimSpace(in.Text)
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	in.CorrectAnswer = strings.TrimSpace(in.CorrectAnswer)
	in.MediaType = strings.ToLower(strings.TrimSpace(in.MediaType))
	in.MediaURL = strings.TrimSpace(in.MediaURL)

	if in.Text == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidInput)
	}
	if in.Points <= 0 {
		in.Points = 1
	}
	if in.TimeLimitSecs <= 0 {
		in.TimeLimitSecs = 60
	}

	switch in.MediaType {
	case "", "image", "audio", "video":
	default:
		return fmt.Errorf("%w: media_type must be image, audio or video", ErrInvalidInput)
	}
	if in.MediaType != "" && in.MediaURL == "" {
		return fmt.Errorf("%w: media_url is required when media_type is set", ErrInvalidInput)
	}

	switch in.Type {
	case TypeMCQ:
		if len(in.Options) < 2 {
			return fmt.Errorf("%w: mcq questions need at least 2 options", ErrInvalidInput)
		}
		hasCorrect := false
		for i := range in.Options {
			in.Options[i].Text = strings.TrimSpace(in.Options[i].Text)
			if in.Options[i].Text == "" {
				return fmt.Errorf("%w: options[%d].text is required", ErrInvalidInput, i)
			}
			if in.Options[i].IsCorrect {
				hasCorrect = true
			}
		}
		if !hasCorrect {
			return fmt.Errorf("%w: mcq questions need at least one correct option", ErrInvalidInput)
		}
		in.CorrectAnswer = ""
	case TypeDirect:
		if in.CorrectAnswer == "" {
			return fmt.Errorf("%w: correct_answer is required for direct questions", ErrInvalidInput)
		}
		in.Options = nil
	default:
		return fmt.Errorf("%w: type must be mcq or direct", ErrInvalidInput)
	}

	if in.Tolerance == nil {
		t := defaultTolerance
		in.Tolerance = &t
	} else if *in.Tolerance < 0 || *in.Tolerance > 100 {
		return fmt.Errorf("%w: tolerance must be between 0 and 100", ErrInvalidInput)
	}

	return nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Question, error) {
	if in.CreatedBy <= 0 {
		return nil, ErrInvalidInput
	}
	if err := validateQuestionInput(&in.QuestionInput); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO questions (
			question_text, question_type, points, correct_answer, tolerance,
			time_limit_secs, media_type, media_url, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		in.Text, in.Type, in.Points, in.CorrectAnswer, *in.Tolerance,
		in.TimeLimitSecs, in.MediaType, in.MediaURL, in.CreatedBy,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}

	if err := replaceOptionsTx(ctx, tx, id, in.Options); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create question: %w", err)
	}
	return s.Get(ctx, id, 0)
}

func (s *Service) Update(ctx context.Context, in UpdateInput) (*Question, error) {
	if in.ID <= 0 {
		return nil, ErrInvalidInput
	}
	if err := validateQuestionInput(&in.QuestionInput); err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, in.ID, in.ActorID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE questions
		SET question_text = $2,
		    question_type = $3,
		    points = $4,
		    correct_answer = $5,
		    tolerance = $6,
		    time_limit_secs = $7,
		    media_type = $8,
		    media_url = $9,
		    updated_at = now()
		WHERE id = $1
	`,
		in.ID, in.Text, in.Type, in.Points, in.CorrectAnswer, *in.Tolerance,
		in.TimeLimitSecs, in.MediaType, in.MediaURL,
	)
	if err != nil {
		return nil, fmt.Errorf("update question: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update question rows: %w", err)
	}
	if affected == 0 {
		return nil, ErrQuestionNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM question_options WHERE question_id = $1
	`, in.ID); err != nil {
		return nil, fmt.Errorf("clear options: %w", err)
	}
	if err := replaceOptionsTx(ctx, tx, in.ID, in.Options); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update question: %w", err)
	}
	return s.Get(ctx, in.ID, 0)
}

// Delete refuses to remove a question still referenced by any exam.
func (s *Service) Delete(ctx context.Context, questionID, actorID int64) error {
	if questionID <= 0 {
		return ErrInvalidInput
	}
	if err := s.requireOwner(ctx, questionID, actorID); err != nil {
		return err
	}

	var inUse bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM exam_questions WHERE question_id = $1)
	`, questionID).Scan(&inUse); err != nil {
		return fmt.Errorf("check question usage: %w", err)
	}
	if inUse {
		return ErrQuestionInUse
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, questionID); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, ownerID int64) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question_text, question_type, points, correct_answer, tolerance,
		       time_limit_secs, media_type, media_url, created_by, created_at, updated_at
		FROM questions
		WHERE created_by = $1
		ORDER BY id DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	items := make([]Question, 0)
	for rows.Next() {
		var q Question
		if err := rows.Scan(
			&q.ID, &q.Text, &q.Type, &q.Points, &q.CorrectAnswer, &q.Tolerance,
			&q.TimeLimitSecs, &q.MediaType, &q.MediaURL, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		items = append(items, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}

	for i := range items {
		if items[i].Type != TypeMCQ {
			continue
		}
		opts, err := s.listOptions(ctx, items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].Options = opts
	}
	return items, nil
}

// Get loads one question with its options. actorID 0 skips the ownership
// check for internal callers.
func (s *Service) Get(ctx context.Context, questionID, actorID int64) (*Question, error) {
	if questionID <= 0 {
		return nil, ErrInvalidInput
	}

	var q Question
	err := s.db.QueryRowContext(ctx, `
		SELECT id, question_text, question_type, points, correct_answer, tolerance,
		       time_limit_secs, media_type, media_url, created_by, created_at, updated_at
		FROM questions
		WHERE id = $1
	`, questionID).Scan(
		&q.ID, &q.Text, &q.Type, &q.Points, &q.CorrectAnswer, &q.Tolerance,
		&q.TimeLimitSecs, &q.MediaType, &q.MediaURL, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("load question: %w", err)
	}
	if actorID > 0 && q.CreatedBy != actorID {
		return nil, ErrQuestionForbidden
	}

	if q.Type == TypeMCQ {
		opts, err := s.listOptions(ctx, q.ID)
		if err != nil {
			return nil, err
		}
		q.Options = opts
	}
	return &q, nil
}

func (s *Service) listOptions(ctx context.Context, questionID int64) ([]Option, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq_no, option_text, is_correct
		FROM question_options
		WHERE question_id = $1
		ORDER BY seq_no
	`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer rows.Close()

	items := make([]Option, 0)
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.SeqNo, &o.Text, &o.IsCorrect); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate options: %w", err)
	}
	return items, nil
}

func (s *Service) requireOwner(ctx context.Context, questionID, actorID int64) error {
	var createdBy int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT created_by FROM questions WHERE id = $1
	`, questionID).Scan(&createdBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("load question owner: %w", err)
	}
	if actorID > 0 && createdBy != actorID {
		return ErrQuestionForbidden
	}
	return nil
}

func replaceOptionsTx(ctx context.Context, tx *sql.Tx, questionID int64, options []OptionInput) error {
	for i, opt := range options {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO question_options (question_id, seq_no, option_text, is_correct)
			VALUES ($1, $2, $3, $4)
		`, questionID, i, opt.Text, opt.IsCorrect); err != nil {
			return fmt.Errorf("insert option: %w", err)
		}
	}
	return nil
}
