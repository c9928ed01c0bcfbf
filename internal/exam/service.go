package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrExamNotFound        = errors.New("exam not found")
	ErrInvalidAccessCode   = errors.New("invalid access code or exam not available")
	ErrExamNotStarted      = errors.New("exam has not started yet")
	ErrExamEnded           = errors.New("exam has ended")
	ErrExamForbidden       = errors.New("exam forbidden")
	ErrExamInUse           = errors.New("exam has submissions")
	ErrAccessCodeExhausted = errors.New("could not generate a unique access code")
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrSubmissionForbidden = errors.New("submission forbidden")
	ErrSubmissionFinal     = errors.New("submission already finalized")
	ErrSubmissionNotFinal  = errors.New("submission not finalized")
	ErrQuestionNotFound    = errors.New("question not found")
	ErrQuestionNotInExam   = errors.New("question not in exam")
	ErrInvalidInput        = errors.New("invalid input")
)

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusTimedOut   = "timed_out"
)

// Service owns the exam-taking flow: start-or-resume by access code, the
// per-question step loop, answer grading, lazy time expiry and finalization.
// Every mutating operation locks the submission row inside a transaction so
// double-submitted requests serialize instead of racing.
type Service struct {
	db                 *sql.DB
	defaultExamMinutes int
	now                func() time.Time
}

func NewService(db *sql.DB, defaultExamMinutes int) *Service {
	if defaultExamMinutes <= 0 {
		defaultExamMinutes = 60
	}
	return &Service{db: db, defaultExamMinutes: defaultExamMinutes, now: time.Now}
}

type Submission struct {
	ID                   int64      `json:"id"`
	ExamID               int64      `json:"exam_id"`
	StudentID            int64      `json:"student_id"`
	Status               string     `json:"status"`
	StartedAt            time.Time  `json:"started_at"`
	EndedAt              *time.Time `json:"ended_at,omitempty"`
	CurrentQuestionIndex int        `json:"current_question_index"`
	TotalScore           int        `json:"total_score"`
	PercentageScore      float64    `json:"percentage_score"`
}

type StartResult struct {
	Submission       Submission `json:"submission"`
	Resumed          bool       `json:"resumed"`
	AlreadyCompleted bool       `json:"already_completed"`
}

type ExamStepInfo struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Subject         string `json:"subject"`
	Instructions    string `json:"instructions"`
	DurationMinutes int    `json:"duration_minutes"`
}

// QuestionStepView is what a student is allowed to see mid-exam: no
// correctness flags on options and no canonical answer.
type QuestionStepView struct {
	ID            int64    `json:"id"`
	Text          string   `json:"text"`
	Type          string   `json:"type"`
	Points        int      `json:"points"`
	TimeLimitSecs int      `json:"time_limit_secs"`
	MediaType     string   `json:"media_type,omitempty"`
	MediaURL      string   `json:"media_url,omitempty"`
	Options       []string `json:"options,omitempty"`
	Number        int      `json:"number"`
}

type SavedAnswer struct {
	SelectedOptions []string `json:"selected_options"`
	TextAnswer      string   `json:"text_answer"`
}

type StepView struct {
	Exam           ExamStepInfo     `json:"exam"`
	Question       QuestionStepView `json:"question"`
	SavedAnswer    *SavedAnswer     `json:"saved_answer,omitempty"`
	QuestionIndex  int              `json:"question_index"`
	TotalQuestions int              `json:"total_questions"`
	RemainingSecs  int64            `json:"remaining_secs"`
	IsLastQuestion bool             `json:"is_last_question"`
}

type SubmitAnswerInput struct {
	SubmissionID    int64
	QuestionID      int64
	SelectedOptions []string
	TextAnswer      string
	TimeTakenSecs   int
}

type AnswerFeedback struct {
	IsCorrect     bool `json:"is_correct"`
	PointsAwarded int  `json:"points_awarded"`
}

type AdvanceResult struct {
	Advanced  bool `json:"advanced"`
	NextIndex int  `json:"next_index"`
	IsLast    bool `json:"is_last"`
}

type ResultSummary struct {
	SubmissionID    int64      `json:"submission_id"`
	ExamID          int64      `json:"exam_id"`
	ExamTitle       string     `json:"exam_title"`
	Status          string     `json:"status"`
	TotalScore      int        `json:"total_score"`
	PossiblePoints  int        `json:"possible_points"`
	PercentageScore float64    `json:"percentage_score"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

type ResultItem struct {
	QuestionID      int64    `json:"question_id"`
	Text            string   `json:"text"`
	Type            string   `json:"type"`
	Points          int      `json:"points"`
	Answered        bool     `json:"answered"`
	SelectedOptions []string `json:"selected_options,omitempty"`
	TextAnswer      string   `json:"text_answer,omitempty"`
	CorrectOptions  []string `json:"correct_options,omitempty"`
	CorrectAnswer   string   `json:"correct_answer,omitempty"`
	IsCorrect       bool     `json:"is_correct"`
	PointsAwarded   int      `json:"points_awarded"`
}

type SubmissionResult struct {
	Summary ResultSummary `json:"summary"`
	Items   []ResultItem  `json:"items"`
}

type GeolocationInput struct {
	SubmissionID int64
	Latitude     float64
	Longitude    float64
	Accuracy     float64
	IPAddress    string
	UserAgent    string
}

type submissionRow struct {
	ID                   int64
	ExamID               int64
	StudentID            int64
	Status               string
	StartedAt            time.Time
	EndedAt              sql.NullTime
	CurrentQuestionIndex int
	TotalScore           int
	PercentageScore      float64
	DurationMinutes      int
}

// StartOrResume validates an access code for the requesting student and
// returns either the student's completed submission (short-circuit to
// results), the in-progress one (resume) or a freshly created one.
func (s *Service) StartOrResume(ctx context.Context, accessCode string, studentID int64) (*StartResult, error) {
	code := strings.TrimSpace(accessCode)
	if code == "" || studentID <= 0 {
		return nil, ErrInvalidInput
	}

	var (
		examID      int64
		isPublished bool
		startAt     sql.NullTime
		endAt       sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, is_published, start_at, end_at
		FROM exams
		WHERE access_code = $1
	`, code).Scan(&examID, &isPublished, &startAt, &endAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidAccessCode
		}
		return nil, fmt.Errorf("query exam by access code: %w", err)
	}
	if !isPublished {
		return nil, ErrInvalidAccessCode
	}

	now := s.now()
	if startAt.Valid && now.Before(startAt.Time) {
		return nil, ErrExamNotStarted
	}
	if endAt.Valid && now.After(endAt.Time) {
		return nil, ErrExamEnded
	}

	if sub, err := s.findSubmissionByStatus(ctx, examID, studentID, StatusCompleted); err != nil {
		return nil, err
	} else if sub != nil {
		return &StartResult{Submission: *sub, AlreadyCompleted: true}, nil
	}

	if sub, err := s.findSubmissionByStatus(ctx, examID, studentID, StatusInProgress); err != nil {
		return nil, err
	} else if sub != nil {
		return &StartResult{Submission: *sub, Resumed: true}, nil
	}

	var created Submission
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO submissions (exam_id, student_id, status, started_at, current_question_index)
		VALUES ($1, $2, 'in_progress', $3, 0)
		ON CONFLICT (exam_id, student_id) WHERE status = 'in_progress' DO NOTHING
		RETURNING id, exam_id, student_id, status, started_at, ended_at,
		          current_question_index, total_score, percentage_score
	`, examID, studentID, now).Scan(
		&created.ID,
		&created.ExamID,
		&created.StudentID,
		&created.Status,
		&created.StartedAt,
		new(sql.NullTime),
		&created.CurrentQuestionIndex,
		&created.TotalScore,
		&created.PercentageScore,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost the insert race against a concurrent start; resume instead.
			sub, ferr := s.findSubmissionByStatus(ctx, examID, studentID, StatusInProgress)
			if ferr != nil {
				return nil, ferr
			}
			if sub == nil {
				return nil, fmt.Errorf("start submission: conflicting insert vanished")
			}
			return &StartResult{Submission: *sub, Resumed: true}, nil
		}
		return nil, fmt.Errorf("insert submission: %w", err)
	}

	return &StartResult{Submission: created}, nil
}

// GetCurrentStep returns the view a student needs to answer the current
// question. Reads also enforce expiry: an overdue submission transitions to
// timed_out here and the caller is sent to the results page.
func (s *Service) GetCurrentStep(ctx context.Context, submissionID int64) (*StepView, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin step tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row, err := s.loadSubmissionForUpdate(ctx, tx, submissionID)
	if err != nil {
		return nil, err
	}
	if row.Status != StatusInProgress {
		return nil, ErrSubmissionFinal
	}

	now := s.now()
	if remainingSeconds(row, now) <= 0 {
		if err := s.finalizeTx(ctx, tx, row, StatusTimedOut, now); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit timeout: %w", err)
		}
		return nil, ErrSubmissionFinal
	}

	var info ExamStepInfo
	if err := tx.QueryRowContext(ctx, `
		SELECT id, title, subject, instructions, duration_minutes
		FROM exams
		WHERE id = $1
	`, row.ExamID).Scan(&info.ID, &info.Title, &info.Subject, &info.Instructions, &info.DurationMinutes); err != nil {
		return nil, fmt.Errorf("load exam info: %w", err)
	}

	total, err := countExamQuestions(ctx, tx, row.ExamID)
	if err != nil {
		return nil, err
	}
	if row.CurrentQuestionIndex >= total {
		return nil, ErrQuestionNotFound
	}

	var q QuestionStepView
	err = tx.QueryRowContext(ctx, `
		SELECT q.id, q.question_text, q.question_type, q.points,
		       q.time_limit_secs, q.media_type, q.media_url
		FROM exam_questions eq
		JOIN questions q ON q.id = eq.question_id
		WHERE eq.exam_id = $1
		ORDER BY eq.seq_no
		OFFSET $2 LIMIT 1
	`, row.ExamID, row.CurrentQuestionIndex).Scan(
		&q.ID, &q.Text, &q.Type, &q.Points, &q.TimeLimitSecs, &q.MediaType, &q.MediaURL,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("load current question: %w", err)
	}
	q.Number = row.CurrentQuestionIndex + 1

	if q.Type == QuestionTypeMCQ {
		rows, err := tx.QueryContext(ctx, `
			SELECT option_text
			FROM question_options
			WHERE question_id = $1
			ORDER BY seq_no
		`, q.ID)
		if err != nil {
			return nil, fmt.Errorf("load options: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var text string
			if err := rows.Scan(&text); err != nil {
				return nil, fmt.Errorf("scan option: %w", err)
			}
			q.Options = append(q.Options, text)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate options: %w", err)
		}
	}

	saved, err := loadSavedAnswer(ctx, tx, row.ID, q.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit step: %w", err)
	}

	return &StepView{
		Exam:           info,
		Question:       q,
		SavedAnswer:    saved,
		QuestionIndex:  row.CurrentQuestionIndex,
		TotalQuestions: total,
		RemainingSecs:  clampSeconds(remainingSeconds(row, now)),
		IsLastQuestion: row.CurrentQuestionIndex == total-1,
	}, nil
}

// SubmitAnswer grades and upserts one answer (last write wins) and returns
// immediate feedback. It never advances the question index.
func (s *Service) SubmitAnswer(ctx context.Context, in SubmitAnswerInput) (*AnswerFeedback, error) {
	if in.SubmissionID <= 0 || in.QuestionID <= 0 {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin answer tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row, err := s.loadSubmissionForUpdate(ctx, tx, in.SubmissionID)
	if err != nil {
		return nil, err
	}
	if row.Status != StatusInProgress {
		return nil, ErrSubmissionFinal
	}

	now := s.now()
	if remainingSeconds(row, now) <= 0 {
		if err := s.finalizeTx(ctx, tx, row, StatusTimedOut, now); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit timeout: %w", err)
		}
		return nil, ErrSubmissionFinal
	}

	var inExam bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM exam_questions
			WHERE exam_id = $1 AND question_id = $2
		)
	`, row.ExamID, in.QuestionID).Scan(&inExam); err != nil {
		return nil, fmt.Errorf("validate question in exam: %w", err)
	}
	if !inExam {
		return nil, ErrQuestionNotInExam
	}

	question, err := loadGradedQuestion(ctx, tx, in.QuestionID)
	if err != nil {
		return nil, err
	}

	isCorrect, points := Grade(*question, AnswerInput{
		SelectedOptions: in.SelectedOptions,
		TextAnswer:      in.TextAnswer,
		TimeTakenSecs:   in.TimeTakenSecs,
	})

	selectedJSON, err := json.Marshal(normalizeStringSet(in.SelectedOptions))
	if err != nil {
		return nil, fmt.Errorf("encode selected options: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO submission_answers (
			submission_id, question_id, selected_options, text_answer,
			is_correct, points, time_taken_secs, submitted_at
		) VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7, $8)
		ON CONFLICT (submission_id, question_id)
		DO UPDATE SET
			selected_options = EXCLUDED.selected_options,
			text_answer = EXCLUDED.text_answer,
			is_correct = EXCLUDED.is_correct,
			points = EXCLUDED.points,
			time_taken_secs = EXCLUDED.time_taken_secs,
			submitted_at = EXCLUDED.submitted_at
	`, row.ID, in.QuestionID, selectedJSON, in.TextAnswer, isCorrect, points, in.TimeTakenSecs, now); err != nil {
		return nil, fmt.Errorf("upsert answer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit answer: %w", err)
	}

	return &AnswerFeedback{IsCorrect: isCorrect, PointsAwarded: points}, nil
}

// Advance moves to the next question, or reports isLast without mutating
// anything when the submission already sits on the final question.
func (s *Service) Advance(ctx context.Context, submissionID int64) (*AdvanceResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin advance tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row, err := s.loadSubmissionForUpdate(ctx, tx, submissionID)
	if err != nil {
		return nil, err
	}
	if row.Status != StatusInProgress {
		return nil, ErrSubmissionFinal
	}

	now := s.now()
	if remainingSeconds(row, now) <= 0 {
		if err := s.finalizeTx(ctx, tx, row, StatusTimedOut, now); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit timeout: %w", err)
		}
		return nil, ErrSubmissionFinal
	}

	total, err := countExamQuestions(ctx, tx, row.ExamID)
	if err != nil {
		return nil, err
	}

	if row.CurrentQuestionIndex >= total-1 {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit advance noop: %w", err)
		}
		return &AdvanceResult{IsLast: true, NextIndex: row.CurrentQuestionIndex}, nil
	}

	next := row.CurrentQuestionIndex + 1
	if _, err := tx.ExecContext(ctx, `
		UPDATE submissions SET current_question_index = $2 WHERE id = $1
	`, row.ID, next); err != nil {
		return nil, fmt.Errorf("advance submission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit advance: %w", err)
	}

	return &AdvanceResult{Advanced: true, NextIndex: next, IsLast: next == total-1}, nil
}

// Finish completes the submission and computes aggregate scores. An explicit
// finish always records completed, even past the deadline; timed_out is
// reserved for expiry detected on reads and answer writes. Calling Finish on
// an already-terminal submission returns the stored summary unchanged.
func (s *Service) Finish(ctx context.Context, submissionID int64) (*ResultSummary, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin finish tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row, err := s.loadSubmissionForUpdate(ctx, tx, submissionID)
	if err != nil {
		return nil, err
	}

	if row.Status == StatusInProgress {
		if err := s.finalizeTx(ctx, tx, row, StatusCompleted, s.now()); err != nil {
			return nil, err
		}
		row, err = s.loadSubmissionForUpdate(ctx, tx, submissionID)
		if err != nil {
			return nil, err
		}
	}

	summary, err := s.buildSummaryTx(ctx, tx, row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit finish: %w", err)
	}
	return summary, nil
}

// Result returns the finalized summary plus a per-question breakdown with
// the correct answers revealed. An in-progress, unexpired submission has no
// result yet.
func (s *Service) Result(ctx context.Context, submissionID int64) (*SubmissionResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin result tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row, err := s.loadSubmissionForUpdate(ctx, tx, submissionID)
	if err != nil {
		return nil, err
	}

	if row.Status == StatusInProgress {
		now := s.now()
		if remainingSeconds(row, now) > 0 {
			return nil, ErrSubmissionNotFinal
		}
		if err := s.finalizeTx(ctx, tx, row, StatusTimedOut, now); err != nil {
			return nil, err
		}
		row, err = s.loadSubmissionForUpdate(ctx, tx, submissionID)
		if err != nil {
			return nil, err
		}
	}

	summary, err := s.buildSummaryTx(ctx, tx, row)
	if err != nil {
		return nil, err
	}

	items, err := s.loadResultItems(ctx, tx, row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit result: %w", err)
	}

	return &SubmissionResult{Summary: *summary, Items: items}, nil
}

// SaveGeolocation records best-effort proctoring metadata on a submission.
func (s *Service) SaveGeolocation(ctx context.Context, in GeolocationInput) error {
	if in.SubmissionID <= 0 {
		return ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET latitude = $2,
		    longitude = $3,
		    accuracy = $4,
		    geo_recorded_at = $5,
		    ip_address = $6,
		    user_agent = $7
		WHERE id = $1
	`, in.SubmissionID, in.Latitude, in.Longitude, in.Accuracy, s.now(), in.IPAddress, in.UserAgent)
	if err != nil {
		return fmt.Errorf("save geolocation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save geolocation rows: %w", err)
	}
	if affected == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

func (s *Service) GetSubmissionOwner(ctx context.Context, submissionID int64) (int64, error) {
	var studentID int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT student_id FROM submissions WHERE id = $1
	`, submissionID).Scan(&studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrSubmissionNotFound
		}
		return 0, fmt.Errorf("load submission owner: %w", err)
	}
	return studentID, nil
}

func (s *Service) findSubmissionByStatus(ctx context.Context, examID, studentID int64, status string) (*Submission, error) {
	var (
		sub     Submission
		endedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, exam_id, student_id, status, started_at, ended_at,
		       current_question_index, total_score, percentage_score
		FROM submissions
		WHERE exam_id = $1 AND student_id = $2 AND status = $3
		ORDER BY started_at DESC
		LIMIT 1
	`, examID, studentID, status).Scan(
		&sub.ID, &sub.ExamID, &sub.StudentID, &sub.Status, &sub.StartedAt, &endedAt,
		&sub.CurrentQuestionIndex, &sub.TotalScore, &sub.PercentageScore,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query submission by status: %w", err)
	}
	if endedAt.Valid {
		sub.EndedAt = &endedAt.Time
	}
	return &sub, nil
}

func (s *Service) loadSubmissionForUpdate(ctx context.Context, tx *sql.Tx, submissionID int64) (*submissionRow, error) {
	row := &submissionRow{}
	err := tx.QueryRowContext(ctx, `
		SELECT s.id, s.exam_id, s.student_id, s.status, s.started_at, s.ended_at,
		       s.current_question_index, s.total_score, s.percentage_score,
		       e.duration_minutes
		FROM submissions s
		JOIN exams e ON e.id = s.exam_id
		WHERE s.id = $1
		FOR UPDATE OF s
	`, submissionID).Scan(
		&row.ID, &row.ExamID, &row.StudentID, &row.Status, &row.StartedAt, &row.EndedAt,
		&row.CurrentQuestionIndex, &row.TotalScore, &row.PercentageScore,
		&row.DurationMinutes,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("load submission for update: %w", err)
	}
	return row, nil
}

// finalizeTx aggregates recorded answer points against the exam's possible
// points and moves the submission to a terminal status.
func (s *Service) finalizeTx(ctx context.Context, tx *sql.Tx, row *submissionRow, finalStatus string, now time.Time) error {
	var total int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(points), 0)
		FROM submission_answers
		WHERE submission_id = $1
	`, row.ID).Scan(&total); err != nil {
		return fmt.Errorf("sum answer points: %w", err)
	}

	possible, err := sumPossiblePoints(ctx, tx, row.ExamID)
	if err != nil {
		return err
	}

	percentage := 0.0
	if possible > 0 {
		percentage = float64(total) / float64(possible) * 100
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE submissions
		SET status = $2,
		    ended_at = $3,
		    total_score = $4,
		    percentage_score = $5
		WHERE id = $1
	`, row.ID, finalStatus, now, total, percentage); err != nil {
		return fmt.Errorf("finalize submission: %w", err)
	}
	return nil
}

func (s *Service) buildSummaryTx(ctx context.Context, tx *sql.Tx, row *submissionRow) (*ResultSummary, error) {
	possible, err := sumPossiblePoints(ctx, tx, row.ExamID)
	if err != nil {
		return nil, err
	}

	var title string
	if err := tx.QueryRowContext(ctx, `
		SELECT title FROM exams WHERE id = $1
	`, row.ExamID).Scan(&title); err != nil {
		return nil, fmt.Errorf("load exam title: %w", err)
	}

	summary := &ResultSummary{
		SubmissionID:    row.ID,
		ExamID:          row.ExamID,
		ExamTitle:       title,
		Status:          row.Status,
		TotalScore:      row.TotalScore,
		PossiblePoints:  possible,
		PercentageScore: row.PercentageScore,
		StartedAt:       row.StartedAt,
	}
	if row.EndedAt.Valid {
		summary.EndedAt = &row.EndedAt.Time
	}
	return summary, nil
}

func (s *Service) loadResultItems(ctx context.Context, tx *sql.Tx, row *submissionRow) ([]ResultItem, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT q.id, q.question_text, q.question_type, q.points, q.correct_answer,
		       COALESCE(a.selected_options, '[]'::jsonb),
		       COALESCE(a.text_answer, ''),
		       COALESCE(a.is_correct, FALSE),
		       COALESCE(a.points, 0),
		       a.submission_id IS NOT NULL AS answered
		FROM exam_questions eq
		JOIN questions q ON q.id = eq.question_id
		LEFT JOIN submission_answers a
			ON a.submission_id = $1 AND a.question_id = q.id
		WHERE eq.exam_id = $2
		ORDER BY eq.seq_no
	`, row.ID, row.ExamID)
	if err != nil {
		return nil, fmt.Errorf("query result items: %w", err)
	}
	defer rows.Close()

	items := make([]ResultItem, 0)
	for rows.Next() {
		var (
			item         ResultItem
			selectedJSON []byte
		)
		if err := rows.Scan(
			&item.QuestionID, &item.Text, &item.Type, &item.Points, &item.CorrectAnswer,
			&selectedJSON, &item.TextAnswer, &item.IsCorrect, &item.PointsAwarded, &item.Answered,
		); err != nil {
			return nil, fmt.Errorf("scan result item: %w", err)
		}
		if len(selectedJSON) > 0 {
			if err := json.Unmarshal(selectedJSON, &item.SelectedOptions); err != nil {
				return nil, fmt.Errorf("decode selected options: %w", err)
			}
		}
		if item.Type == QuestionTypeMCQ {
			item.CorrectAnswer = ""
			correct, err := loadCorrectOptionIndices(ctx, tx, item.QuestionID)
			if err != nil {
				return nil, err
			}
			item.CorrectOptions = correct
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result items: %w", err)
	}
	return items, nil
}

type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func countExamQuestions(ctx context.Context, q queryable, examID int64) (int, error) {
	var total int
	if err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM exam_questions WHERE exam_id = $1
	`, examID).Scan(&total); err != nil {
		return 0, fmt.Errorf("count exam questions: %w", err)
	}
	return total, nil
}

func sumPossiblePoints(ctx context.Context, q queryable, examID int64) (int, error) {
	var possible int
	if err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(q.points), 0)
		FROM exam_questions eq
		JOIN questions q ON q.id = eq.question_id
		WHERE eq.exam_id = $1
	`, examID).Scan(&possible); err != nil {
		return 0, fmt.Errorf("sum possible points: %w", err)
	}
	return possible, nil
}

func loadGradedQuestion(ctx context.Context, q queryable, questionID int64) (*GradedQuestion, error) {
	question := &GradedQuestion{}
	err := q.QueryRowContext(ctx, `
		SELECT id, question_type, points, correct_answer, tolerance
		FROM questions
		WHERE id = $1
	`, questionID).Scan(
		&question.ID, &question.Type, &question.Points, &question.CorrectAnswer, &question.Tolerance,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("load question: %w", err)
	}

	if question.Type == QuestionTypeMCQ {
		rows, err := q.QueryContext(ctx, `
			SELECT option_text, is_correct
			FROM question_options
			WHERE question_id = $1
			ORDER BY seq_no
		`, questionID)
		if err != nil {
			return nil, fmt.Errorf("load question options: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var opt GradedOption
			if err := rows.Scan(&opt.Text, &opt.IsCorrect); err != nil {
				return nil, fmt.Errorf("scan question option: %w", err)
			}
			question.Options = append(question.Options, opt)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate question options: %w", err)
		}
	}

	return question, nil
}

func loadCorrectOptionIndices(ctx context.Context, q queryable, questionID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT is_correct
		FROM question_options
		WHERE question_id = $1
		ORDER BY seq_no
	`, questionID)
	if err != nil {
		return nil, fmt.Errorf("load correct options: %w", err)
	}
	defer rows.Close()

	var out []string
	idx := 0
	for rows.Next() {
		var isCorrect bool
		if err := rows.Scan(&isCorrect); err != nil {
			return nil, fmt.Errorf("scan correct option: %w", err)
		}
		if isCorrect {
			out = append(out, fmt.Sprintf("%d", idx))
		}
		idx++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate correct options: %w", err)
	}
	return out, nil
}

func loadSavedAnswer(ctx context.Context, q queryable, submissionID, questionID int64) (*SavedAnswer, error) {
	var (
		selectedJSON []byte
		text         string
	)
	err := q.QueryRowContext(ctx, `
		SELECT selected_options, text_answer
		FROM submission_answers
		WHERE submission_id = $1 AND question_id = $2
	`, submissionID, questionID).Scan(&selectedJSON, &text)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load saved answer: %w", err)
	}

	saved := &SavedAnswer{TextAnswer: text}
	if len(selectedJSON) > 0 {
		if err := json.Unmarshal(selectedJSON, &saved.SelectedOptions); err != nil {
			return nil, fmt.Errorf("decode saved options: %w", err)
		}
	}
	return saved, nil
}

// remainingSeconds derives time left from the exam duration and the
// submission start; it is never persisted. Terminal submissions report zero.
func remainingSeconds(row *submissionRow, now time.Time) int64 {
	if row.Status != StatusInProgress {
		return 0
	}
	elapsed := int64(now.Sub(row.StartedAt) / time.Second)
	return int64(row.DurationMinutes)*60 - elapsed
}

func clampSeconds(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
