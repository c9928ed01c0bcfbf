package report

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrExamNotFound  = errors.New("exam not found")
	ErrExamForbidden = errors.New("exam forbidden")
)

type Service struct {
	db *sql.DB
}

type ExamReportRow struct {
	SubmissionID    int64      `json:"submission_id"`
	StudentID       int64      `json:"student_id"`
	StudentName     string     `json:"student_name"`
	Username        string     `json:"username"`
	Status          string     `json:"status"`
	TotalScore      int        `json:"total_score"`
	PercentageScore float64    `json:"percentage_score"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

type ExamReportStats struct {
	Participants      int     `json:"participants"`
	Completed         int     `json:"completed"`
	TimedOut          int     `json:"timed_out"`
	InProgress        int     `json:"in_progress"`
	AveragePercentage float64 `json:"average_percentage"`
	HighestPercentage float64 `json:"highest_percentage"`
	LowestPercentage  float64 `json:"lowest_percentage"`
}

type ExamReport struct {
	ExamID    int64           `json:"exam_id"`
	ExamTitle string          `json:"exam_title"`
	Stats     ExamReportStats `json:"stats"`
	Rows      []ExamReportRow `json:"rows"`
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// BuildReport assembles the per-student results for one exam. Only the exam
// owner may read it. Aggregate stats cover terminal submissions only.
func (s *Service) BuildReport(ctx context.Context, examID, actorID int64) (*ExamReport, error) {
	if examID <= 0 {
		return nil, ErrInvalidInput
	}

	var (
		title     string
		createdBy int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT title, created_by FROM exams WHERE id = $1
	`, examID).Scan(&title, &createdBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("load exam: %w", err)
	}
	if actorID > 0 && createdBy != actorID {
		return nil, ErrExamForbidden
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sub.id, sub.student_id, u.full_name, u.username, sub.status,
		       sub.total_score, sub.percentage_score, sub.started_at, sub.ended_at
		FROM submissions sub
		JOIN users u ON u.id = sub.student_id
		WHERE sub.exam_id = $1
		ORDER BY sub.percentage_score DESC, sub.started_at
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query report rows: %w", err)
	}
	defer rows.Close()

	report := &ExamReport{
		ExamID:    examID,
		ExamTitle: title,
		Rows:      make([]ExamReportRow, 0),
	}

	var (
		sumPct   float64
		terminal int
	)
	for rows.Next() {
		var (
			row     ExamReportRow
			endedAt sql.NullTime
		)
		if err := rows.Scan(
			&row.SubmissionID, &row.StudentID, &row.StudentName, &row.Username, &row.Status,
			&row.TotalScore, &row.PercentageScore, &row.StartedAt, &endedAt,
		); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		if endedAt.Valid {
			row.EndedAt = &endedAt.Time
		}

		report.Stats.Participants++
		switch row.Status {
		case "completed":
			report.Stats.Completed++
		case "timed_out":
			report.Stats.TimedOut++
		default:
			report.Stats.InProgress++
		}
		if row.Status == "completed" || row.Status == "timed_out" {
			if terminal == 0 || row.PercentageScore > report.Stats.HighestPercentage {
				report.Stats.HighestPercentage = row.PercentageScore
			}
			if terminal == 0 || row.PercentageScore < report.Stats.LowestPercentage {
				report.Stats.LowestPercentage = row.PercentageScore
			}
			sumPct += row.PercentageScore
			terminal++
		}

		report.Rows = append(report.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report rows: %w", err)
	}

	if terminal > 0 {
		report.Stats.AveragePercentage = sumPct / float64(terminal)
	}
	return report, nil
}

// ExportXLSX renders a report into a spreadsheet, one row per submission.
func ExportXLSX(report *ExamReport) ([]byte, error) {
	if report == nil {
		return nil, ErrInvalidInput
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	headers := []string{"username", "full_name", "status", "total_score", "percentage", "started_at", "ended_at"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, row := range report.Rows {
		endedAt := ""
		if row.EndedAt != nil {
			endedAt = row.EndedAt.Format("2006-01-02 15:04:05")
		}
		values := []any{
			row.Username,
			row.StudentName,
			row.Status,
			row.TotalScore,
			row.PercentageScore,
			row.StartedAt.Format("2006-01-02 15:04:05"),
			endedAt,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "G", 22)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}
