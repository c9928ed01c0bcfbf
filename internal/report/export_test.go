package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func TestExportXLSX(t *testing.T) {
	started := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	ended := started.Add(45 * time.Minute)

	report := &ExamReport{
		ExamID:    1,
		ExamTitle: "Midterm",
		Rows: []ExamReportRow{
			{
				SubmissionID:    10,
				StudentID:       2,
				StudentName:     "Ada Lovelace",
				Username:        "ada",
				Status:          "completed",
				TotalScore:      18,
				PercentageScore: 90,
				StartedAt:       started,
				EndedAt:         &ended,
			},
			{
				SubmissionID:    11,
				StudentID:       3,
				StudentName:     "Alan Turing",
				Username:        "alan",
				Status:          "timed_out",
				TotalScore:      12,
				PercentageScore: 60,
				StartedAt:       started,
			},
		},
	}

	data, err := ExportXLSX(report)
	if err != nil {
		t.Fatalf("ExportXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open exported workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "username" {
		t.Fatalf("expected username header, got %q", rows[0][0])
	}
	if rows[1][0] != "ada" || rows[1][2] != "completed" {
		t.Fatalf("unexpected first data row: %v", rows[1])
	}
	if len(rows[2]) > 6 && rows[2][6] != "" {
		t.Fatalf("expected empty ended_at for in-flight timeout row, got %q", rows[2][6])
	}
}

func TestExportXLSXNilReport(t *testing.T) {
	if _, err := ExportXLSX(nil); err == nil {
		t.Fatalf("expected error for nil report")
	}
}
