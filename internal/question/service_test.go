package question

import (
	"errors"
	"testing"
)

func TestValidateQuestionInputMCQ(t *testing.T) {
	tests := []struct {
		name    string
		in      QuestionInput
		wantErr bool
	}{
		{
			name: "valid mcq",
			in: QuestionInput{
				Text: "Pick one",
				Type: "mcq",
				Options: []OptionInput{
					{Text: "A"},
					{Text: "B", IsCorrect: true},
				},
			},
		},
		{
			name: "too few options",
			in: QuestionInput{
				Text:    "Pick one",
				Type:    "mcq",
				Options: []OptionInput{{Text: "A", IsCorrect: true}},
			},
			wantErr: true,
		},
		{
			name: "no correct option",
			in: QuestionInput{
				Text:    "Pick one",
				Type:    "mcq",
				Options: []OptionInput{{Text: "A"}, {Text: "B"}},
			},
			wantErr: true,
		},
		{
			name: "blank option text",
			in: QuestionInput{
				Text:    "Pick one",
				Type:    "mcq",
				Options: []OptionInput{{Text: "A", IsCorrect: true}, {Text: "   "}},
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateQuestionInput(&tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateQuestionInputDirect(t *testing.T) {
	in := QuestionInput{Text: "Capital of France?", Type: "direct", CorrectAnswer: "Paris"}
	if err := validateQuestionInput(&in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Tolerance == nil || *in.Tolerance != 10 {
		t.Fatalf("expected default tolerance 10, got %v", in.Tolerance)
	}
	if in.Points != 1 {
		t.Fatalf("expected points to default to 1, got %d", in.Points)
	}
	if len(in.Options) != 0 {
		t.Fatalf("expected options to be dropped for direct questions")
	}

	missing := QuestionInput{Text: "Capital of France?", Type: "direct"}
	if err := validateQuestionInput(&missing); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing correct answer, got %v", err)
	}
}

func TestValidateQuestionInputTolerance(t *testing.T) {
	for _, tolerance := range []int{-1, 101} {
		tol := tolerance
		in := QuestionInput{Text: "Q", Type: "direct", CorrectAnswer: "a", Tolerance: &tol}
		if err := validateQuestionInput(&in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for tolerance %d, got %v", tolerance, err)
		}
	}

	zero := 0
	in := QuestionInput{Text: "Q", Type: "direct", CorrectAnswer: "a", Tolerance: &zero}
	if err := validateQuestionInput(&in); err != nil {
		t.Fatalf("tolerance 0 should be allowed, got %v", err)
	}
}

func TestValidateQuestionInputMedia(t *testing.T) {
	in := QuestionInput{Text: "Q", Type: "direct", CorrectAnswer: "a", MediaType: "gif"}
	if err := validateQuestionInput(&in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown media type, got %v", err)
	}

	in = QuestionInput{Text: "Q", Type: "direct", CorrectAnswer: "a", MediaType: "image"}
	if err := validateQuestionInput(&in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for media_type without media_url, got %v", err)
	}

	in = QuestionInput{Text: "Q", Type: "direct", CorrectAnswer: "a", MediaType: "image", MediaURL: "https://cdn.example/q.png"}
	if err := validateQuestionInput(&in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateQuestionInputUnknownType(t *testing.T) {
	in := QuestionInput{Text: "Q", Type: "essay"}
	if err := validateQuestionInput(&in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown type, got %v", err)
	}
}
