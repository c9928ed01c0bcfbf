package exam

import (
	"sort"
	"strconv"
	"strings"
)

const (
	QuestionTypeMCQ    = "mcq"
	QuestionTypeDirect = "direct"

	defaultTolerance = 10
)

type GradedOption struct {
	Text      string
	IsCorrect bool
}

// GradedQuestion carries everything the grader needs to score one answer.
type GradedQuestion struct {
	ID            int64
	Type          string
	Points        int
	Options       []GradedOption
	CorrectAnswer string
	Tolerance     int
}

type AnswerInput struct {
	SelectedOptions []string
	TextAnswer      string
	TimeTakenSecs   int
}

// Grade decides correctness and awarded points for one submitted answer.
// Multiple choice requires exact set equality on option indices; free text
// passes when the case-folded similarity reaches 100 - tolerance. Points are
// all or nothing.
func Grade(q GradedQuestion, in AnswerInput) (isCorrect bool, pointsAwarded int) {
	switch strings.TrimSpace(strings.ToLower(q.Type)) {
	case QuestionTypeMCQ:
		isCorrect = gradeMultipleChoice(q.Options, in.SelectedOptions)
	case QuestionTypeDirect:
		isCorrect = gradeFreeText(q.CorrectAnswer, in.TextAnswer, q.Tolerance)
	default:
		return false, 0
	}

	if isCorrect {
		return true, q.Points
	}
	return false, 0
}

func gradeMultipleChoice(options []GradedOption, selected []string) bool {
	correct := make([]string, 0, len(options))
	for i, opt := range options {
		if opt.IsCorrect {
			correct = append(correct, strconv.Itoa(i))
		}
	}
	return equalSet(normalizeStringSet(selected), correct)
}

func gradeFreeText(correctAnswer, textAnswer string, tolerance int) bool {
	answer := strings.TrimSpace(textAnswer)
	canonical := strings.TrimSpace(correctAnswer)
	if answer == "" || canonical == "" {
		return false
	}

	sim := Similarity(strings.ToLower(answer), strings.ToLower(canonical))
	return sim >= float64(100-clampTolerance(tolerance))
}

func clampTolerance(tolerance int) int {
	if tolerance < 0 {
		return defaultTolerance
	}
	if tolerance > 100 {
		return 100
	}
	return tolerance
}

func normalizeStringSet(in []string) []string {
	set := map[string]struct{}{}
	for _, v := range in {
		s := strings.TrimSpace(v)
		if s == "" {
			continue
		}
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func equalSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	aa := append([]string(nil), a...)
	bb := append([]string(nil), b...)
	sort.Strings(aa)
	sort.Strings(bb)
	for i := range aa {
		if aa[i] != bb[i] {
			return false
		}
	}
	return true
}
