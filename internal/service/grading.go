package service

import (
	"time"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// Score counts the answers that equal the key at the same index. Unanswered
// questions never match, so they count as wrong.
func Score(answers []model.Option, key model.AnswerKey) int {
	correct := 0
	for i, want := range key {
		if i < len(answers) && answers[i].Answered() && answers[i] == want {
			correct++
		}
	}
	return correct
}

// BuildReport grades an attempt and produces the question-wise report.
// The answers are copied so the report stays immutable.
func BuildReport(
	candidate model.Candidate,
	answers []model.Option,
	key model.AnswerKey,
	startedAt, submittedAt time.Time,
	reason model.SubmitReason,
) model.Report {
	items := make([]model.ReportItem, len(key))
	for i, want := range key {
		var got model.Option
		if i < len(answers) {
			got = answers[i]
		}
		items[i] = model.ReportItem{
			Question:      i + 1,
			YourAnswer:    got,
			CorrectAnswer: want,
			Correct:       got.Answered() && got == want,
		}
	}

	return model.Report{
		Candidate:   candidate,
		Score:       Score(answers, key),
		Total:       len(key),
		StartedAt:   startedAt,
		SubmittedAt: submittedAt,
		Reason:      reason,
		Items:       items,
	}
}
