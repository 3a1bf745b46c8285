package judge

import (
	"context"
	"fmt"
)

// Submission is the payload recorded by the contest API.
type Submission struct {
	Code            string                `json:"code"`
	QuestionNumber  int                   `json:"question_number"`
	IsCorrectAnswer bool                  `json:"is_correct_answer"`
	Tests           map[string]CaseResult `json:"tests"`
}

// NewSubmission builds the payload for a finished hidden run.
func NewSubmission(questionNumber int, code string, v Verdict) Submission {
	return Submission{
		Code:            code,
		QuestionNumber:  questionNumber,
		IsCorrectAnswer: v.AllPassed,
		Tests:           v.Tests(),
	}
}

// Submitter delivers a submission to the contest API.
type Submitter interface {
	Submit(ctx context.Context, s Submission) error
}

// Submit runs the hidden cases and posts the result. The verdict is returned
// even when posting fails, so callers can still show it.
func (j *Judge) Submit(ctx context.Context, s Submitter, questionNumber int, source string, hidden []HiddenTestCase) (Verdict, error) {
	v, err := j.RunHidden(ctx, source, hidden)
	if err != nil {
		return v, err
	}
	sub := NewSubmission(questionNumber, source, v)
	if err := s.Submit(ctx, sub); err != nil {
		j.log.Error("submission failed", "question", questionNumber, "error", err)
		return v, fmt.Errorf("submit question %d: %w", questionNumber, err)
	}
	j.log.Info("submission recorded", "question", questionNumber, "correct", v.AllPassed)
	return v, nil
}
