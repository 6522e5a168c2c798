package attempt

// AnswerKey is one question of a quiz with the correctness of each of its choices.
type AnswerKey struct {
	QuestionID int64
	Choices    map[int64]bool
}

// GradedAnswer is an answered question with its correctness frozen at grading time.
type GradedAnswer struct {
	QuestionID int64 `json:"question_id"`
	ChoiceID   int64 `json:"choice_id"`
	IsCorrect  bool  `json:"is_correct"`
}

type Grade struct {
	Score   int
	Total   int
	Answers []GradedAnswer
}

// GradeSubmission scores submission (question id -> choice id) against keys.
// A missing entry, or a choice that belongs to another question, leaves the
// question unanswered: it produces no answer and does not count as wrong.
func GradeSubmission(keys []AnswerKey, submission map[int64]int64) Grade {
	g := Grade{Total: len(keys), Answers: make([]GradedAnswer, 0, len(keys))}
	for _, k := range keys {
		choiceID, ok := submission[k.QuestionID]
		if !ok {
			continue
		}
		isCorrect, belongs := k.Choices[choiceID]
		if !belongs {
			continue
		}
		if isCorrect {
			g.Score++
		}
		g.Answers = append(g.Answers, GradedAnswer{
			QuestionID: k.QuestionID,
			ChoiceID:   choiceID,
			IsCorrect:  isCorrect,
		})
	}
	return g
}

// Percentage returns score/total scaled to 0..100, or 0 for an empty total.
func Percentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(score) * 100 / float64(total)
}
