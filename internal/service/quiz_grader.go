package service

import (
	"encoding/json"
	"math"

	"quiz_engine/internal/model"
	"quiz_engine/internal/util"
)

// GradeResult 一组答案的评分结果
type GradeResult struct {
	Answers    []model.GradedAnswer
	Score      float64
	Percentage float64
	TotalMarks int
}

// QuestionMarks 题目分值：设置了正分值时直接使用，否则按总分平均分配并保留两位小数。
// 平均分配的分值之和可能与总分不完全相等
func QuestionMarks(quiz *model.Quiz, i int) float64 {
	if m := quiz.Questions[i].Marks; m > 0 {
		return m
	}
	return util.Round2(float64(quiz.TotalMarks) / float64(len(quiz.Questions)))
}

// GradeQuiz 对原始答案评分，无副作用，相同输入得到相同结果
func GradeQuiz(quiz *model.Quiz, raw []interface{}) (*GradeResult, error) {
	if len(raw) != len(quiz.Questions) {
		return nil, util.NewValidationError("expected %d answers, got %d", len(quiz.Questions), len(raw))
	}

	answers := make([]model.GradedAnswer, len(quiz.Questions))
	rawScore := 0.0
	for i, q := range quiz.Questions {
		selected, ok := optionIndex(raw[i], len(q.Options))
		if !ok {
			return nil, util.NewInvalidAnswerError(i, "answer for question %d must be an option index between 0 and %d", i+1, len(q.Options)-1)
		}

		marks := QuestionMarks(quiz, i)
		correct := selected == q.CorrectOptionIndex
		awarded := 0.0
		if correct {
			awarded = marks
		}
		rawScore += awarded

		options := make([]string, len(q.Options))
		copy(options, q.Options)
		answers[i] = model.GradedAnswer{
			QuestionIndex:  i,
			SelectedOption: selected,
			CorrectAnswer:  q.CorrectOptionIndex,
			IsCorrect:      correct,
			MarksAwarded:   awarded,
			QuestionText:   q.Text,
			Options:        options,
			QuestionMarks:  marks,
		}
	}

	// 隐式分值四舍五入后的累加可能超过总分，截断到总分
	score := util.RoundDrift(math.Min(rawScore, float64(quiz.TotalMarks)))
	if score < 0 {
		score = 0
	}

	return &GradeResult{
		Answers:    answers,
		Score:      score,
		Percentage: util.Round1(100 * score / float64(quiz.TotalMarks)),
		TotalMarks: quiz.TotalMarks,
	}, nil
}

func optionIndex(v interface{}, n int) (int, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if f != math.Trunc(f) || f < 0 || f >= float64(n) {
		return 0, false
	}
	return int(f), true
}

// PerformanceLabel 根据得分率返回评价
func PerformanceLabel(percentage float64) string {
	switch {
	case percentage >= 90:
		return "Excellent!"
	case percentage >= 80:
		return "Very Good!"
	case percentage >= 70:
		return "Good!"
	case percentage >= 60:
		return "Satisfactory"
	case percentage >= 50:
		return "Needs Improvement"
	default:
		return "Keep Practicing"
	}
}
