package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GradedAnswer 评分快照，题干、选项和答案在评分时复制，之后修改测验不影响已有记录
type GradedAnswer struct {
	QuestionIndex  int      `json:"questionIndex"`
	SelectedOption int      `json:"selectedOption"`
	CorrectAnswer  int      `json:"correctAnswer"`
	IsCorrect      bool     `json:"isCorrect"`
	MarksAwarded   float64  `json:"marksAwarded"`
	QuestionText   string   `json:"questionText"`
	Options        []string `json:"options"`
	QuestionMarks  float64  `json:"questionMarks"`
}

// QuizSubmission 一次作答，只追加不修改。
// (quiz_id, student_id, attempt_number) 唯一索引保证作答序号不重复
// swagger:model QuizSubmission
type QuizSubmission struct {
	ID            string                            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	QuizID        string                            `gorm:"type:varchar(36);not null;uniqueIndex:idx_quiz_student_attempt,priority:1" json:"quizId"`
	StudentID     uint                              `gorm:"not null;uniqueIndex:idx_quiz_student_attempt,priority:2;index" json:"studentId"`
	AttemptNumber int                               `gorm:"not null;uniqueIndex:idx_quiz_student_attempt,priority:3" json:"attemptNumber"`
	CourseID      uint                              `gorm:"index;not null" json:"courseId"`
	Answers       datatypes.JSONSlice[GradedAnswer] `json:"answers"`
	Score         float64                           `json:"score"`
	Percentage    float64                           `json:"percentage"`
	TotalMarks    int                               `json:"totalMarks"`
	SubmittedAt   time.Time                         `gorm:"index;not null" json:"submittedAt"`
	CreatedAt     time.Time                         `json:"createdAt"`
}

func (QuizSubmission) TableName() string {
	return "quiz_submissions"
}

func (s *QuizSubmission) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = GenerateUUID()
	}
	return
}

// CorrectCount 答对题数
func (s *QuizSubmission) CorrectCount() int {
	n := 0
	for _, a := range s.Answers {
		if a.IsCorrect {
			n++
		}
	}
	return n
}
