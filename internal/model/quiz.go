package model

import (
	"time"

	"gorm.io/datatypes"
)

// RetakePolicy 重做策略，仅在 MaxAttempts > 1 时生效
type RetakePolicy struct {
	AllowRetake         bool    `json:"allowRetake"`
	MinScoreToPass      float64 `json:"minScoreToPass"`
	DaysBetweenAttempts float64 `json:"daysBetweenAttempts"`
}

// DefaultRetakePolicy 单次作答测验强制使用的默认策略
func DefaultRetakePolicy() RetakePolicy {
	return RetakePolicy{AllowRetake: false, MinScoreToPass: 60, DaysBetweenAttempts: 1}
}

type QuizQuestion struct {
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
	Marks              float64  `json:"marks,omitempty"`
}

// swagger:model Quiz
type Quiz struct {
	UUIDBase
	CourseID        uint                              `gorm:"index;not null" json:"courseId"`
	SchoolID        uint                              `gorm:"index;not null" json:"schoolId"`
	CreatedBy       uint                              `gorm:"index" json:"createdBy"`
	Title           string                            `gorm:"size:255;not null" json:"title"`
	Description     string                            `gorm:"type:text" json:"description"`
	Questions       datatypes.JSONSlice[QuizQuestion] `json:"questions"`
	TotalMarks      int                               `gorm:"not null" json:"totalMarks"`
	DurationMinutes *int                              `json:"durationMinutes,omitempty"`
	VisibleFrom     time.Time                         `gorm:"not null" json:"visibleFrom"`
	VisibleUntil    *time.Time                        `json:"visibleUntil,omitempty"`
	MaxAttempts     int                               `gorm:"not null" json:"maxAttempts"`
	RetakePolicy    RetakePolicy                      `gorm:"embedded;embeddedPrefix:retake_" json:"retakePolicy"`
	IsPublished     bool                              `gorm:"index" json:"isPublished"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// IsExpired 可见窗口是否已关闭
func (q *Quiz) IsExpired(now time.Time) bool {
	return q.VisibleUntil != nil && now.After(*q.VisibleUntil)
}
