package model

// swagger:model Course
type Course struct {
	BaseModel
	SchoolID uint   `gorm:"index;not null" json:"schoolId"`
	Title    string `gorm:"size:255;not null" json:"title"`
}

func (Course) TableName() string {
	return "courses"
}

type CourseTeacher struct {
	CourseID uint `gorm:"primaryKey" json:"courseId"`
	UserID   uint `gorm:"primaryKey" json:"userId"`
}

func (CourseTeacher) TableName() string {
	return "course_teachers"
}

type CourseStudent struct {
	CourseID uint `gorm:"primaryKey" json:"courseId"`
	UserID   uint `gorm:"primaryKey" json:"userId"`
}

func (CourseStudent) TableName() string {
	return "course_students"
}
