package model

type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)

// User 目录服务中的用户，测验引擎只读不写
// swagger:model User
type User struct {
	BaseModel
	Name     string   `gorm:"size:100;not null" json:"name"`
	Email    string   `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Role     UserRole `gorm:"size:20;default:'student'" json:"role"`
	SchoolID uint     `gorm:"index" json:"schoolId"`
}

func (User) TableName() string {
	return "users"
}

// Caller 每次调用携带的已认证身份，课程关系按需通过目录服务查询
type Caller struct {
	UserID   uint
	Role     UserRole
	SchoolID uint
}

func (c Caller) IsAdmin() bool   { return c.Role == Admin }
func (c Caller) IsTeacher() bool { return c.Role == Teacher }
func (c Caller) IsStudent() bool { return c.Role == Student }

// SameSchool 判断调用者是否属于该学校
func (c Caller) SameSchool(schoolID uint) bool {
	return c.SchoolID == schoolID
}
