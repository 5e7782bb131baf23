package model

import "time"

// Assessment 一门课程配置的测评：有序题目、通过线（百分比）、可选时长限制
// swagger:model Assessment
type Assessment struct {
	BaseModel
	CourseID        uint       `gorm:"index;type:bigint unsigned" json:"courseId"`
	CreatorID       uint       `gorm:"index;type:bigint unsigned" json:"creatorId"`
	Title           string     `gorm:"size:255;not null" json:"title"`
	Description     string     `gorm:"type:text" json:"description"`
	PassingScore    int        `gorm:"default:60" json:"passingScore"`   // 0-100
	DurationMinutes int        `gorm:"default:0" json:"durationMinutes"` // 0 = 不限时
	IsPublished     bool       `gorm:"default:false" json:"isPublished"`
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`

	Questions []Question `gorm:"foreignKey:AssessmentID" json:"questions,omitempty"`
}

func (Assessment) TableName() string {
	return "assessments"
}
