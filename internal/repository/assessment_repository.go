package repository

import (
	"errors"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/util"

	"gorm.io/gorm"
)

type AssessmentRepository struct {
	DB *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: db}
}

func (r *AssessmentRepository) CreateAssessment(a *model.Assessment) error {
	return r.DB.Create(a).Error
}

func (r *AssessmentRepository) UpdateAssessment(a *model.Assessment) error {
	return r.DB.Save(a).Error
}

func (r *AssessmentRepository) DeleteAssessment(id uint) error {
	return r.DB.Delete(&model.Assessment{}, id).Error
}

func (r *AssessmentRepository) FindAssessmentByID(id uint) (*model.Assessment, error) {
	var a model.Assessment
	err := r.DB.First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAssessmentNotFound
	}
	return &a, err
}

// FindWithQuestions 题目按作者排列顺序加载（含正确答案，仅限作者/教师侧使用）
func (r *AssessmentRepository) FindWithQuestions(id uint) (*model.Assessment, error) {
	var a model.Assessment
	err := r.DB.Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("`order` asc, created_at asc")
	}).First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAssessmentNotFound
	}
	return &a, err
}

// FindPublishedWithQuestions 学生开始作答时取快照；未发布的测评不可见
func (r *AssessmentRepository) FindPublishedWithQuestions(id uint) (*model.Assessment, error) {
	a, err := r.FindWithQuestions(id)
	if err != nil {
		return nil, err
	}
	if !a.IsPublished {
		return nil, util.ErrAssessmentNotOpen
	}
	return a, nil
}

// FindPublishedByCourse 课程的测评；课程没配测评是合法状态，返回 (nil, nil)
func (r *AssessmentRepository) FindPublishedByCourse(courseID uint) (*model.Assessment, error) {
	var a model.Assessment
	err := r.DB.Where("course_id = ? AND is_published = ?", courseID, true).
		Order("created_at desc").First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AssessmentRepository) ListAssessments(courseID uint, page, limit int) ([]model.Assessment, int64, error) {
	var as []model.Assessment
	var total int64
	query := r.DB.Model(&model.Assessment{})
	if courseID > 0 {
		query = query.Where("course_id = ?", courseID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&as).Error
	return as, total, err
}

// Question related methods

func (r *AssessmentRepository) CreateQuestion(q *model.Question) error {
	return r.DB.Create(q).Error
}

func (r *AssessmentRepository) FindQuestionByID(id uint) (*model.Question, error) {
	var q model.Question
	err := r.DB.First(&q, id).Error
	return &q, err
}

func (r *AssessmentRepository) UpdateQuestion(q *model.Question) error {
	return r.DB.Save(q).Error
}

func (r *AssessmentRepository) DeleteQuestion(id uint) error {
	return r.DB.Delete(&model.Question{}, id).Error
}
