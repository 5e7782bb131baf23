package service

import (
	"fmt"
	"time"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/repository"
	"exam_engine_backend/internal/util"
	"exam_engine_backend/pkg/logger"

	"go.uber.org/zap"
)

// AssessmentService 教师侧的测评编排：建题、配通过线与时长、发布。
// 发布后作者仍可修改，但进行中的会话持有开始时的快照，不受影响。
type AssessmentService struct {
	AssessmentRepo *repository.AssessmentRepository
}

func NewAssessmentService(repo *repository.AssessmentRepository) *AssessmentService {
	return &AssessmentService{AssessmentRepo: repo}
}

func (s *AssessmentService) CreateAssessment(creatorID uint, a *model.Assessment) error {
	if a.Title == "" {
		return fmt.Errorf("title is required")
	}
	if a.PassingScore < 0 || a.PassingScore > 100 {
		return fmt.Errorf("passing score must be within 0-100, got %d", a.PassingScore)
	}
	if a.DurationMinutes < 0 {
		return fmt.Errorf("duration must not be negative, got %d", a.DurationMinutes)
	}
	a.CreatorID = creatorID
	a.IsPublished = false
	return s.AssessmentRepo.CreateAssessment(a)
}

func (s *AssessmentService) UpdateAssessment(id uint, updates *model.Assessment) (*model.Assessment, error) {
	a, err := s.AssessmentRepo.FindAssessmentByID(id)
	if err != nil {
		return nil, err
	}
	if updates.Title != "" {
		a.Title = updates.Title
	}
	a.Description = updates.Description
	if updates.PassingScore < 0 || updates.PassingScore > 100 {
		return nil, fmt.Errorf("passing score must be within 0-100, got %d", updates.PassingScore)
	}
	a.PassingScore = updates.PassingScore
	if updates.DurationMinutes < 0 {
		return nil, fmt.Errorf("duration must not be negative, got %d", updates.DurationMinutes)
	}
	a.DurationMinutes = updates.DurationMinutes
	a.CourseID = updates.CourseID

	if err := s.AssessmentRepo.UpdateAssessment(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AssessmentService) DeleteAssessment(id uint) error {
	return s.AssessmentRepo.DeleteAssessment(id)
}

// GetAssessment 作者视图，含正确答案，仅教师/管理员可达
func (s *AssessmentService) GetAssessment(id uint) (*model.Assessment, error) {
	return s.AssessmentRepo.FindWithQuestions(id)
}

func (s *AssessmentService) ListAssessments(courseID uint, page, limit int) ([]model.Assessment, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.AssessmentRepo.ListAssessments(courseID, page, limit)
}

// AssessmentForCourse 课程入口查询；没配测评返回 (nil, nil)，调用方据此隐藏入口
func (s *AssessmentService) AssessmentForCourse(courseID uint) (*model.Assessment, error) {
	return s.AssessmentRepo.FindPublishedByCourse(courseID)
}

// Publish 发布前整卷校验：至少一题，且每道题结构完整
func (s *AssessmentService) Publish(id uint) (*model.Assessment, error) {
	a, err := s.AssessmentRepo.FindWithQuestions(id)
	if err != nil {
		return nil, err
	}
	if len(a.Questions) == 0 {
		return nil, fmt.Errorf("cannot publish an assessment with no questions")
	}
	for i := range a.Questions {
		if err := a.Questions[i].Validate(); err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
	}

	now := time.Now()
	a.IsPublished = true
	a.PublishedAt = &now
	if err := s.AssessmentRepo.UpdateAssessment(a); err != nil {
		return nil, err
	}

	logger.Log.Info("assessment published",
		zap.Uint("assessmentId", a.ID),
		zap.Int("questions", len(a.Questions)))
	return a, nil
}

func (s *AssessmentService) AddQuestion(assessmentID uint, q *model.Question) error {
	if _, err := s.AssessmentRepo.FindAssessmentByID(assessmentID); err != nil {
		return err
	}
	if err := q.Validate(); err != nil {
		return err
	}
	q.AssessmentID = assessmentID
	return s.AssessmentRepo.CreateQuestion(q)
}

func (s *AssessmentService) UpdateQuestion(assessmentID, questionID uint, q *model.Question) (*model.Question, error) {
	existing, err := s.AssessmentRepo.FindQuestionByID(questionID)
	if err != nil {
		return nil, err
	}
	if existing.AssessmentID != assessmentID {
		return nil, util.ErrQuestionIndexInvalid
	}

	existing.Kind = q.Kind
	existing.Prompt = q.Prompt
	existing.Points = q.Points
	existing.Order = q.Order
	existing.Explanation = q.Explanation
	existing.Options = q.Options
	existing.CorrectOption = q.CorrectOption
	existing.StarterCode = q.StarterCode
	existing.TestCases = q.TestCases

	if err := existing.Validate(); err != nil {
		return nil, err
	}
	if err := s.AssessmentRepo.UpdateQuestion(existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *AssessmentService) DeleteQuestion(assessmentID, questionID uint) error {
	existing, err := s.AssessmentRepo.FindQuestionByID(questionID)
	if err != nil {
		return err
	}
	if existing.AssessmentID != assessmentID {
		return util.ErrQuestionIndexInvalid
	}
	return s.AssessmentRepo.DeleteQuestion(questionID)
}
