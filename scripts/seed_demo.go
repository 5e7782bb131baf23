// 初始化演示数据脚本
//
// 创建一名教师、一名学生和一份已发布的示例测评（选择题 + 编程题 + 简答题），
// 用于本地联调和前端开发。
//
// 用法: go run scripts/seed_demo.go

package main

import (
	"encoding/json"
	"log"

	"exam_engine_backend/internal/config"
	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/repository"
	"exam_engine_backend/internal/service"
	"exam_engine_backend/pkg/database"
	"exam_engine_backend/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	logger.InitLogger(cfg)

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	assessRepo := repository.NewAssessmentRepository(db)
	auth := service.NewAuthService(userRepo, cfg)
	assessments := service.NewAssessmentService(assessRepo)

	teacher := &model.User{Name: "演示教师", Email: "teacher@example.com", Password: "teacher123", Role: model.Instructor}
	if err := auth.Register(teacher); err != nil {
		log.Printf("教师账号已存在: %v", err)
		teacher, _ = userRepo.FindByEmail(teacher.Email)
	}
	learner := &model.User{Name: "演示学生", Email: "learner@example.com", Password: "learner123", Role: model.Learner}
	if err := auth.Register(learner); err != nil {
		log.Printf("学生账号已存在: %v", err)
	}

	a := &model.Assessment{
		CourseID:        1,
		Title:           "Go 基础测评",
		Description:     "覆盖变量、切片与并发基础",
		PassingScore:    60,
		DurationMinutes: 30,
	}
	if err := assessments.CreateAssessment(teacher.ID, a); err != nil {
		log.Fatalf("创建测评失败: %v", err)
	}

	opts, _ := json.Marshal([]string{"make([]int, 0)", "new([]int)", "int[]{}", "slice(int)"})
	correct := 0
	if err := assessments.AddQuestion(a.ID, &model.Question{
		Kind:          model.MultipleChoice,
		Prompt:        "下列哪种写法创建一个空的 int 切片？",
		Points:        2,
		Order:         1,
		Options:       opts,
		CorrectOption: &correct,
	}); err != nil {
		log.Fatalf("创建选择题失败: %v", err)
	}

	cases, _ := json.Marshal([]model.TestCase{
		{Input: "1 2", Expected: "3"},
		{Input: "10 -4", Expected: "6", Hidden: true},
	})
	if err := assessments.AddQuestion(a.ID, &model.Question{
		Kind:        model.Coding,
		Prompt:      "读取两个整数，输出它们的和。",
		Points:      10,
		Order:       2,
		StarterCode: "// 在这里实现\n",
		TestCases:   cases,
	}); err != nil {
		log.Fatalf("创建编程题失败: %v", err)
	}

	if err := assessments.AddQuestion(a.ID, &model.Question{
		Kind:   model.FreeText,
		Prompt: "简述 goroutine 与操作系统线程的区别。",
		Points: 5,
		Order:  3,
	}); err != nil {
		log.Fatalf("创建简答题失败: %v", err)
	}

	if _, err := assessments.Publish(a.ID); err != nil {
		log.Fatalf("发布测评失败: %v", err)
	}

	log.Printf("演示数据已就绪: assessmentId=%d", a.ID)
}
