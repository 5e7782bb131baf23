// @title 考试引擎 API
// @version 1.0
// @description 课程测评的执行与评分服务：题目编排、限时作答会话、代码沙箱与人工评分。

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"log"

	"exam_engine_backend/internal/app"
	"exam_engine_backend/internal/config"
	"exam_engine_backend/pkg/configwatcher"
	"exam_engine_backend/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	go configwatcher.WatchConfig("configs/config.yaml", application.ApplyConfig)

	application.Run()
}
