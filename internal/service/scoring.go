package service

import (
	"exam_engine_backend/internal/model"
)

// 评分引擎：纯函数，无随机、无外部状态。同样的题目与作答必然得到同样的结果。
//
// 选择题在提交时自动判分；编程题与简答题留待教师人工评分
// （Correct/Score 保持为 nil），原始作答内容原样保留。

// GradeAnswers 对一组与题目同序的作答判分，返回自动判分后的总分与作答副本。
// 传入的 answers 不会被修改。缺失的作答按空白处理，不报错。
func GradeAnswers(questions []model.Question, answers []model.Answer) (int, []model.Answer) {
	graded := make([]model.Answer, len(questions))
	totalScore := 0

	for i, q := range questions {
		var a model.Answer
		if i < len(answers) {
			a = answers[i]
		}
		a.QuestionID = q.ID
		a.Kind = q.Kind

		switch q.Kind {
		case model.MultipleChoice:
			correct := a.SelectedOption != nil &&
				q.CorrectOption != nil &&
				*a.SelectedOption == *q.CorrectOption
			score := 0
			if correct {
				score = q.Points
			}
			a.Correct = &correct
			a.Score = &score
			totalScore += score
		case model.Coding, model.FreeText:
			// 无法自动判定，等待人工评分
			a.Correct = nil
			a.Score = nil
		}

		graded[i] = a
	}

	return totalScore, graded
}

// MaxPossibleScore 满分 = 题目分值之和
func MaxPossibleScore(questions []model.Question) int {
	total := 0
	for _, q := range questions {
		total += q.Points
	}
	return total
}

// Percentage 百分制得分；零题测评计 0
func Percentage(total, max int) float64 {
	if max <= 0 {
		return 0
	}
	return float64(total) / float64(max) * 100
}

// Passed 通过线为闭区间：恰好等于 passingScore 视为通过
func Passed(total, max, passingScore int) bool {
	return Percentage(total, max) >= float64(passingScore)
}

// RecomputeTotal 人工评分后重新汇总：所有非空 Score 之和（含自动判分部分）
func RecomputeTotal(answers []model.Answer) int {
	total := 0
	for _, a := range answers {
		if a.Score != nil {
			total += *a.Score
		}
	}
	return total
}

// FullyGraded 返回是否全部作答都已有分数；未全部完成时给出第一道未评分题的下标
func FullyGraded(answers []model.Answer) (bool, int) {
	for i, a := range answers {
		if a.Score == nil {
			return false, i
		}
	}
	return true, -1
}
