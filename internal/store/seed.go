package store

import "github.com/zhouzirui/survey-runner/backend/internal/model/survey"

// Seed 提供演示问卷, 在未导入试次集时使用
func Seed() []survey.Page {
	return []survey.Page{
		survey.Page(`{"type":"html","prompt":"Welcome to the experiment. Please answer a few short questions."}`),
		survey.Page(`{"type":"text","prompt":"What is your name?","name":"name","required":true}`),
		survey.Page(`{"type":"multi-choice","prompt":"Which of the following do you like the most?","name":"vegetablesLike","options":["Tomato","Cucumber","Eggplant","Corn","Peas"]}`),
		survey.Page(`{"type":"multi-select","prompt":"Which of the following do you like?","name":"fruitLike","options":["Apple","Banana","Orange","Grape","Strawberry"]}`),
		survey.Page(`{"type":"likert","prompt":"How much do you enjoy taking part in surveys?","name":"enjoy","likert_scale_min_label":"Not at all","likert_scale_max_label":"Very much"}`),
	}
}
