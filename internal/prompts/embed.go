package prompts

import _ "embed"

//go:embed po.md
var poPrompt string

//go:embed architect.md
var architectPrompt string

//go:embed sm.md
var smPrompt string

//go:embed dev.md
var devPrompt string

//go:embed reviewer.md
var reviewerPrompt string

//go:embed qa.md
var qaPrompt string

var byStage = map[string]string{
	"po":        poPrompt,
	"architect": architectPrompt,
	"sm":        smPrompt,
	"dev":       devPrompt,
	"reviewer":  reviewerPrompt,
	"qa":        qaPrompt,
}

// ForStage 返回阶段角色提示词，未知阶段返回空串
func ForStage(stage string) string {
	return byStage[stage]
}
