package tools

import (
	"context"

	"github.com/cexll/bmad-mcp-server/internal/prompts"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ========== 角色提示词资源 ==========
// 六个阶段的角色提示词以 bmad://prompts/<stage> 资源暴露，
// 客户端可以整组预读；start / next-stage 载荷里仍会内联当前阶段的提示词。

var stageResourceNames = map[Stage]string{
	StagePO:        "产品负责人角色提示词",
	StageArchitect: "架构师角色提示词",
	StageSM:        "Scrum Master 角色提示词",
	StageDev:       "开发工程师角色提示词",
	StageReviewer:  "评审人角色提示词",
	StageQA:        "测试工程师角色提示词",
}

// RegisterPromptResources 把每个阶段的提示词注册为只读资源
func RegisterPromptResources(s *server.MCPServer) {
	for _, stage := range pipeline {
		uri := "bmad://prompts/" + string(stage)
		body := prompts.ForStage(string(stage))

		s.AddResource(mcp.NewResource(
			uri,
			stageResourceNames[stage],
			mcp.WithResourceDescription("阶段 "+string(stage)+" 的生成引擎角色提示词"),
			mcp.WithMIMEType("text/markdown"),
		), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     body,
				},
			}, nil
		})
	}
}
