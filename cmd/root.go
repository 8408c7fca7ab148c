// Package cmd 定义 bmad-mcp-server 的命令行入口。
package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bmad-mcp-server",
		Short:         "BMAD 六阶段内容工作流 MCP 服务器",
		Long:          "bmad-mcp-server 通过 MCP stdio 暴露一个六阶段（po/architect/sm/dev/reviewer/qa）内容生成工作流：双引擎候选合并、质量门控、澄清问答、人工确认与批准，会话可跨进程恢复。",
		SilenceUsage:  true,
		SilenceErrors: false,
		// 不带子命令时直接启动服务（MCP 客户端通常只给可执行文件路径）
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newVersionCmd(),
	)

	return rootCmd
}
