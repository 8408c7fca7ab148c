package cmd

import (
	"github.com/cexll/bmad-mcp-server/internal/log"
	"github.com/cexll/bmad-mcp-server/internal/tools"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "以 stdio 传输启动 MCP 服务器",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	logger := log.New("server")

	s := server.NewMCPServer(
		"bmad-mcp-server",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithRecovery(),
	)

	sm := tools.NewSessionManager()
	tools.RegisterWorkflowTools(s, sm)
	tools.RegisterPromptResources(s)

	logger.WithField("version", Version).Info("bmad-mcp-server 启动，等待 stdio 连接")
	if err := server.ServeStdio(s); err != nil {
		logger.WithError(err).Error("服务器退出")
		return err
	}
	return nil
}
