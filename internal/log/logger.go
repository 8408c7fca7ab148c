// Package log 提供按组件预配置的 logrus 日志器。
// 输出固定走 stderr：stdout 保留给 MCP stdio 传输。
package log

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

// New 返回指定组件的日志器，按组件名单例复用。
// 级别由 BMAD_LOG_LEVEL 控制，默认 info。
func New(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(os.Getenv("BMAD_LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}
