package main

import (
	"log"
	"log/syslog"

	"github.com/dumacp/go-logs/pkg/logs"
)

func newLog(logger *logs.Logger, prefix string, flags int, priority int) error {
	logg, err := syslog.NewLogger(syslog.Priority(priority), flags)
	if err != nil {
		return err
	}
	logger.SetLogError(logg)
	return nil
}

// initLogs sends the loggers to syslog unless logStd is set. The debug
// logger is silent unless debug is set.
func initLogs(debug, logStd bool) {
	defer func() {
		if !debug {
			logs.LogBuild.Disable()
		}
	}()
	if logStd {
		return
	}
	newLog(logs.LogWarn, "[ warn ] ", log.LstdFlags, int(syslog.LOG_WARNING))
	newLog(logs.LogInfo, "[ info ] ", log.LstdFlags, int(syslog.LOG_INFO))
	newLog(logs.LogBuild, "[ build ] ", log.LstdFlags, int(syslog.LOG_DEBUG))
	newLog(logs.LogError, "[ error ] ", log.LstdFlags, int(syslog.LOG_ERR))
}
