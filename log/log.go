package log

import (
	"context"
	"io"
	"os"
	"strings"

	kitlog "github.com/go-kit/kit/log"
	tlog "github.com/tendermint/tendermint/libs/log"
)

// Reexported types
type Logger = tlog.Logger

var (
	NewTMLogger   = tlog.NewTMLogger
	NewSyncWriter = kitlog.NewSyncWriter
	NewNopLogger  = tlog.NewNopLogger
	Root          = NewTMLogger(NewSyncWriter(os.Stdout))
	// Default is the logger used by the package level functions below.
	Default = Root
)

// Setup replaces the root logger with one that writes to the given destination and filters out
// anything below the given level. The destination is either empty (stdout), "file://-" (stdout),
// or "file://<path>".
func Setup(level, destination string) error {
	w, err := openDestination(destination)
	if err != nil {
		return err
	}
	opt, err := tlog.AllowLevel(level)
	if err != nil {
		return err
	}
	Root = tlog.NewFilter(NewTMLogger(NewSyncWriter(w)), opt)
	Default = Root
	return nil
}

func openDestination(destination string) (io.Writer, error) {
	if destination == "" || destination == "file://-" {
		return os.Stdout, nil
	}
	path := strings.TrimPrefix(destination, "file://")
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

type contextKey string

func (c contextKey) String() string {
	return "log " + string(c)
}

var (
	contextKeyLog = contextKey("log")
)

func SetContext(ctx context.Context, log Logger) context.Context {
	return context.WithValue(ctx, contextKeyLog, log)
}

func Log(ctx context.Context) Logger {
	logger, _ := ctx.Value(contextKeyLog).(Logger)
	if logger == nil {
		return Root
	}

	return logger
}

func Info(msg string, keyvals ...interface{}) {
	Default.Info(msg, keyvals...)
}

func Debug(msg string, keyvals ...interface{}) {
	Default.Debug(msg, keyvals...)
}

func Error(msg string, keyvals ...interface{}) {
	Default.Error(msg, keyvals...)
}
