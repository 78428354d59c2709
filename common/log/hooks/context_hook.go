package hooks

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// FileLineKey is the entry field the context hook fills.
const FileLineKey = "file:line"

const maxDepth = 32

type contextHook struct{}

// NewContextHook returns a hook recording the file:line of the code that
// logged, outside of logrus and this package.
func NewContextHook() log.Hook {
	return contextHook{}
}

func (hook contextHook) Levels() []log.Level {
	return log.AllLevels
}

func (hook contextHook) Fire(entry *log.Entry) error {
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !skipped(frame.Function) {
			entry.Data[FileLineKey] = fmt.Sprintf("%s:%d", shortPath(frame.File), frame.Line)
			return nil
		}
		if !more {
			return nil
		}
	}
}

func skipped(function string) bool {
	return strings.Contains(function, "github.com/sirupsen/logrus") ||
		strings.Contains(function, "hooks.contextHook.")
}

// shortPath keeps the package directory and file name.
func shortPath(file string) string {
	dir, name := filepath.Split(file)
	return filepath.Join(filepath.Base(dir), name)
}
