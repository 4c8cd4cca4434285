// Package sklog provides the orchestrator's logging interface. It is a thin
// superset of glog: callers get the familiar Infof/Warningf/Errorf/Fatalf
// calls, plus depth-aware variants for wrapping helpers that want the
// reported file:line to point at their caller instead of themselves.
package sklog

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/skia-dev/glog"
)

const (
	DEBUG   = "DEBUG"
	INFO    = "INFO"
	WARNING = "WARNING"
	ERROR   = "ERROR"
	ALERT   = "ALERT"
)

func Debug(msg ...interface{}) {
	log(0, DEBUG, fmt.Sprint(msg...))
}

func Debugf(format string, v ...interface{}) {
	log(0, DEBUG, fmt.Sprintf(format, v...))
}

func DebugfWithDepth(depth int, format string, v ...interface{}) {
	log(depth, DEBUG, fmt.Sprintf(format, v...))
}

func Info(msg ...interface{}) {
	log(0, INFO, fmt.Sprint(msg...))
}

func Infof(format string, v ...interface{}) {
	log(0, INFO, fmt.Sprintf(format, v...))
}

func InfofWithDepth(depth int, format string, v ...interface{}) {
	log(depth, INFO, fmt.Sprintf(format, v...))
}

func Warning(msg ...interface{}) {
	log(0, WARNING, fmt.Sprint(msg...))
}

func Warningf(format string, v ...interface{}) {
	log(0, WARNING, fmt.Sprintf(format, v...))
}

func Error(msg ...interface{}) {
	log(0, ERROR, fmt.Sprint(msg...))
}

func Errorf(format string, v ...interface{}) {
	log(0, ERROR, fmt.Sprintf(format, v...))
}

func ErrorfWithDepth(depth int, format string, v ...interface{}) {
	log(depth, ERROR, fmt.Sprintf(format, v...))
}

// Fatal logs at ALERT severity, flushes, and panics - it never calls
// os.Exit directly so that callers under test can recover.
func Fatal(msg ...interface{}) {
	log(0, ALERT, fmt.Sprint(msg...))
	Flush()
	panic(fmt.Sprint(msg...))
}

func Fatalf(format string, v ...interface{}) {
	log(0, ALERT, fmt.Sprintf(format, v...))
	Flush()
	panic(fmt.Sprintf(format, v...))
}

func Flush() {
	glog.Flush()
}

func log(depthOffset int, severity, payload string) {
	logToGlog(3+depthOffset, severity, payload)
}

func logToGlog(depth int, severity string, msg interface{}) {
	switch severity {
	case DEBUG, INFO:
		glog.InfoDepth(depth, msg)
	case WARNING:
		glog.WarningDepth(depth, msg)
	case ERROR:
		glog.ErrorDepth(depth, msg)
	case ALERT:
		// Not glog.FatalDepth: that exits the process itself, which would
		// defeat Fatal's recover-under-test contract.
		glog.ErrorDepth(depth, msg)
	default:
		glog.ErrorDepth(depth, msg)
	}
}

type StackTrace struct {
	File string
	Line int
}

func (st *StackTrace) String() string {
	return fmt.Sprintf("%s:%d", st.File, st.Line)
}

// CallStack returns height StackTrace entries starting startAt frames up
// the stack: 0 is CallStack itself, 1 is its caller, and so on.
func CallStack(height, startAt int) []StackTrace {
	stack := []StackTrace{}
	for i := 0; i < height; i++ {
		_, file, line, ok := runtime.Caller(startAt + i)
		if !ok {
			file = "???"
			line = 1
		} else if slash := strings.LastIndex(file, "/"); slash >= 0 {
			file = file[slash+1:]
		}
		stack = append(stack, StackTrace{File: file, Line: line})
	}
	return stack
}
