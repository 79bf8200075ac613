package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

var (
	mu    sync.Mutex
	level = INFO
	out   = os.Stderr
)

func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

func GetLevel() Level {
	mu.Lock()
	defer mu.Unlock()
	return level
}

func logAt(l Level, component, msg string, fields map[string]interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if l < level {
		return
	}

	var sb strings.Builder
	sb.WriteString(time.Now().Format("2006-01-02 15:04:05"))
	sb.WriteString(" [")
	sb.WriteString(levelNames[l])
	sb.WriteString("]")
	if component != "" {
		sb.WriteString(" [")
		sb.WriteString(component)
		sb.WriteString("]")
	}
	sb.WriteString(" ")
	sb.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf(" %s=%v", k, fields[k]))
		}
	}

	fmt.Fprintln(out, sb.String())
}

func Debug(msg string)             { logAt(DEBUG, "", msg, nil) }
func Info(msg string)              { logAt(INFO, "", msg, nil) }
func Warn(msg string)              { logAt(WARN, "", msg, nil) }
func Error(msg string)             { logAt(ERROR, "", msg, nil) }
func DebugC(component, msg string) { logAt(DEBUG, component, msg, nil) }
func InfoC(component, msg string)  { logAt(INFO, component, msg, nil) }
func WarnC(component, msg string)  { logAt(WARN, component, msg, nil) }
func ErrorC(component, msg string) { logAt(ERROR, component, msg, nil) }

func DebugCF(component, msg string, fields map[string]interface{}) {
	logAt(DEBUG, component, msg, fields)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	logAt(INFO, component, msg, fields)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	logAt(WARN, component, msg, fields)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	logAt(ERROR, component, msg, fields)
}
