package logring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Hook mirrors logrus entries of Info level and above into a Ring. Register
// it on the process-wide logger so every component's output is observable
// through the /logs endpoint.
type Hook struct {
	ring *Ring
}

// NewHook creates a hook feeding the given ring.
func NewHook(ring *Ring) *Hook {
	return &Hook{ring: ring}
}

// Levels implements logrus.Hook.
func (h *Hook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
	}
}

// Fire implements logrus.Hook. It never returns an error: a log mirror that
// can fail the logging call would be worse than no mirror.
func (h *Hook) Fire(entry *logrus.Entry) error {
	h.ring.AppendAt(entry.Time, ringLevel(entry.Level), renderMessage(entry))
	return nil
}

func ringLevel(l logrus.Level) Level {
	switch {
	case l <= logrus.ErrorLevel:
		return LevelError
	case l == logrus.WarnLevel:
		return LevelWarn
	default:
		return LevelInfo
	}
}

// renderMessage flattens structured fields into the message text, keys
// sorted for stable output.
func renderMessage(entry *logrus.Entry) string {
	if len(entry.Data) == 0 {
		return entry.Message
	}

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(entry.Message)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	return b.String()
}
