package observability

import (
	"log/slog"
	"strings"
)

// Sink is the leveled log/warn/error collaborator. Implementations must not
// block the caller for long and must never panic.
type Sink interface {
	Log(tag, text string)
	Warn(text string)
	Error(text string)
}

// SlogSink adapts a *slog.Logger to Sink.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink returns a Sink writing to logger, or slog.Default when nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}

	return &SlogSink{logger: logger}
}

// Log records tagged informational output.
func (s *SlogSink) Log(tag, text string) {
	s.logger.Info(trimLine(text), slog.String("source", tag))
}

// Warn records a warning.
func (s *SlogSink) Warn(text string) {
	s.logger.Warn(trimLine(text))
}

// Error records an error line.
func (s *SlogSink) Error(text string) {
	s.logger.Error(trimLine(text))
}

// DiscardSink drops everything.
type DiscardSink struct{}

func (DiscardSink) Log(string, string) {}
func (DiscardSink) Warn(string)        {}
func (DiscardSink) Error(string)       {}

// trimLine drops the line terminator and any terminal escape sequences, so
// colorized backend output stays readable in JSON logs.
func trimLine(text string) string {
	return stripANSI(strings.TrimRight(text, "\r\n"))
}

// stripANSI removes CSI sequences (ESC [ ... final byte) and OSC sequences
// (ESC ] ... BEL or ESC \). An unterminated sequence is kept verbatim.
func stripANSI(s string) string {
	if !strings.ContainsRune(s, '\x1b') {
		return s
	}

	var b strings.Builder

	b.Grow(len(s))

	for i := 0; i < len(s); {
		if s[i] != '\x1b' || i+1 >= len(s) {
			b.WriteByte(s[i])
			i++

			continue
		}

		end := escapeEnd(s, i)
		if end < 0 {
			b.WriteString(s[i:])
			break
		}

		i = end
	}

	return b.String()
}

// escapeEnd returns the index just past the escape sequence starting at i,
// or -1 when it is unterminated.
func escapeEnd(s string, i int) int {
	switch s[i+1] {
	case '[':
		for j := i + 2; j < len(s); j++ {
			if s[j] >= 0x40 && s[j] <= 0x7e {
				return j + 1
			}
		}
	case ']':
		for j := i + 2; j < len(s); j++ {
			if s[j] == '\a' {
				return j + 1
			}

			if s[j] == '\x1b' && j+1 < len(s) && s[j+1] == '\\' {
				return j + 2
			}
		}
	default:
		return i + 2
	}

	return -1
}

var (
	_ Sink = (*SlogSink)(nil)
	_ Sink = DiscardSink{}
)
