package logger

import (
	"fmt"
	"strings"
	"sync"
)

// Buffer is a Logger implementation intended for testing;
// messages are stored internally.
type Buffer struct {
	mu       *sync.Mutex
	messages *[]string
	fields   Fields
}

// NewBuffer creates a new Buffer with an empty, non-nil message list.
func NewBuffer() *Buffer {
	return &Buffer{
		mu:       &sync.Mutex{},
		messages: &[]string{},
	}
}

// Messages returns a copy of everything logged so far, including messages
// logged through loggers derived with WithFields.
func (b *Buffer) Messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, *b.messages...)
}

func (b *Buffer) record(level, format string, v ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	msg := "[" + level + "] " + fmt.Sprintf(format, v...)
	if len(b.fields) > 0 {
		parts := make([]string, 0, len(b.fields))
		for _, f := range b.fields {
			parts = append(parts, f.Key()+"="+f.String())
		}
		msg += " " + strings.Join(parts, " ")
	}
	*b.messages = append(*b.messages, msg)
}

func (b *Buffer) Debug(format string, v ...any)  { b.record("debug", format, v...) }
func (b *Buffer) Info(format string, v ...any)   { b.record("info", format, v...) }
func (b *Buffer) Notice(format string, v ...any) { b.record("notice", format, v...) }
func (b *Buffer) Warn(format string, v ...any)   { b.record("warn", format, v...) }
func (b *Buffer) Error(format string, v ...any)  { b.record("error", format, v...) }
func (b *Buffer) Fatal(format string, v ...any)  { b.record("fatal", format, v...) }

// WithFields returns a Buffer sharing storage with b whose messages carry
// the extra fields.
func (b *Buffer) WithFields(fields ...Field) Logger {
	clone := *b
	clone.fields = append(append(Fields{}, b.fields...), fields...)
	return &clone
}

func (b *Buffer) SetLevel(level Level) {}

func (b *Buffer) Level() Level {
	return DEBUG
}
