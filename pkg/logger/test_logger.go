package logger

import "sync"

// TestLogger is a Logger implementation that records messages in memory.
// Intended for assertions in package tests.
type TestLogger struct {
	mu      sync.Mutex
	entries []TestEntry
	fields  map[string]interface{}
}

// TestEntry is one recorded log call
type TestEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// NewTestLogger creates an in-memory logger for tests
func NewTestLogger() *TestLogger {
	return &TestLogger{fields: make(map[string]interface{})}
}

// Entries returns a copy of everything logged so far
func (l *TestLogger) Entries() []TestEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TestEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// HasMessage reports whether any entry contains the given message
func (l *TestLogger) HasMessage(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Message == msg {
			return true
		}
	}
	return false
}

func (l *TestLogger) record(level, msg string, extra map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fields := make(map[string]interface{}, len(l.fields)+len(extra))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	l.entries = append(l.entries, TestEntry{Level: level, Message: msg, Fields: fields})
}

func (l *TestLogger) Debug(msg string) { l.record("debug", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.record("info", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.record("warn", msg, nil) }
func (l *TestLogger) Error(msg string) { l.record("error", msg, nil) }
func (l *TestLogger) Fatal(msg string) { l.record("fatal", msg, nil) }

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	child := &TestLogger{fields: make(map[string]interface{}, len(l.fields)+len(fields))}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range fields {
		child.fields[k] = v
	}
	// Share the entry slice through the parent so assertions see child logs
	child.entries = nil
	return &forwardingLogger{parent: l, fields: child.fields}
}

func (l *TestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.record("debug", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.record("info", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.record("warn", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.record("error", msg, fields)
}

// forwardingLogger routes child logger calls back to the root TestLogger
type forwardingLogger struct {
	parent *TestLogger
	fields map[string]interface{}
}

func (f *forwardingLogger) Debug(msg string) { f.parent.record("debug", msg, f.fields) }
func (f *forwardingLogger) Info(msg string)  { f.parent.record("info", msg, f.fields) }
func (f *forwardingLogger) Warn(msg string)  { f.parent.record("warn", msg, f.fields) }
func (f *forwardingLogger) Error(msg string) { f.parent.record("error", msg, f.fields) }
func (f *forwardingLogger) Fatal(msg string) { f.parent.record("fatal", msg, f.fields) }

func (f *forwardingLogger) WithField(key string, value interface{}) Logger {
	return f.WithFields(map[string]interface{}{key: value})
}

func (f *forwardingLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(f.fields)+len(fields))
	for k, v := range f.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &forwardingLogger{parent: f.parent, fields: merged}
}

func (f *forwardingLogger) WithError(err error) Logger {
	if err == nil {
		return f
	}
	return f.WithField("error", err.Error())
}

func (f *forwardingLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	f.parent.record("debug", msg, mergeFields(f.fields, fields))
}

func (f *forwardingLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	f.parent.record("info", msg, mergeFields(f.fields, fields))
}

func (f *forwardingLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	f.parent.record("warn", msg, mergeFields(f.fields, fields))
}

func (f *forwardingLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	f.parent.record("error", msg, mergeFields(f.fields, fields))
}

func mergeFields(a, b map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}
