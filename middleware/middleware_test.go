package middleware

import (
	"context"
	"net/http/httptest"
	"sync"

	"github.com/xraph/loom/internal/router"
	"github.com/xraph/loom/logger"
)

// newCtx builds a request context over httptest primitives.
func newCtx(method, target string) (*router.RequestContext, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	return router.NewRequestContext(rec, req, nil, logger.NewNoopLogger()), rec
}

type logEntry struct {
	level  string
	msg    string
	fields []logger.Field
}

func (e logEntry) field(key string) any {
	for _, f := range e.fields {
		if f.Key() == key {
			return f.Value()
		}
	}
	return nil
}

// recordingLogger captures log entries for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level, msg string, fields []logger.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *recordingLogger) find(msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

func (l *recordingLogger) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *recordingLogger) Debug(msg string, fields ...logger.Field) { l.record("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...logger.Field)  { l.record("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...logger.Field)  { l.record("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...logger.Field) { l.record("error", msg, fields) }
func (l *recordingLogger) Fatal(msg string, fields ...logger.Field) { l.record("fatal", msg, fields) }

func (l *recordingLogger) Debugf(template string, args ...interface{}) {}
func (l *recordingLogger) Infof(template string, args ...interface{})  {}
func (l *recordingLogger) Warnf(template string, args ...interface{})  {}
func (l *recordingLogger) Errorf(template string, args ...interface{}) {}
func (l *recordingLogger) Fatalf(template string, args ...interface{}) {}

func (l *recordingLogger) With(fields ...logger.Field) logger.Logger      { return l }
func (l *recordingLogger) WithContext(ctx context.Context) logger.Logger  { return l }
func (l *recordingLogger) Named(name string) logger.Logger                { return l }
func (l *recordingLogger) Sugar() logger.SugarLogger                      { return nil }
func (l *recordingLogger) Sync() error                                    { return nil }
