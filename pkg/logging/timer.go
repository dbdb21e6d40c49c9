package logging

import "time"

// TimedOperation logs an operation together with its latency.
type TimedOperation struct {
	logger Logger
	msg    string
	start  time.Time
	fields []Field
}

// StartTimer begins timing an operation.
func StartTimer(logger Logger, msg string, fields ...Field) *TimedOperation {
	return &TimedOperation{logger: logger, msg: msg, start: time.Now(), fields: fields}
}

func (t *TimedOperation) withLatency(extra ...Field) []Field {
	fields := make([]Field, 0, len(t.fields)+1+len(extra))
	fields = append(fields, t.fields...)
	fields = append(fields, Latency(time.Since(t.start)))
	return append(fields, extra...)
}

// End logs the operation at DEBUG.
func (t *TimedOperation) End() {
	t.logger.Debug(t.msg, t.withLatency()...)
}

// EndWithLevel logs msg in place of the operation name.
func (t *TimedOperation) EndWithLevel(level Level, msg string) {
	logAt(t.logger, level, msg, t.withLatency()...)
}

// EndError logs the operation as failed.
func (t *TimedOperation) EndError(err error) {
	t.logger.Error(t.msg, t.withLatency(Error(err))...)
}

func logAt(l Logger, level Level, msg string, fields ...Field) {
	switch level {
	case DebugLevel:
		l.Debug(msg, fields...)
	case WarnLevel:
		l.Warn(msg, fields...)
	case ErrorLevel:
		l.Error(msg, fields...)
	default:
		l.Info(msg, fields...)
	}
}
