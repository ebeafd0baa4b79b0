// Package traceutil implements tracing utilities for long-running
// operations: a trace accumulates timed steps and logs them through zap
// when the whole operation ran longer than a caller-chosen threshold.
package traceutil

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

type Field struct {
	Key   string
	Value interface{}
}

func (f Field) format() string {
	return fmt.Sprintf("%s:%v; ", f.Key, f.Value)
}

func writeFields(fields []Field) string {
	if len(fields) == 0 {
		return ""
	}
	var buf []byte
	for _, f := range fields {
		buf = append(buf, f.format()...)
	}
	return "{" + string(buf[:len(buf)-2]) + "}"
}

type Trace struct {
	operation string
	lg        *zap.Logger
	fields    []Field
	startTime time.Time
	steps     []step
}

type step struct {
	time   time.Time
	msg    string
	fields []Field
}

func New(op string, lg *zap.Logger, fields ...Field) *Trace {
	return &Trace{
		operation: op,
		lg:        lg,
		startTime: time.Now(),
		fields:    fields,
	}
}

// TODO returns a non-nil, empty Trace for callers with nothing to
// trace yet.
func TODO() *Trace { return &Trace{} }

func (t *Trace) StartTime() time.Time { return t.startTime }

// Step adds a new step with its completion time to the trace.
func (t *Trace) Step(msg string, fields ...Field) {
	t.steps = append(t.steps, step{time: time.Now(), msg: msg, fields: fields})
}

func (t *Trace) AddField(fields ...Field) {
	t.fields = append(t.fields, fields...)
}

// Log dumps the trace unconditionally.
func (t *Trace) Log() {
	t.LogIfLong(0)
}

// LogIfLong dumps the trace if its total duration is at least
// threshold.
func (t *Trace) LogIfLong(threshold time.Duration) {
	if t.lg == nil || t.operation == "" {
		return
	}
	took := time.Since(t.startTime)
	if took < threshold {
		return
	}
	var steps []string
	last := t.startTime
	for _, s := range t.steps {
		steps = append(steps, fmt.Sprintf("trace[%s] %s %s (duration: %v)",
			t.operation, s.msg, writeFields(s.fields), s.time.Sub(last)))
		last = s.time
	}
	t.lg.Info("trace",
		zap.String("operation", t.operation),
		zap.String("detail", writeFields(t.fields)),
		zap.Duration("duration", took),
		zap.Strings("steps", steps),
	)
}
