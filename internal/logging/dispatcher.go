package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

// DispatcherLogger lets the mailbox and the guidance service log through
// zerolog with alternating key/value arguments.
type DispatcherLogger struct {
	logger zerolog.Logger
}

func NewDispatcherLogger(logger zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger}
}

func (l *DispatcherLogger) Debug(msg string, kv ...any) { emit(l.logger.Debug(), msg, kv) }
func (l *DispatcherLogger) Info(msg string, kv ...any) { emit(l.logger.Info(), msg, kv) }
func (l *DispatcherLogger) Error(msg string, kv ...any) { emit(l.logger.Error(), msg, kv) }

// emit is a no-op when ev is nil, so filtered levels skip the field work.
func emit(ev *zerolog.Event, msg string, kv []any) {
	if ev == nil {
		return
	}
	if len(kv) > 0 {
		ev = ev.Fields(toFields(kv))
	}
	ev.Msg(msg)
}

// toFields turns kv into a field map. Keys that are not strings are
// printed with fmt; an unpaired last element lands under "extra".
func toFields(kv []any) map[string]any {
	fields := make(map[string]any, (len(kv)+1)/2)
	for len(kv) >= 2 {
		key, ok := kv[0].(string)
		if !ok {
			key = fmt.Sprint(kv[0])
		}
		fields[key] = kv[1]
		kv = kv[2:]
	}
	if len(kv) == 1 {
		fields["extra"] = kv[0]
	}
	return fields
}
