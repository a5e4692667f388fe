package journal

import (
	"context"

	"github.com/R3E-Network/vrf_coordinator/pkg/logger"
)

// Log writes every envelope as one structured log line.
type Log struct {
	log *logger.Logger
}

// NewLog returns a sink logging through log.
func NewLog(log *logger.Logger) *Log {
	return &Log{log: log}
}

// Write implements Sink.
func (l *Log) Write(ctx context.Context, envs []Envelope) error {
	for _, env := range envs {
		l.log.WithContext(ctx).WithFields(map[string]any{
			"seq":     env.Seq,
			"event":   env.Name,
			"payload": string(env.Payload),
		}).Info("event")
	}
	return nil
}
