package mail

import (
	"context"
	"log/slog"
	"strings"
)

// LogSender records sends instead of delivering them. For local runs.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}

	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipient
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// body carries codes; never log it
	s.log.InfoContext(ctx, "mail.sent",
		"kind", msg.Kind,
		"to", strings.Join(msg.To, ","),
		"subject", msg.Subject,
	)

	return nil
}
