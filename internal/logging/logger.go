// Package logging is the structured logger shared by the server and the
// notifier.  Args are key/value pairs:
//
//	log.Info(ctx, "account registered", "account_id", id)
package logging

import "context"

type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always carries args.
	With(args ...any) Logger
}
