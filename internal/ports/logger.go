package ports

import "context"

// Logger is the leveled logging port shared by the simulator, the price feed
// adapter and the persistence layer. Implementations are free to ignore the
// context; it is passed through so request-scoped metadata can be picked up
// by richer backends.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error attaches err to the entry in addition to the message and fields.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}
