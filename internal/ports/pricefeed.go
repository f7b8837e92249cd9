package ports

import (
	"context"
	"time"
)

// MarkPrice is one observation from the price feed.
type MarkPrice struct {
	Symbol    string
	Coin      string
	Price     float64
	Timestamp time.Time
}

// PriceFeed supplies current mark prices for the engine. Implementations own
// transport concerns (reconnects, parsing); the engine only ever sees
// validated coin -> price mappings.
type PriceFeed interface {
	// GetMarkPrice retrieves the current mark price for a single symbol.
	GetMarkPrice(ctx context.Context, symbol string) (float64, error)
	// StreamMarkPrices subscribes to the mark-price stream for all symbols.
	// handler is invoked once per update batch; errHandler receives transport
	// errors that did not terminate the stream. The returned channels follow
	// the done/stop convention: closing stopCh stops the stream, doneCh is
	// closed when the stream has fully shut down.
	StreamMarkPrices(ctx context.Context, handler func(prices []MarkPrice), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}
