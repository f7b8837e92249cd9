package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"paperTrader/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// quoteAssets recognized when deriving the base coin from a futures symbol.
var quoteAssets = []string{"USDT", "USDC", "BUSD"}

// Client implements the ports.PriceFeed interface using the go-binance
// futures library. Only public market-data endpoints are used; the simulator
// never routes orders anywhere.
type Client struct {
	futuresClient        *futures.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// Config holds configuration specific to the Binance price feed adapter.
type Config struct {
	UseTestnet           bool
	Logger               ports.Logger
	ReconnectDelay       time.Duration // Reconnect delay (e.g., 1 * time.Second)
	MaxReconnectAttempts int           // Max attempts before giving up
}

// New creates a new Binance price feed adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	// No API keys: mark prices are public data.
	client := futures.NewClient("", "")
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance price feed configured", map[string]interface{}{"baseURL": client.BaseURL})

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		futuresClient:        client,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		case -1121: // Invalid symbol
			mappedErr = ports.ErrSymbolUnavailable
		default:
			mappedErr = ports.ErrFeedUnavailable
		}
		c.logger.Error(ctx, mappedErr, "Binance API error", fields)
		return fmt.Errorf("%s: %s (code %d): %w", operation, apiErr.Message, apiErr.Code, mappedErr)
	}

	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", operation, ports.ErrContextCanceled)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", operation, ports.ErrTimeout)
	}

	if strings.Contains(err.Error(), "connection refused") || strings.Contains(err.Error(), "no such host") {
		c.logger.Error(ctx, ports.ErrConnectionFailed, "Binance connection error", fields)
		return fmt.Errorf("%s: %v: %w", operation, err, ports.ErrConnectionFailed)
	}

	c.logger.Error(ctx, err, "Binance error", fields)
	return fmt.Errorf("%s: %w", operation, err)
}

// GetMarkPrice retrieves the current mark price for a given symbol.
func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetMarkPrice"
	tickers, err := c.futuresClient.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		err := fmt.Errorf("no price data returned for symbol %s", symbol)
		return 0, c.handleError(ctx, err, op)
	}

	price, err := strconv.ParseFloat(tickers[0].MarkPrice, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", tickers[0].MarkPrice, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// GetPriceHistory retrieves historical closing prices for a symbol, paging
// through the klines endpoint until the range is covered. The result is
// ordered by timestamp and suitable for replaying through the simulator.
func (c *Client) GetPriceHistory(ctx context.Context, symbol, interval string, start, end time.Time) ([]ports.MarkPrice, error) {
	op := "GetPriceHistory"
	var allPrices []ports.MarkPrice
	const maxLimit = 1500
	coin := BaseCoin(symbol)
	from := start

	for {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			price, parseErr := strconv.ParseFloat(k.Close, 64)
			if parseErr != nil {
				return nil, c.handleError(ctx, fmt.Errorf("could not parse close price '%s': %w", k.Close, parseErr), op)
			}
			allPrices = append(allPrices, ports.MarkPrice{
				Symbol:    symbol,
				Coin:      coin,
				Price:     price,
				Timestamp: time.UnixMilli(k.CloseTime),
			})
		}
		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime)
		if from.After(end) || len(klines) < maxLimit {
			break
		}
	}

	return allPrices, nil
}

// StreamMarkPrices subscribes to the all-market mark-price stream with
// automatic reconnection. handler receives one batch per update; entries
// with unparsable or non-positive prices are dropped before the handler
// sees them.
func (c *Client) StreamMarkPrices(ctx context.Context, handler func(prices []ports.MarkPrice), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamMarkPrices"
	wsCtx, cancelWs := context.WithCancel(ctx)

	binanceHandler := func(event futures.WsAllMarkPriceEvent) {
		prices := make([]ports.MarkPrice, 0, len(event))
		for _, e := range event {
			if e == nil || e.Symbol == "" {
				continue
			}
			price, parseErr := strconv.ParseFloat(e.MarkPrice, 64)
			if parseErr != nil || price <= 0 {
				c.logger.Debug(wsCtx, op+": dropping unparsable mark price", map[string]interface{}{"symbol": e.Symbol, "raw": e.MarkPrice})
				continue
			}
			prices = append(prices, ports.MarkPrice{
				Symbol:    e.Symbol,
				Coin:      BaseCoin(e.Symbol),
				Price:     price,
				Timestamp: time.UnixMilli(e.Time),
			})
		}
		if len(prices) > 0 {
			handler(prices)
		}
	}

	binanceErrHandler := func(err error) {
		translatedErr := c.handleError(wsCtx, err, op+" WebSocket")
		c.logger.Warn(wsCtx, op+": WebSocket error reported", map[string]interface{}{"error": translatedErr})
		errHandler(translatedErr)
	}

	// Reconnection loop
	go func() {
		defer cancelWs()

		attempt := 0
		for {
			select {
			case <-wsCtx.Done():
				c.logger.Info(wsCtx, op+": Context cancelled, stopping connection attempts.")
				return
			default:
				c.logger.Info(wsCtx, op+": Attempting WebSocket connection...", map[string]interface{}{"attempt": attempt + 1})
				innerDoneCh, innerStopCh, connectErr := futures.WsAllMarkPriceServe(binanceHandler, binanceErrHandler)

				if connectErr != nil {
					c.handleError(wsCtx, connectErr, op+" connection attempt")
					attempt++
					if attempt >= c.maxReconnectAttempts {
						c.logger.Error(wsCtx, connectErr, op+": Max reconnection attempts exceeded, giving up.", map[string]interface{}{"maxAttempts": c.maxReconnectAttempts})
						return
					}

					actualDelay := backoffDelay(c.reconnectDelay, attempt)
					c.logger.Info(wsCtx, op+": Connection failed, retrying...", map[string]interface{}{"attempt": attempt + 1, "delay": actualDelay.String()})

					select {
					case <-time.After(actualDelay):
						continue
					case <-wsCtx.Done():
						c.logger.Info(wsCtx, op+": Context cancelled during backoff.")
						return
					}
				}

				c.logger.Info(wsCtx, op+": WebSocket connection established.")
				attempt = 0

				select {
				case <-innerDoneCh:
					c.logger.Warn(wsCtx, op+": WebSocket connection closed unexpectedly. Reconnecting...")
				case <-wsCtx.Done():
					c.logger.Info(wsCtx, op+": Context cancelled, stopping WebSocket.")
					select {
					case innerStopCh <- struct{}{}:
					default:
					}
					return
				}
			}
		}
	}()

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	// Link the external stopCh to the internal context cancellation.
	go func() {
		select {
		case <-stopCh:
			c.logger.Info(ctx, op+": Received external stop signal, cancelling WebSocket context.")
			cancelWs()
		case <-wsCtx.Done():
		}
	}()

	// Close the external doneCh when the internal context is done.
	go func() {
		<-wsCtx.Done()
		close(doneCh)
	}()

	return doneCh, stopCh, nil
}

// backoffDelay returns the wait before reconnect attempt n (1-based):
// the base delay doubled per prior failure, plus a 10% margin so
// repeated retries do not land on exact multiples of the base.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(1<<uint(attempt-1))
	return delay + delay/10
}

// BaseCoin derives the base asset from a futures symbol ("BTCUSDT" -> "BTC").
// Symbols with an unrecognized quote asset are returned unchanged.
func BaseCoin(symbol string) string {
	for _, quote := range quoteAssets {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return strings.TrimSuffix(symbol, quote)
		}
	}
	return symbol
}
