package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
	"paperTrader/internal/valuation"
)

// openPosition validates and creates a new position. Caller holds the lock
// and recomputes the account afterwards.
func (e *Engine) openPosition(p OpenParams) (*domain.Position, *domain.Trade, error) {
	if p.Size <= 0 {
		return nil, nil, fmt.Errorf("open size %f: %w", p.Size, ports.ErrInvalidSize)
	}
	if p.Price <= 0 {
		return nil, nil, fmt.Errorf("open price %f: %w", p.Price, ports.ErrInvalidPrice)
	}
	if !p.Side.IsValid() {
		return nil, nil, fmt.Errorf("side %q: %w", p.Side, ports.ErrInvalidRequest)
	}
	if p.Coin == "" || p.Symbol == "" {
		return nil, nil, fmt.Errorf("symbol and coin are required: %w", ports.ErrInvalidRequest)
	}
	if p.MarginMode == "" {
		p.MarginMode = domain.MarginCross
	}

	params := e.cfg.Coins.Params(p.Coin)
	if p.Leverage < 1 || p.Leverage > params.MaxLeverage {
		return nil, nil, fmt.Errorf("leverage %d outside [1,%d] for %s: %w", p.Leverage, params.MaxLeverage, p.Coin, ports.ErrInvalidLeverage)
	}
	if err := valuation.ValidateLiquidationBand(p.Leverage, params.MaintenanceMarginRate); err != nil {
		return nil, nil, fmt.Errorf("%v: %w", err, ports.ErrInvalidLeverage)
	}

	notional := p.Size * p.Price
	initialMargin := valuation.InitialMargin(notional, p.Leverage)
	fee := notional * e.cfg.FeeRate
	if initialMargin+fee > e.availableMargin() {
		return nil, nil, fmt.Errorf("open needs %.8f margin with %.8f available: %w",
			initialMargin+fee, e.availableMargin(), ports.ErrInsufficientMargin)
	}

	now := e.now()
	pos := &domain.Position{
		ID:                uuid.NewString(),
		AccountID:         e.account.ID,
		Symbol:            p.Symbol,
		Coin:              p.Coin,
		Side:              p.Side,
		Size:              p.Size,
		EntryPrice:        p.Price,
		MarkPrice:         p.Price,
		Leverage:          p.Leverage,
		MarginMode:        p.MarginMode,
		InitialMargin:     initialMargin,
		MaintenanceMargin: valuation.MaintenanceMargin(notional, params.MaintenanceMarginRate),
		LiquidationPrice:  valuation.LiquidationPrice(p.Side, p.Price, p.Leverage, params.MaintenanceMarginRate),
		NotionalValue:     notional,
		TakeProfitPrice:   p.TakeProfit,
		StopLossPrice:     p.StopLoss,
		OpenedAt:          now,
		UpdatedAt:         now,
	}

	e.account.WalletBalance -= fee
	e.book.add(pos)
	trade := e.appendTrade(pos, domain.ActionOpen, p.Size, p.Price, fee, nil)
	return pos, trade, nil
}

// addToPosition increases size, re-averaging the entry price and re-deriving
// margin and liquidation price as if the position were opened at the new
// average. Caller holds the lock.
func (e *Engine) addToPosition(positionID string, size, price float64) (*domain.Position, *domain.Trade, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("add size %f: %w", size, ports.ErrInvalidSize)
	}
	if price <= 0 {
		return nil, nil, fmt.Errorf("add price %f: %w", price, ports.ErrInvalidPrice)
	}
	pos, ok := e.book.get(positionID)
	if !ok {
		return nil, nil, fmt.Errorf("position %s: %w", positionID, ports.ErrPositionNotFound)
	}

	addNotional := size * price
	addMargin := valuation.InitialMargin(addNotional, pos.Leverage)
	fee := addNotional * e.cfg.FeeRate
	if addMargin+fee > e.availableMargin() {
		return nil, nil, fmt.Errorf("add needs %.8f margin with %.8f available: %w",
			addMargin+fee, e.availableMargin(), ports.ErrInsufficientMargin)
	}

	params := e.cfg.Coins.Params(pos.Coin)
	newSize := pos.Size + size
	newEntry := (pos.Size*pos.EntryPrice + size*price) / newSize

	pos.Size = newSize
	pos.EntryPrice = newEntry
	pos.InitialMargin = valuation.InitialMargin(newSize*newEntry, pos.Leverage)
	pos.LiquidationPrice = valuation.LiquidationPrice(pos.Side, newEntry, pos.Leverage, params.MaintenanceMarginRate)
	pos.UpdatedAt = e.now()
	e.account.WalletBalance -= fee
	e.revaluePosition(pos, price)

	trade := e.appendTrade(pos, domain.ActionAdd, size, price, fee, nil)
	return pos, trade, nil
}

// reducePosition realizes P&L for part (or all) of a position. A reduce of
// the full size deletes the position. Caller holds the lock.
func (e *Engine) reducePosition(positionID string, size, price float64, action domain.TradeAction, reason domain.CloseReason) (*CloseResult, error) {
	if size <= 0 {
		return nil, fmt.Errorf("reduce size %f: %w", size, ports.ErrInvalidSize)
	}
	if price <= 0 {
		return nil, fmt.Errorf("reduce price %f: %w", price, ports.ErrInvalidPrice)
	}
	pos, ok := e.book.get(positionID)
	if !ok {
		return nil, fmt.Errorf("position %s: %w", positionID, ports.ErrPositionNotFound)
	}
	// A reduce for more than the open size is rejected, never clamped.
	if size > pos.Size {
		return nil, fmt.Errorf("reduce size %f exceeds open size %f: %w", size, pos.Size, ports.ErrInvalidSize)
	}

	realized := valuation.UnrealizedPnl(pos.Side, pos.EntryPrice, price, size)
	fee := size * price * e.cfg.FeeRate
	e.account.WalletBalance += realized - fee

	fullClose := size == pos.Size
	if fullClose && action == domain.ActionReduce {
		action = domain.ActionClose
	}

	var survivor *domain.Position
	if fullClose {
		e.book.remove(pos)
		e.logClose(pos, price, realized, reason)
	} else {
		pos.Size -= size
		// Release the proportional share of the reserved margin.
		pos.InitialMargin = valuation.InitialMargin(pos.Size*pos.EntryPrice, pos.Leverage)
		pos.UpdatedAt = e.now()
		e.revaluePosition(pos, price)
		survivor = pos.Clone()
	}

	realizedCopy := realized
	trade := e.appendTrade(pos, action, size, price, fee, &realizedCopy)
	trade.CloseReason = reason
	return &CloseResult{Trade: trade, RealizedPnl: realized, Position: survivor}, nil
}

// revaluePosition recomputes the derived fields for a new mark price. Size,
// entry price and margin reservations are never touched here.
func (e *Engine) revaluePosition(pos *domain.Position, markPrice float64) {
	params := e.cfg.Coins.Params(pos.Coin)
	pos.MarkPrice = markPrice
	pos.NotionalValue = pos.Size * markPrice
	pos.MaintenanceMargin = valuation.MaintenanceMargin(pos.NotionalValue, params.MaintenanceMarginRate)
	pos.UnrealizedPnl = valuation.UnrealizedPnl(pos.Side, pos.EntryPrice, markPrice, pos.Size)
	pos.UnrealizedPnlPercent = valuation.UnrealizedPnlPercent(pos.UnrealizedPnl, pos.EntryPrice, pos.Size)
	pos.ReturnOnEquity = valuation.ReturnOnEquity(pos.UnrealizedPnl, pos.InitialMargin)
}

// appendTrade commits an immutable trade record. Caller holds the lock.
func (e *Engine) appendTrade(pos *domain.Position, action domain.TradeAction, size, price, fee float64, realizedPnl *float64) *domain.Trade {
	trade := &domain.Trade{
		ID:            uuid.NewString(),
		AccountID:     e.account.ID,
		PositionID:    pos.ID,
		Symbol:        pos.Symbol,
		Coin:          pos.Coin,
		Side:          executionSide(pos.Side, action),
		PositionSide:  pos.Side,
		OrderType:     "market",
		Action:        action,
		Size:          size,
		Price:         price,
		NotionalValue: size * price,
		Leverage:      pos.Leverage,
		Fee:           fee,
		RealizedPnl:   realizedPnl,
		Timestamp:     e.now(),
	}
	e.trades = append(e.trades, trade)
	return trade
}

// executionSide maps a position side and action to the order side executed.
func executionSide(side domain.PositionSide, action domain.TradeAction) domain.OrderSide {
	increasing := action == domain.ActionOpen || action == domain.ActionAdd
	if (side == domain.Long) == increasing {
		return domain.Buy
	}
	return domain.Sell
}

func (e *Engine) logClose(pos *domain.Position, price, realized float64, reason domain.CloseReason) {
	e.cfg.Logger.Info(context.Background(), "Position closed", map[string]interface{}{
		"positionID": pos.ID,
		"symbol":     pos.Symbol,
		"side":       pos.Side,
		"size":       pos.Size,
		"entryPrice": pos.EntryPrice,
		"exitPrice":  price,
		"realized":   realized,
		"reason":     reason,
	})
}
