package engine

import (
	"context"
	"math"

	"github.com/google/uuid"

	"paperTrader/internal/domain"
)

// sweep checks every position revalued by a tick for a liquidation breach,
// then for TP/SL triggers, and force-closes the hits. Liquidation takes
// precedence over TP/SL for the same position within one tick. The caller
// recomputes the account after the sweep, so readers only ever see the
// post-sweep state for a tick. Caller holds the lock.
func (e *Engine) sweep(affected []*domain.Position) *TickResult {
	result := &TickResult{}
	for _, pos := range affected {
		if _, stillOpen := e.book.get(pos.ID); !stillOpen {
			continue
		}
		if breachesLiquidation(pos) {
			liq, trade := e.liquidate(pos)
			result.Liquidations = append(result.Liquidations, liq)
			result.Trades = append(result.Trades, trade)
			continue
		}
		if reason, hit := triggerHit(pos); hit {
			res, err := e.reducePosition(pos.ID, pos.Size, pos.MarkPrice, domain.ActionClose, reason)
			if err != nil {
				// The position was just read from the book with a positive
				// size and mark price, so a failure here is a programming
				// error worth surfacing loudly.
				e.cfg.Logger.Error(context.Background(), err, "Trigger close failed", map[string]interface{}{"positionID": pos.ID, "reason": reason})
				continue
			}
			result.Trades = append(result.Trades, res.Trade)
		}
	}
	return result
}

// breachesLiquidation reports whether the latest mark price crossed the
// position's liquidation price.
func breachesLiquidation(pos *domain.Position) bool {
	if pos.IsLong() {
		return pos.MarkPrice <= pos.LiquidationPrice
	}
	return pos.MarkPrice >= pos.LiquidationPrice
}

// triggerHit reports whether the latest mark price crossed the position's
// take-profit or stop-loss trigger.
func triggerHit(pos *domain.Position) (domain.CloseReason, bool) {
	if tp := pos.TakeProfitPrice; tp != nil {
		if (pos.IsLong() && pos.MarkPrice >= *tp) || (!pos.IsLong() && pos.MarkPrice <= *tp) {
			return domain.CloseReasonTakeProfit, true
		}
	}
	if sl := pos.StopLossPrice; sl != nil {
		if (pos.IsLong() && pos.MarkPrice <= *sl) || (!pos.IsLong() && pos.MarkPrice >= *sl) {
			return domain.CloseReasonStopLoss, true
		}
	}
	return "", false
}

// liquidate force-closes a breaching position at the observed mark price
// (not at the theoretical liquidation price). The realized loss debited from
// the wallet is capped at the position's committed margin, so a single
// liquidation cannot push the account negative. Terminal for the position.
func (e *Engine) liquidate(pos *domain.Position) (*domain.Liquidation, *domain.Trade) {
	markPrice := pos.MarkPrice
	rawLoss := -pos.UnrealizedPnl // positive when the position is under water
	capLoss := pos.InitialMargin + pos.MaintenanceMargin
	lossAmount := math.Min(math.Max(rawLoss, 0), capLoss)

	e.account.WalletBalance -= lossAmount
	e.book.remove(pos)

	realized := -lossAmount
	trade := e.appendTrade(pos, domain.ActionLiquidation, pos.Size, markPrice, 0, &realized)
	trade.CloseReason = domain.CloseReasonLiquidation

	liq := &domain.Liquidation{
		ID:                     uuid.NewString(),
		AccountID:              e.account.ID,
		PositionID:             pos.ID,
		Symbol:                 pos.Symbol,
		Coin:                   pos.Coin,
		Side:                   pos.Side,
		Size:                   pos.Size,
		EntryPrice:             pos.EntryPrice,
		LiquidationPrice:       pos.LiquidationPrice,
		MarkPriceAtLiquidation: markPrice,
		LossAmount:             lossAmount,
		Timestamp:              e.now(),
	}
	e.liquidations = append(e.liquidations, liq)

	e.cfg.Logger.Warn(context.Background(), "Position liquidated", map[string]interface{}{
		"positionID": pos.ID,
		"symbol":     pos.Symbol,
		"side":       pos.Side,
		"entryPrice": pos.EntryPrice,
		"liqPrice":   pos.LiquidationPrice,
		"markPrice":  markPrice,
		"loss":       lossAmount,
	})
	return liq, trade
}
