package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"paperTrader/config"
	"paperTrader/internal/adapters/logger"
	"paperTrader/internal/domain"
	"paperTrader/internal/engine"
	"paperTrader/internal/utils"
)

// replay_runner feeds a recorded price series through the simulation engine
// with a single position held for the whole run, then prints the resulting
// account statistics. It is the quickest way to sanity-check margin and
// liquidation behaviour against real market data.
func main() {
	pricesFile := flag.String("prices", "", "CSV price series from fetch_prices (required)")
	side := flag.String("side", "long", "position side: long or short")
	size := flag.Float64("size", 0.1, "position size in base asset")
	leverage := flag.Int("leverage", 10, "position leverage")
	takeProfit := flag.Float64("tp", 0, "take profit price (0 = none)")
	stopLoss := flag.Float64("sl", 0, "stop loss price (0 = none)")
	equityOut := flag.String("equity-out", "", "write the equity curve CSV here (optional)")
	flag.Parse()

	if *pricesFile == "" {
		log.Fatalf("FATAL: -prices is required")
	}
	posSide := domain.PositionSide(strings.ToLower(*side))
	if !posSide.IsValid() {
		log.Fatalf("FATAL: invalid side %q", *side)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	prices, err := utils.ReadPricesFromCSV(*pricesFile)
	if err != nil {
		appLogger.Error(ctx, err, "Error loading price series", map[string]interface{}{"file": *pricesFile})
		log.Fatalf("Error loading price series: %v", err)
	}
	appLogger.Info(ctx, "Loaded price series", map[string]interface{}{
		"file":  *pricesFile,
		"count": len(prices),
		"coin":  prices[0].Coin,
	})

	eng, err := engine.New(engine.Config{
		Coins:          cfg.Coins,
		RiskThresholds: cfg.RiskThresholds,
		FeeRate:        cfg.FeeRate,
		Logger:         appLogger.WithComponent("engine"),
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize simulation engine: %v", err)
	}
	if _, err := eng.InitAccount(cfg.InitialCapital); err != nil {
		log.Fatalf("FATAL: Failed to initialize account: %v", err)
	}

	params := engine.OpenParams{
		Symbol:   prices[0].Symbol,
		Coin:     prices[0].Coin,
		Side:     posSide,
		Size:     *size,
		Price:    prices[0].Price,
		Leverage: *leverage,
	}
	if *takeProfit > 0 {
		params.TakeProfit = takeProfit
	}
	if *stopLoss > 0 {
		params.StopLoss = stopLoss
	}

	opened, err := eng.OpenPosition(params)
	if err != nil {
		log.Fatalf("FATAL: Failed to open position: %v", err)
	}
	appLogger.Info(ctx, "Opened position", map[string]interface{}{
		"positionID": opened.Position.ID,
		"entryPrice": opened.Position.EntryPrice,
		"liqPrice":   opened.Position.LiquidationPrice,
	})

	positionID := opened.Position.ID
	forcedClose := false
	for _, p := range prices[1:] {
		result, err := eng.UpdateAllPrices(map[string]float64{p.Coin: p.Price})
		if err != nil {
			log.Fatalf("FATAL: Price tick failed at %s: %v", p.Timestamp, err)
		}
		for _, liq := range result.Liquidations {
			appLogger.Warn(ctx, "Position liquidated", map[string]interface{}{
				"positionID": liq.PositionID,
				"markPrice":  liq.MarkPriceAtLiquidation,
				"lossAmount": liq.LossAmount,
				"time":       p.Timestamp.String(),
			})
		}
		for _, trade := range result.Trades {
			if trade.PositionID == positionID {
				forcedClose = true
				appLogger.Info(ctx, "Position closed by trigger or liquidation", map[string]interface{}{
					"reason": trade.CloseReason,
					"price":  trade.Price,
					"time":   p.Timestamp.String(),
				})
			}
		}
	}

	if !forcedClose {
		closed, err := eng.ClosePosition(positionID, prices[len(prices)-1].Price)
		if err != nil {
			log.Fatalf("FATAL: Failed to close position at end of series: %v", err)
		}
		appLogger.Info(ctx, "Closed position at end of series", map[string]interface{}{
			"exitPrice":   closed.Trade.Price,
			"realizedPnl": closed.RealizedPnl,
		})
	}

	accountStats, err := eng.AccountStats()
	if err != nil {
		log.Fatalf("FATAL: Failed to compute statistics: %v", err)
	}
	snapshot, err := eng.Snapshot()
	if err != nil {
		log.Fatalf("FATAL: Failed to take snapshot: %v", err)
	}

	fmt.Println("--- Replay Results ---")
	fmt.Printf("Initial capital:    %.2f\n", cfg.InitialCapital)
	fmt.Printf("Final equity:       %.2f\n", snapshot.Account.TotalEquity)
	fmt.Printf("Realized PnL:       %.2f\n", accountStats.TotalRealizedPnl)
	fmt.Printf("Fees paid:          %.2f\n", accountStats.TotalFees)
	fmt.Printf("Closed trades:      %d (win rate %.1f%%)\n", accountStats.TotalClosedTrades, accountStats.WinRate)
	fmt.Printf("Liquidations:       %d (loss %.2f)\n", accountStats.LiquidationCount, accountStats.TotalLiquidationLoss)
	fmt.Printf("Max drawdown:       %.2f%%\n", accountStats.MaxDrawdownPercent)
	fmt.Printf("Return on capital:  %.2f%%\n", accountStats.ReturnOnCapital)

	if *equityOut != "" {
		if err := utils.WriteEquityCurveToCSV(accountStats.EquityCurve, *equityOut); err != nil {
			log.Fatalf("FATAL: Failed to write equity curve: %v", err)
		}
		fmt.Printf("Equity curve written to %s\n", *equityOut)
	}
}
