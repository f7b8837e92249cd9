package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"paperTrader/internal/ports"
	"paperTrader/internal/stats"
)

// WritePricesToCSV saves a historical price series in the format
// ReadPricesFromCSV expects.
func WritePricesToCSV(prices []ports.MarkPrice, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"timestamp", "symbol", "coin", "price"})

	for _, p := range prices {
		writer.Write([]string{
			p.Timestamp.Format(time.RFC3339),
			p.Symbol,
			p.Coin,
			strconv.FormatFloat(p.Price, 'f', -1, 64),
		})
	}
	return writer.Error()
}

// ReadPricesFromCSV loads a price series written by WritePricesToCSV.
func ReadPricesFromCSV(filename string) ([]ports.MarkPrice, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("price file %s has no data rows", filename)
	}

	prices := make([]ports.MarkPrice, 0, len(records)-1)
	for i, rec := range records[1:] { // skip header
		if len(rec) != 4 {
			return nil, fmt.Errorf("row %d: expected 4 columns, got %d", i+2, len(rec))
		}
		ts, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: bad timestamp %q: %w", i+2, rec[0], err)
		}
		price, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad price %q: %w", i+2, rec[3], err)
		}
		prices = append(prices, ports.MarkPrice{
			Symbol:    rec[1],
			Coin:      rec[2],
			Price:     price,
			Timestamp: ts,
		})
	}
	return prices, nil
}

// WriteEquityCurveToCSV saves a computed equity curve for plotting.
func WriteEquityCurveToCSV(points []stats.EquityPoint, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	writer.Write([]string{"time", "equity", "drawdown_pct"})

	for _, p := range points {
		writer.Write([]string{
			p.Time.Format(time.RFC3339),
			strconv.FormatFloat(p.Value, 'f', -1, 64),
			strconv.FormatFloat(p.Drawdown, 'f', -1, 64),
		})
	}
	return writer.Error()
}
