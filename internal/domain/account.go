package domain

import "time"

// Account represents one virtual trading account. Balance fields other than
// WalletBalance are derived from the open positions and recomputed after
// every committed mutation and price tick, never stored independently.
type Account struct {
	ID             string  `json:"id"`
	InitialCapital float64 `json:"initialCapital"` // fixed at creation
	WalletBalance  float64 `json:"walletBalance"`  // uncommitted cash

	// Derived.
	TotalEquity       float64   `json:"totalEquity"`       // walletBalance + sum of unrealized PnL
	UsedMargin        float64   `json:"usedMargin"`        // sum of initial margin of open positions
	AvailableMargin   float64   `json:"availableMargin"`   // totalEquity - usedMargin
	MaintenanceMargin float64   `json:"maintenanceMargin"` // sum of maintenance margin of open positions
	MarginRatio       float64   `json:"marginRatio"`
	RiskLevel         RiskLevel `json:"riskLevel"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AccountSnapshot is a consistent point-in-time view of an account and its
// open positions, taken under the engine's write lock.
type AccountSnapshot struct {
	Account   Account     `json:"account"`
	Positions []*Position `json:"positions"`
	TakenAt   time.Time   `json:"takenAt"`
}
