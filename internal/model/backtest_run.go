package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RunStatusCompleted = "completed"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
)

// BacktestRun is the persisted record of a completed backtest: the inputs
// that produced it and the aggregate metrics. The engine itself never
// touches the database; the service layer hands exported results to the
// repository.
type BacktestRun struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Strategy     string         `gorm:"not null" json:"strategy"`
	Symbols      datatypes.JSON `gorm:"not null" json:"symbols"`
	Interval     string         `json:"interval"`
	Params       datatypes.JSON `json:"params"`
	StartDate    time.Time      `gorm:"not null" json:"start_date"`
	EndDate      time.Time      `gorm:"not null" json:"end_date"`
	InitialCash  float64        `gorm:"not null" json:"initial_cash"`
	FinalEquity  float64        `json:"final_equity"`
	RiskSettings datatypes.JSON `json:"risk_settings"`
	Metrics      datatypes.JSON `json:"metrics"`
	Status       string         `gorm:"not null" json:"status"`
	Scheduled    *bool          `json:"scheduled"`
	Trades       []BacktestTrade `gorm:"foreignKey:RunID" json:"trades,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BacktestRun) TableName() string {
	return "backtest_runs"
}

// BacktestTrade is one realized trade from a persisted run.
type BacktestTrade struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RunID       uint      `gorm:"not null;index" json:"run_id"`
	Symbol      string    `gorm:"not null" json:"symbol"`
	Quantity    int64     `gorm:"not null" json:"quantity"`
	EntryTime   time.Time `gorm:"not null" json:"entry_time"`
	EntryPrice  float64   `gorm:"not null" json:"entry_price"`
	ExitTime    time.Time `gorm:"not null" json:"exit_time"`
	ExitPrice   float64   `gorm:"not null" json:"exit_price"`
	RealizedPnL float64   `gorm:"not null" json:"realized_pnl"`
	ExitReason  string    `json:"exit_reason"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (BacktestTrade) TableName() string {
	return "backtest_trades"
}
