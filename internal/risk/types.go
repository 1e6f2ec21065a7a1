package risk

// StatusType 描述风控闸门结果。
type StatusType string

const (
	StatusProceed StatusType = "proceed"
	// StatusHalted 表示当日已停止开新网格，仍允许对账与强平。
	StatusHalted StatusType = "halted"
)

// DailyStatus 表示当日风控状态。
type DailyStatus struct {
	TradingDate string
	RealizedPnL float64
	Trades      int
	Limit       float64
	Halted      bool
}

// Status 返回闸门状态。
func (s DailyStatus) Status() StatusType {
	if s.Halted {
		return StatusHalted
	}
	return StatusProceed
}

// Remaining 返回距离日亏损上限的剩余额度，未设上限返回 0。
func (s DailyStatus) Remaining() float64 {
	if s.Limit <= 0 {
		return 0
	}
	return s.Limit + s.RealizedPnL
}
