package execution

import "context"

// Trader 抽象强平接口，方便切换真实或模拟执行。
type Trader interface {
	Flatten(ctx context.Context, reason Reason) (Result, error)
}

var _ Trader = (*Executor)(nil)
