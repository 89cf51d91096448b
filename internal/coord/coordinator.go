package coord

import (
	"time"

	"go.uber.org/zap"

	"github.com/tangzhangming/novacore/internal/config"
)

// Coordinator 控制哪些线程可以执行解释循环
type Coordinator interface {
	// Attach 为当前 goroutine 创建线程并取得执行权
	Attach() *Thread
	// Detach 交出执行权并注销线程
	Detach(t *Thread)
	// Checkpoint 处理 DropRequest 与 StopTheWorld 位
	Checkpoint(t *Thread)
	// BeginBlocking 阻塞调用前交出执行权
	BeginBlocking(t *Thread)
	// EndBlocking 阻塞调用后重新取得执行权
	EndBlocking(t *Thread)
	// StopTheWorld 让其他线程在安全点暂停，返回时调用方独占运行
	StopTheWorld(t *Thread)
	// StartTheWorld 恢复其他线程
	StartTheWorld(t *Thread)
	// SignalAll 在所有线程上置中断位
	SignalAll(bit uint32)
	Mode() config.Mode
	Stats() Stats
}

// Stats 协调器统计
type Stats struct {
	Mode           config.Mode   `json:"mode"`
	Threads        int           `json:"threads"`
	Switches       int64         `json:"switches"`
	ForcedSwitches int64         `json:"forced_switches"`
	DropRequests   int64         `json:"drop_requests"`
	STWCount       int64         `json:"stw_count"`
	STWTotal       time.Duration `json:"stw_total_ns"`
	STWMax         time.Duration `json:"stw_max_ns"`
}

// New 按配置创建协调器
func New(cfg config.ConcurrencyConfig, logger *zap.Logger) Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	SetHandoffAfter(cfg.HandoffAfter.Duration)
	SetDebugLocks(cfg.DebugLocks)
	if cfg.Mode == config.ModeFree {
		return NewFreeThreaded(logger)
	}
	return NewSingleLock(cfg.SwitchInterval.Duration, logger)
}
