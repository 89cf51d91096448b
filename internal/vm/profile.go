package vm

import (
	"sort"
	"sync"

	"go.uber.org/atomic"

	"github.com/tangzhangming/novacore/internal/bytecode"
)

// ============================================================================
// 执行档案
// ============================================================================

// 热点阈值
const (
	FunctionHotThreshold = 10000 // 函数调用 10000 次视为热点
	LoopHotThreshold     = 1000  // 回边执行 1000 次视为热循环
)

// HotspotState 热点状态
type HotspotState byte

const (
	HotspotCold HotspotState = iota // 冷代码
	HotspotWarm                     // 温代码（接近热点）
	HotspotHot                      // 热点代码
)

var hotspotNames = [...]string{"cold", "warm", "hot"}

func (s HotspotState) String() string {
	if int(s) < len(hotspotNames) {
		return hotspotNames[s]
	}
	return "unknown"
}

// MarshalText 实现 encoding.TextMarshaler
func (s HotspotState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func hotspotOf(count, threshold int64) HotspotState {
	switch {
	case count >= threshold:
		return HotspotHot
	case count >= threshold/10:
		return HotspotWarm
	}
	return HotspotCold
}

// FunctionProfile 函数档案
type FunctionProfile struct {
	Name  string       `json:"name"`
	File  string       `json:"file"`
	Calls int64        `json:"calls"`
	State HotspotState `json:"state"`
}

// LoopProfile 循环档案（以回边目标标识）
type LoopProfile struct {
	Function  string       `json:"function"`
	HeaderIP  int          `json:"header_ip"`
	Backedges int64        `json:"backedges"`
	State     HotspotState `json:"state"`
}

// OpcodeCount 操作码执行次数
type OpcodeCount struct {
	Op    string `json:"op"`
	Count int64  `json:"count"`
}

// ProfileReport 档案快照
type ProfileReport struct {
	Opcodes   []OpcodeCount     `json:"opcodes"`
	Functions []FunctionProfile `json:"functions"`
	Loops     []LoopProfile     `json:"loops"`
}

type loopKey struct {
	code     *bytecode.Code
	headerIP int
}

// Profile 解释器范围的执行档案，所有线程共享
type Profile struct {
	ops [bytecode.NumOpcodes]atomic.Int64

	mu    sync.Mutex
	funcs map[*bytecode.Code]*atomic.Int64
	loops map[loopKey]*atomic.Int64
}

func newProfile() *Profile {
	return &Profile{
		funcs: make(map[*bytecode.Code]*atomic.Int64),
		loops: make(map[loopKey]*atomic.Int64),
	}
}

// WithProfile 开启执行档案
func WithProfile(on bool) Option {
	return func(in *Interpreter) {
		if on {
			in.profile = newProfile()
		}
	}
}

// Profile 返回执行档案，未开启时为 nil
func (in *Interpreter) Profile() *Profile {
	return in.profile
}

func (p *Profile) recordOp(op bytecode.OpCode) {
	p.ops[op].Inc()
}

func (p *Profile) recordCall(code *bytecode.Code) {
	p.counter(p.funcs, code).Inc()
}

func (p *Profile) recordBackedge(code *bytecode.Code, target int) {
	p.mu.Lock()
	c, ok := p.loops[loopKey{code, target}]
	if !ok {
		c = new(atomic.Int64)
		p.loops[loopKey{code, target}] = c
	}
	p.mu.Unlock()
	c.Inc()
}

func (p *Profile) counter(m map[*bytecode.Code]*atomic.Int64, code *bytecode.Code) *atomic.Int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := m[code]
	if !ok {
		c = new(atomic.Int64)
		m[code] = c
	}
	return c
}

// Report 返回按次数降序排列的快照
func (p *Profile) Report() ProfileReport {
	var r ProfileReport
	for op := range p.ops {
		if n := p.ops[op].Load(); n > 0 {
			r.Opcodes = append(r.Opcodes, OpcodeCount{Op: bytecode.OpCode(op).String(), Count: n})
		}
	}
	sort.Slice(r.Opcodes, func(i, j int) bool { return r.Opcodes[i].Count > r.Opcodes[j].Count })

	p.mu.Lock()
	for code, c := range p.funcs {
		n := c.Load()
		r.Functions = append(r.Functions, FunctionProfile{
			Name:  code.Name,
			File:  code.Filename,
			Calls: n,
			State: hotspotOf(n, FunctionHotThreshold),
		})
	}
	for k, c := range p.loops {
		n := c.Load()
		r.Loops = append(r.Loops, LoopProfile{
			Function:  k.code.Name,
			HeaderIP:  k.headerIP,
			Backedges: n,
			State:     hotspotOf(n, LoopHotThreshold),
		})
	}
	p.mu.Unlock()

	sort.Slice(r.Functions, func(i, j int) bool {
		if r.Functions[i].Calls != r.Functions[j].Calls {
			return r.Functions[i].Calls > r.Functions[j].Calls
		}
		return r.Functions[i].Name < r.Functions[j].Name
	})
	sort.Slice(r.Loops, func(i, j int) bool { return r.Loops[i].Backedges > r.Loops[j].Backedges })
	return r
}
