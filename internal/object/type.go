package object

// TypeFlags 类型标志
type TypeFlags uint32

const (
	HaveGC        TypeFlags = 1 << iota // 可能参与引用环，由回收器跟踪
	Immortal                            // 该类型的实例全部是不朽对象
	BaseException                       // 异常实例类型
	WeakRefable                         // 允许创建弱引用
	Sequence                            // 支持整数下标
)

// BinaryOp 二元运算
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpFloorDiv
	OpMod
)

var binaryOpNames = [...]string{"+", "-", "*", "//", "%"}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return "?"
}

// CompareOp 比较运算
type CompareOp int

const (
	CmpLT CompareOp = iota
	CmpLE
	CmpEQ
	CmpNE
	CmpGT
	CmpGE
)

var compareOpNames = [...]string{"<", "<=", "==", "!=", ">", ">="}

func (op CompareOp) String() string {
	if int(op) < len(compareOpNames) {
		return compareOpNames[op]
	}
	return "?"
}

// Type 类型描述符（虚表）
//
// 类型描述符是静态共享、永不释放的。Dealloc 必须释放对象持有的全部引用；
// 持有引用的容器类型必须同时提供 Traverse 与 Clear，否则回收器无法发现其中的环。
// 值语义相关的槽位可以为 nil，解释循环据此报告 TypeError。
type Type struct {
	Name      string
	BasicSize int
	ItemSize  int
	Flags     TypeFlags

	Dealloc  func(t *Thread, o Object)
	Traverse func(o Object, visit func(Object) error) error
	Clear    func(t *Thread, o Object) error

	Repr  func(o Object, p *Printer)
	Str   func(o Object) string
	Truth func(o Object) bool
	Hash  func(o Object) (Key, bool)

	// Binary 与 Compare 返回 (nil, nil) 表示不支持该组合
	Binary  func(t *Thread, op BinaryOp, a, b Object) (Object, error)
	Compare func(t *Thread, op CompareOp, a, b Object) (Object, error)

	Call     func(t *Thread, callee Object, args []Object) (Object, error)
	GetItem  func(t *Thread, o, key Object) (Object, error)
	SetItem  func(t *Thread, o, key, value Object) error
	Contains func(t *Thread, o, item Object) (bool, error)
	Len      func(o Object) int
	Iter     func(t *Thread, o Object) (Object, error)
	// Next 返回 (nil, nil) 表示迭代结束
	Next func(t *Thread, o Object) (Object, error)
}

// HasFlag 检查类型标志
func (typ *Type) HasFlag(f TypeFlags) bool {
	return typ.Flags&f != 0
}

// Size 返回 n 个元素时的实例字节数
func (typ *Type) Size(n int) int {
	return typ.BasicSize + typ.ItemSize*n
}

// Key 字典键
type Key struct {
	kind byte
	s    string
	i    int64
}

const (
	keyInt byte = iota + 1
	keyStr
	keyNone
)
