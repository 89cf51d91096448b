// Package bytecode 定义编译单元：指令、常量、代码对象，以及它们的校验、编解码与汇编
package bytecode

import "fmt"

// OpCode 操作码类型
//
// 编码固定，序列化的编译单元依赖这些数值。
type OpCode uint8

const (
	// 栈操作
	OpNop      OpCode = iota // 空操作
	OpPopTop                 // 弹出栈顶
	OpRotTwo                 // 交换栈顶两个元素
	OpRotThree               // 栈顶移到第三位
	OpDupTop                 // 复制栈顶

	// 常量与变量
	OpLoadConst   // 压入常量 (arg: 常量下标)
	OpLoadFast    // 加载局部变量 (arg: 槽位)
	OpStoreFast   // 存储局部变量 (arg: 槽位)
	OpDeleteFast  // 删除局部变量 (arg: 槽位)
	OpLoadGlobal  // 加载全局变量，找不到时查内建 (arg: 名字下标)
	OpStoreGlobal // 存储全局变量 (arg: 名字下标)

	// 运算
	OpUnaryNegative     // 取负
	OpUnaryNot          // 逻辑非
	OpBinaryAdd         // 加
	OpBinarySubtract    // 减
	OpBinaryMultiply    // 乘
	OpBinaryFloorDivide // 整除
	OpBinaryModulo      // 取模
	OpCompareOp         // 比较 (arg: 比较运算符)
	OpIsOp              // 同一性 (arg: 1 表示 is not)
	OpContainsOp        // 成员 (arg: 1 表示 not in)

	// 容器
	OpBuildList    // 创建列表 (arg: 元素个数)
	OpBuildTuple   // 创建元组 (arg: 元素个数)
	OpBuildMap     // 创建字典 (arg: 键值对个数)
	OpListAppend   // 追加到栈中第 arg 个位置的列表 (arg: 深度)
	OpBinarySubscr // TOS1[TOS]
	OpStoreSubscr  // TOS1[TOS] = TOS2

	// 跳转（目标为指令下标）
	OpJumpAbsolute   // 无条件跳转
	OpPopJumpIfFalse // 弹出，为假时跳转
	OpPopJumpIfTrue  // 弹出，为真时跳转
	OpGetIter        // 栈顶替换为迭代器
	OpForIter        // 取下一个元素；耗尽时弹出迭代器并跳转

	// 块
	OpSetupLoop         // 压入循环块 (arg: 循环出口)
	OpBreakLoop         // 跳出最近的循环
	OpContinueLoop      // 继续最近的循环 (arg: 循环开始)
	OpPopBlock          // 弹出块
	OpSetupExcept       // 压入异常块 (arg: 处理器)
	OpSetupFinally      // 压入 finally 块 (arg: 处理器)
	OpEndFinally        // 结束 finally：按栈顶恢复挂起的动作
	OpPopExcept         // 结束 except 处理器
	OpJumpIfNotExcMatch // 弹出两个值，异常不匹配时跳转
	OpRaiseVarargs      // 抛出 (arg: 0 表示重新抛出当前异常)

	// 函数
	OpMakeFunction // 用栈顶的代码对象创建函数
	OpCallFunction // 调用 (arg: 参数个数)
	OpReturnValue  // 返回栈顶

	numOpcodes
)

// NumOpcodes 操作码个数
const NumOpcodes = int(numOpcodes)

var opNames = [numOpcodes]string{
	OpNop:               "NOP",
	OpPopTop:            "POP_TOP",
	OpRotTwo:            "ROT_TWO",
	OpRotThree:          "ROT_THREE",
	OpDupTop:            "DUP_TOP",
	OpLoadConst:         "LOAD_CONST",
	OpLoadFast:          "LOAD_FAST",
	OpStoreFast:         "STORE_FAST",
	OpDeleteFast:        "DELETE_FAST",
	OpLoadGlobal:        "LOAD_GLOBAL",
	OpStoreGlobal:       "STORE_GLOBAL",
	OpUnaryNegative:     "UNARY_NEGATIVE",
	OpUnaryNot:          "UNARY_NOT",
	OpBinaryAdd:         "BINARY_ADD",
	OpBinarySubtract:    "BINARY_SUBTRACT",
	OpBinaryMultiply:    "BINARY_MULTIPLY",
	OpBinaryFloorDivide: "BINARY_FLOOR_DIVIDE",
	OpBinaryModulo:      "BINARY_MODULO",
	OpCompareOp:         "COMPARE_OP",
	OpIsOp:              "IS_OP",
	OpContainsOp:        "CONTAINS_OP",
	OpBuildList:         "BUILD_LIST",
	OpBuildTuple:        "BUILD_TUPLE",
	OpBuildMap:          "BUILD_MAP",
	OpListAppend:        "LIST_APPEND",
	OpBinarySubscr:      "BINARY_SUBSCR",
	OpStoreSubscr:       "STORE_SUBSCR",
	OpJumpAbsolute:      "JUMP_ABSOLUTE",
	OpPopJumpIfFalse:    "POP_JUMP_IF_FALSE",
	OpPopJumpIfTrue:     "POP_JUMP_IF_TRUE",
	OpGetIter:           "GET_ITER",
	OpForIter:           "FOR_ITER",
	OpSetupLoop:         "SETUP_LOOP",
	OpBreakLoop:         "BREAK_LOOP",
	OpContinueLoop:      "CONTINUE_LOOP",
	OpPopBlock:          "POP_BLOCK",
	OpSetupExcept:       "SETUP_EXCEPT",
	OpSetupFinally:      "SETUP_FINALLY",
	OpEndFinally:        "END_FINALLY",
	OpPopExcept:         "POP_EXCEPT",
	OpJumpIfNotExcMatch: "JUMP_IF_NOT_EXC_MATCH",
	OpRaiseVarargs:      "RAISE_VARARGS",
	OpMakeFunction:      "MAKE_FUNCTION",
	OpCallFunction:      "CALL_FUNCTION",
	OpReturnValue:       "RETURN_VALUE",
}

var opByName map[string]OpCode

func init() {
	opByName = make(map[string]OpCode, numOpcodes)
	for op, name := range opNames {
		opByName[name] = OpCode(op)
	}
}

func (op OpCode) String() string {
	if op < numOpcodes {
		return opNames[op]
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(op))
}

// Valid 是否为已定义的操作码
func (op OpCode) Valid() bool {
	return op < numOpcodes
}

// Lookup 按名字查找操作码
func Lookup(name string) (OpCode, bool) {
	op, ok := opByName[name]
	return op, ok
}

// HasArg 操作码是否使用参数
func (op OpCode) HasArg() bool {
	switch op {
	case OpLoadConst, OpLoadFast, OpStoreFast, OpDeleteFast, OpLoadGlobal, OpStoreGlobal,
		OpCompareOp, OpIsOp, OpContainsOp,
		OpBuildList, OpBuildTuple, OpBuildMap, OpListAppend,
		OpRaiseVarargs, OpCallFunction:
		return true
	}
	return op.IsJump()
}

// IsJump 参数是否为跳转目标
func (op OpCode) IsJump() bool {
	switch op {
	case OpJumpAbsolute, OpPopJumpIfFalse, OpPopJumpIfTrue, OpForIter,
		OpSetupLoop, OpContinueLoop, OpSetupExcept, OpSetupFinally, OpJumpIfNotExcMatch:
		return true
	}
	return false
}

// 比较运算符编码（OpCompareOp 的参数）
const (
	CmpLT = iota
	CmpLE
	CmpEQ
	CmpNE
	CmpGT
	CmpGE
)

var cmpNames = [...]string{"<", "<=", "==", "!=", ">", ">="}

// CompareName 返回比较运算符的符号
func CompareName(arg int32) string {
	if arg >= 0 && int(arg) < len(cmpNames) {
		return cmpNames[arg]
	}
	return "?"
}

// ============================================================================
// 编译单元
// ============================================================================

// Instruction 一条指令
type Instruction struct {
	Op  OpCode `cbor:"1,keyasint"`
	Arg int32  `cbor:"2,keyasint,omitempty"`
}

func (in Instruction) String() string {
	if in.Op.HasArg() {
		return fmt.Sprintf("%s %d", in.Op, in.Arg)
	}
	return in.Op.String()
}

// ConstKind 常量种类
type ConstKind uint8

const (
	ConstNone ConstKind = iota
	ConstBool           // 值在 Int 中（0 或 1）
	ConstInt
	ConstStr
	ConstCode
)

// Const 常量池中的一项
type Const struct {
	Kind ConstKind `cbor:"1,keyasint"`
	Int  int64     `cbor:"2,keyasint,omitempty"`
	Str  string    `cbor:"3,keyasint,omitempty"`
	Code *Code     `cbor:"4,keyasint,omitempty"`
}

func (c Const) String() string {
	switch c.Kind {
	case ConstNone:
		return "None"
	case ConstBool:
		if c.Int != 0 {
			return "True"
		}
		return "False"
	case ConstInt:
		return fmt.Sprintf("%d", c.Int)
	case ConstStr:
		return fmt.Sprintf("%q", c.Str)
	case ConstCode:
		if c.Code != nil {
			return fmt.Sprintf("<code %s>", c.Code.Name)
		}
		return "<code ?>"
	}
	return fmt.Sprintf("<const kind %d>", c.Kind)
}

// Code 代码对象：一个模块体或函数体
type Code struct {
	Name         string        `cbor:"1,keyasint"`
	Filename     string        `cbor:"2,keyasint,omitempty"`
	FirstLine    int           `cbor:"3,keyasint,omitempty"`
	Instructions []Instruction `cbor:"4,keyasint"`
	Lines        []int         `cbor:"5,keyasint,omitempty"` // 与 Instructions 一一对应
	Consts       []Const       `cbor:"6,keyasint,omitempty"`
	Names        []string      `cbor:"7,keyasint,omitempty"`
	VarNames     []string      `cbor:"8,keyasint,omitempty"`
	ArgCount     int           `cbor:"9,keyasint,omitempty"`
	NLocals      int           `cbor:"10,keyasint,omitempty"`
	MaxStack     int           `cbor:"11,keyasint,omitempty"`
}

// Line 返回第 ip 条指令的源码行号
func (c *Code) Line(ip int) int {
	if ip >= 0 && ip < len(c.Lines) {
		return c.Lines[ip]
	}
	return c.FirstLine
}

// Len 返回指令条数
func (c *Code) Len() int {
	return len(c.Instructions)
}
