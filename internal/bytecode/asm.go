package bytecode

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/multierr"
)

// ============================================================================
// 文本汇编器
// ============================================================================
//
// 语法（按行）：
//
//	; 注释
//	.func name a b        函数开始，a b 为参数
//	.locals x y           其余局部变量
//	.stack 8              声明最大栈深度（省略时由校验器计算）
//	.end                  函数结束
//	label:                标签
//	LOAD_CONST 1          常量：整数、"字符串"、None、True、False、@函数名
//	LOAD_FAST x           局部变量名或槽位
//	LOAD_GLOBAL print     全局名
//	COMPARE_OP <          比较符号
//	JUMP_ABSOLUTE label   跳转到标签
//
// .func 之外的指令属于模块代码。代码末尾可能顺序执行时自动补上 return None。

// AsmError 汇编错误
type AsmError struct {
	File string
	Line int
	Msg  string
}

func (e *AsmError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// ModuleName 模块代码对象的名字
const ModuleName = "<module>"

type asmOperand struct {
	text string
	line int
}

type asmInstr struct {
	op      OpCode
	operand *asmOperand
	line    int
}

type asmFunc struct {
	code   *Code
	instrs []asmInstr
	labels map[string]int
	locals map[string]int
	consts map[Const]int
	names  map[string]int
	refs   map[int]string // 常量下标 -> 引用的函数名
	line   int
	stack  int
}

func newAsmFunc(name, file string, line int) *asmFunc {
	return &asmFunc{
		code:   &Code{Name: name, Filename: file, FirstLine: line},
		labels: make(map[string]int),
		locals: make(map[string]int),
		consts: make(map[Const]int),
		names:  make(map[string]int),
		refs:   make(map[int]string),
		line:   line,
	}
}

func (f *asmFunc) addLocal(name string) bool {
	if _, dup := f.locals[name]; dup {
		return false
	}
	f.locals[name] = len(f.code.VarNames)
	f.code.VarNames = append(f.code.VarNames, name)
	f.code.NLocals = len(f.code.VarNames)
	return true
}

func (f *asmFunc) addConst(c Const) int32 {
	if c.Kind != ConstCode {
		if i, ok := f.consts[c]; ok {
			return int32(i)
		}
		f.consts[c] = len(f.code.Consts)
	}
	f.code.Consts = append(f.code.Consts, c)
	return int32(len(f.code.Consts) - 1)
}

func (f *asmFunc) addName(name string) int32 {
	if i, ok := f.names[name]; ok {
		return int32(i)
	}
	f.names[name] = len(f.code.Names)
	f.code.Names = append(f.code.Names, name)
	return int32(len(f.code.Names) - 1)
}

type assembler struct {
	file   string
	module *asmFunc
	funcs  map[string]*asmFunc
	order  []*asmFunc
	cur    *asmFunc
	err    error
}

func (a *assembler) errorf(line int, format string, args ...interface{}) {
	a.err = multierr.Append(a.err, &AsmError{File: a.file, Line: line, Msg: fmt.Sprintf(format, args...)})
}

// Assemble 汇编文本源码，返回模块代码对象
func Assemble(src, filename string) (*Code, error) {
	a := &assembler{
		file:  filename,
		funcs: make(map[string]*asmFunc),
	}
	a.module = newAsmFunc(ModuleName, filename, 1)
	a.cur = a.module
	a.order = append(a.order, a.module)

	for i, raw := range strings.Split(src, "\n") {
		a.parseLine(i+1, raw)
	}
	if a.cur != a.module {
		a.errorf(a.cur.line, "missing .end for .func %s", a.cur.code.Name)
	}

	for _, f := range a.order {
		a.finish(f)
	}
	if a.err != nil {
		return nil, a.err
	}
	for _, f := range a.order {
		a.link(f)
	}
	if a.err != nil {
		return nil, a.err
	}
	if err := a.checkCycles(); err != nil {
		return nil, err
	}
	if err := Verify(a.module.code); err != nil {
		return nil, err
	}
	return a.module.code, nil
}

// splitFields 按空白切分，保留引号中的字符串，去掉注释
func splitFields(line string) ([]string, error) {
	var fields []string
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == ';' || c == '#':
			return fields, nil
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '"':
			j := i + 1
			for j < len(line) && line[j] != '"' {
				if line[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(line) {
				return nil, fmt.Errorf("unterminated string")
			}
			fields = append(fields, line[i:j+1])
			i = j + 1
		default:
			j := i
			for j < len(line) && !strings.ContainsRune(" \t\r;#", rune(line[j])) {
				j++
			}
			fields = append(fields, line[i:j])
			i = j
		}
	}
	return fields, nil
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

func (a *assembler) parseLine(line int, raw string) {
	fields, err := splitFields(raw)
	if err != nil {
		a.errorf(line, "%v", err)
		return
	}
	if len(fields) == 0 {
		return
	}

	// 标签
	if head := fields[0]; strings.HasSuffix(head, ":") {
		name := strings.TrimSuffix(head, ":")
		if !validIdent(name) {
			a.errorf(line, "bad label %q", name)
		} else if _, dup := a.cur.labels[name]; dup {
			a.errorf(line, "label %q redefined", name)
		} else {
			a.cur.labels[name] = len(a.cur.instrs)
		}
		fields = fields[1:]
		if len(fields) == 0 {
			return
		}
	}

	if strings.HasPrefix(fields[0], ".") {
		a.directive(line, fields)
		return
	}

	op, ok := Lookup(strings.ToUpper(fields[0]))
	if !ok {
		a.errorf(line, "unknown instruction %q", fields[0])
		return
	}
	in := asmInstr{op: op, line: line}
	switch {
	case op.HasArg() && len(fields) != 2:
		a.errorf(line, "%s takes one operand", op)
		return
	case !op.HasArg() && len(fields) != 1:
		a.errorf(line, "%s takes no operand", op)
		return
	}
	if op.HasArg() {
		in.operand = &asmOperand{text: fields[1], line: line}
	}
	a.cur.instrs = append(a.cur.instrs, in)
}

func (a *assembler) directive(line int, fields []string) {
	switch fields[0] {
	case ".func":
		if a.cur != a.module {
			a.errorf(line, ".func inside .func %s", a.cur.code.Name)
			return
		}
		if len(fields) < 2 || !validIdent(fields[1]) {
			a.errorf(line, ".func needs a name")
			return
		}
		name := fields[1]
		if _, dup := a.funcs[name]; dup {
			a.errorf(line, "function %q redefined", name)
			return
		}
		f := newAsmFunc(name, a.file, line)
		for _, p := range fields[2:] {
			if !validIdent(p) || !f.addLocal(p) {
				a.errorf(line, "bad parameter %q", p)
			}
		}
		f.code.ArgCount = len(f.code.VarNames)
		a.funcs[name] = f
		a.order = append(a.order, f)
		a.cur = f
	case ".end":
		if a.cur == a.module {
			a.errorf(line, ".end without .func")
			return
		}
		a.cur = a.module
	case ".locals":
		for _, name := range fields[1:] {
			if !validIdent(name) || !a.cur.addLocal(name) {
				a.errorf(line, "bad local %q", name)
			}
		}
	case ".stack":
		if len(fields) != 2 {
			a.errorf(line, ".stack takes one operand")
			return
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 {
			a.errorf(line, "bad stack size %q", fields[1])
			return
		}
		a.cur.stack = n
	default:
		a.errorf(line, "unknown directive %s", fields[0])
	}
}

// finish 补上隐式返回并解析除函数引用外的操作数
func (a *assembler) finish(f *asmFunc) {
	if n := len(f.instrs); n == 0 || fallsThrough(f.instrs[n-1].op) || a.labelAtEnd(f) {
		line := f.line
		if n > 0 {
			line = f.instrs[n-1].line
		}
		f.instrs = append(f.instrs,
			asmInstr{op: OpLoadConst, operand: &asmOperand{text: "None", line: line}, line: line},
			asmInstr{op: OpReturnValue, line: line})
	}

	code := f.code
	code.Instructions = make([]Instruction, len(f.instrs))
	code.Lines = make([]int, len(f.instrs))
	code.MaxStack = f.stack
	for i, in := range f.instrs {
		code.Lines[i] = in.line
		code.Instructions[i].Op = in.op
		if in.operand == nil {
			continue
		}
		arg, ok := a.operand(f, in.op, in.operand)
		if ok {
			code.Instructions[i].Arg = arg
		}
	}
}

// labelAtEnd 是否有标签指向代码末尾
func (a *assembler) labelAtEnd(f *asmFunc) bool {
	for _, ip := range f.labels {
		if ip == len(f.instrs) {
			return true
		}
	}
	return false
}

func (a *assembler) operand(f *asmFunc, op OpCode, o *asmOperand) (int32, bool) {
	text := o.text
	switch {
	case op == OpLoadConst:
		c, ok := parseConst(text)
		if !ok {
			a.errorf(o.line, "bad constant %s", text)
			return 0, false
		}
		if c.Kind == ConstCode {
			idx := f.addConst(Const{Kind: ConstCode})
			f.refs[int(idx)] = text[1:]
			return idx, true
		}
		return f.addConst(c), true

	case op == OpLoadFast || op == OpStoreFast || op == OpDeleteFast:
		if slot, ok := f.locals[text]; ok {
			return int32(slot), true
		}
		if n, err := strconv.Atoi(text); err == nil {
			return int32(n), true
		}
		a.errorf(o.line, "unknown local %q in %s", text, f.code.Name)
		return 0, false

	case op == OpLoadGlobal || op == OpStoreGlobal:
		if !validIdent(text) {
			a.errorf(o.line, "bad name %q", text)
			return 0, false
		}
		return f.addName(text), true

	case op == OpCompareOp:
		for i, sym := range cmpNames {
			if sym == text {
				return int32(i), true
			}
		}
		a.errorf(o.line, "unknown comparison %q", text)
		return 0, false

	case op.IsJump():
		if ip, ok := f.labels[text]; ok {
			return int32(ip), true
		}
		a.errorf(o.line, "undefined label %q in %s", text, f.code.Name)
		return 0, false
	}

	n, err := strconv.ParseInt(text, 0, 32)
	if err != nil {
		a.errorf(o.line, "%s: bad operand %q", op, text)
		return 0, false
	}
	return int32(n), true
}

func parseConst(text string) (Const, bool) {
	switch text {
	case "None":
		return Const{Kind: ConstNone}, true
	case "True":
		return Const{Kind: ConstBool, Int: 1}, true
	case "False":
		return Const{Kind: ConstBool}, true
	}
	if strings.HasPrefix(text, "\"") {
		s, err := strconv.Unquote(text)
		if err != nil {
			return Const{}, false
		}
		return Const{Kind: ConstStr, Str: s}, true
	}
	if strings.HasPrefix(text, "@") {
		return Const{Kind: ConstCode}, validIdent(text[1:])
	}
	n, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		return Const{}, false
	}
	return Const{Kind: ConstInt, Int: n}, true
}

// link 把 @name 常量指向对应函数的代码对象
func (a *assembler) link(f *asmFunc) {
	for idx, name := range f.refs {
		target, ok := a.funcs[name]
		if !ok {
			a.errorf(f.line, "%s references undefined function %q", f.code.Name, name)
			continue
		}
		f.code.Consts[idx].Code = target.code
	}
}

// checkCycles 代码常量不能形成环（递归通过全局名完成）
func (a *assembler) checkCycles() error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[*Code]int)
	var visit func(c *Code) error
	visit = func(c *Code) error {
		switch color[c] {
		case grey:
			return &AsmError{File: a.file, Line: c.FirstLine, Msg: fmt.Sprintf("function %s contains itself as a constant", c.Name)}
		case black:
			return nil
		}
		color[c] = grey
		for _, k := range c.Consts {
			if k.Kind == ConstCode && k.Code != nil {
				if err := visit(k.Code); err != nil {
					return err
				}
			}
		}
		color[c] = black
		return nil
	}
	return visit(a.module.code)
}
