package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble 反汇编代码对象及其嵌套的代码常量
func Disassemble(code *Code) string {
	var sb strings.Builder
	sb.Grow(len(code.Instructions) * 32)
	seen := make(map[*Code]bool)
	disassemble(&sb, code, seen)
	return sb.String()
}

func disassemble(sb *strings.Builder, code *Code, seen map[*Code]bool) {
	if seen[code] {
		return
	}
	seen[code] = true

	fmt.Fprintf(sb, "=== %s (%s:%d) ===\n", code.Name, code.Filename, code.FirstLine)
	fmt.Fprintf(sb, "args=%d locals=%d stack=%d\n", code.ArgCount, code.NLocals, code.MaxStack)

	targets := make(map[int]bool)
	for _, in := range code.Instructions {
		if in.Op.IsJump() {
			targets[int(in.Arg)] = true
		}
	}

	for ip, in := range code.Instructions {
		// 行号与上一条相同时只画竖线
		if ip > 0 && code.Line(ip) == code.Line(ip-1) {
			sb.WriteString("   | ")
		} else {
			fmt.Fprintf(sb, "%4d ", code.Line(ip))
		}
		if targets[ip] {
			sb.WriteString(">> ")
		} else {
			sb.WriteString("   ")
		}
		fmt.Fprintf(sb, "%04d %-22s", ip, in.Op)
		if in.Op.HasArg() {
			fmt.Fprintf(sb, " %d", in.Arg)
			if note := annotate(code, in); note != "" {
				fmt.Fprintf(sb, " (%s)", note)
			}
		}
		sb.WriteByte('\n')
	}

	for _, c := range code.Consts {
		if c.Kind == ConstCode && c.Code != nil {
			sb.WriteByte('\n')
			disassemble(sb, c.Code, seen)
		}
	}
}

func annotate(code *Code, in Instruction) string {
	arg := int(in.Arg)
	switch in.Op {
	case OpLoadConst:
		if arg >= 0 && arg < len(code.Consts) {
			return code.Consts[arg].String()
		}
	case OpLoadFast, OpStoreFast, OpDeleteFast:
		if arg >= 0 && arg < len(code.VarNames) {
			return code.VarNames[arg]
		}
	case OpLoadGlobal, OpStoreGlobal:
		if arg >= 0 && arg < len(code.Names) {
			return code.Names[arg]
		}
	case OpCompareOp:
		return CompareName(in.Arg)
	case OpIsOp:
		if arg == 1 {
			return "is not"
		}
		return "is"
	case OpContainsOp:
		if arg == 1 {
			return "not in"
		}
		return "in"
	}
	if in.Op.IsJump() {
		return fmt.Sprintf("to %d", arg)
	}
	return ""
}
