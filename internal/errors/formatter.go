package errors

import (
	"fmt"
	"strings"

	"github.com/tangzhangming/novacore/internal/i18n"
)

// TraceEntry 回溯中的一帧
type TraceEntry struct {
	Function string
	File     string
	Line     int
}

// Formatter 未捕获异常格式化器
type Formatter struct {
	color bool
}

// NewFormatter 创建格式化器
func NewFormatter() *Formatter {
	return &Formatter{color: ColorsEnabled()}
}

// NewPlainFormatter 创建不带颜色的格式化器
func NewPlainFormatter() *Formatter {
	return &Formatter{}
}

// FormatUncaught 格式化未捕获异常
//
// entries 按调用顺序排列（最外层在前）。
func (f *Formatter) FormatUncaught(typeName, message string, entries []TraceEntry) string {
	var sb strings.Builder

	header := i18n.T(i18n.MsgTraceback)
	sb.WriteString(f.paint(header, ColorBoldWhite))
	sb.WriteByte('\n')

	for _, e := range entries {
		loc := fmt.Sprintf("  %s:%d", e.File, e.Line)
		sb.WriteString(f.paint(loc, ColorCyan))
		sb.WriteString(" in ")
		sb.WriteString(e.Function)
		sb.WriteByte('\n')
	}

	sb.WriteString(f.paint(typeName, ColorBoldRed))
	if message != "" {
		sb.WriteString(": ")
		sb.WriteString(message)
	}
	sb.WriteByte('\n')
	return sb.String()
}

func (f *Formatter) paint(s string, c Color) string {
	if !f.color {
		return s
	}
	code, ok := ansiCodes[c]
	if !ok {
		return s
	}
	return code + s + ansiCodes[ColorReset]
}
