package errors

import (
	"os"
	"strings"
)

// Color 终端颜色
type Color int

const (
	ColorReset Color = iota
	ColorRed
	ColorYellow
	ColorCyan
	ColorBoldRed
	ColorBoldWhite
)

// ANSI 颜色代码
var ansiCodes = map[Color]string{
	ColorReset:     "\033[0m",
	ColorRed:       "\033[31m",
	ColorYellow:    "\033[33m",
	ColorCyan:      "\033[36m",
	ColorBoldRed:   "\033[1;31m",
	ColorBoldWhite: "\033[1;37m",
}

// colorsEnabled 是否启用颜色
var colorsEnabled = detectColorSupport()

// detectColorSupport 检测终端是否支持颜色
func detectColorSupport() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	term := os.Getenv("TERM")
	if term == "dumb" {
		return false
	}

	// 检查标准错误是否为 TTY（诊断信息都写到 stderr）
	if fileInfo, err := os.Stderr.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) != 0 {
			return true
		}
	}

	if os.Getenv("COLORTERM") != "" {
		return true
	}

	for _, ct := range []string{"xterm", "screen", "vt100", "linux", "ansi"} {
		if strings.Contains(strings.ToLower(term), ct) {
			return true
		}
	}

	return false
}

// SetColorsEnabled 设置颜色启用状态
func SetColorsEnabled(enabled bool) {
	colorsEnabled = enabled
}

// ColorsEnabled 检查颜色是否启用
func ColorsEnabled() bool {
	return colorsEnabled
}

// Colorize 着色字符串
func Colorize(s string, color Color) string {
	if !colorsEnabled {
		return s
	}
	code, ok := ansiCodes[color]
	if !ok {
		return s
	}
	return code + s + ansiCodes[ColorReset]
}

// Strip 移除 ANSI 颜色代码
func Strip(s string) string {
	result := s
	for _, code := range ansiCodes {
		result = strings.ReplaceAll(result, code, "")
	}
	return result
}
