//go:build windows

package main

import (
	"golang.org/x/sys/windows"

	"github.com/tangzhangming/novacore/internal/i18n"
)

// systemLocaleChinese 使用 Windows API 检测用户界面语言是否为中文
func systemLocaleChinese() bool {
	langs, err := windows.GetUserPreferredUILanguages(windows.MUI_LANGUAGE_NAME)
	if err != nil || len(langs) == 0 {
		return false
	}
	// zh-CN / zh-TW / zh-HK / zh-MO
	l, ok := i18n.ParseLanguage(langs[0])
	return ok && l == i18n.LangChinese
}
