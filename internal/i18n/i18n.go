// Package i18n 提供运行时诊断信息的多语言支持
package i18n

import (
	"fmt"
	"strings"
	"sync"
)

// Language 语言类型
type Language string

const (
	LangEnglish Language = "en"
	LangChinese Language = "zh"
)

// EnvLanguage 指定诊断语言的环境变量
const EnvLanguage = "NOVACORE_LANG"

// localeVars 区域设置变量，按 POSIX 优先级排列
var localeVars = []string{"LC_ALL", "LC_MESSAGES", "LANG", "LANGUAGE"}

// 全局语言设置
var (
	currentLang Language = LangEnglish
	mu          sync.RWMutex
)

// SetLanguage 设置当前语言
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()
	currentLang = lang
}

// GetLanguage 获取当前语言
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// ParseLanguage 解析语言名或区域设置字符串
//
// 接受 zh、zh-CN、zh_TW.UTF-8、chinese、en_US 以及 LANGUAGE 的 zh_CN:en 列表写法。
// 无法识别（包括 C 与 POSIX）时返回英文和 false。
func ParseLanguage(s string) (Language, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(s, ".@:"); i >= 0 {
		s = s[:i]
	}
	base, _, _ := strings.Cut(strings.ReplaceAll(s, "_", "-"), "-")
	switch base {
	case "zh", "chinese":
		return LangChinese, true
	case "en", "english":
		return LangEnglish, true
	}
	return LangEnglish, false
}

// SetLanguageFromString 从字符串设置语言，无法识别时使用英文
func SetLanguageFromString(lang string) bool {
	l, ok := ParseLanguage(lang)
	SetLanguage(l)
	return ok
}

// FromEnv 依次查看 NOVACORE_LANG 与区域设置变量确定语言
//
// 区域设置变量只看第一个非空的。getenv 通常传 os.Getenv。
func FromEnv(getenv func(string) string) (Language, bool) {
	if l, ok := ParseLanguage(getenv(EnvLanguage)); ok {
		return l, true
	}
	for _, name := range localeVars {
		if v := getenv(name); v != "" {
			return ParseLanguage(v)
		}
	}
	return LangEnglish, false
}

// T 翻译消息（支持格式化参数）
//
// 当前语言缺少的消息回退到英文，都没有时返回原始 ID。
func T(msgID string, args ...interface{}) string {
	msg, ok := lookup(GetLanguage(), msgID)
	if !ok {
		return msgID
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

func lookup(lang Language, msgID string) (string, bool) {
	if lang == LangChinese {
		if msg, ok := messagesZH[msgID]; ok {
			return msg, true
		}
	}
	msg, ok := messagesEN[msgID]
	return msg, ok
}
