package main

import (
	"os"

	"github.com/tangzhangming/novacore/internal/i18n"
)

// Language 语言类型，与运行时诊断共用
type Language = i18n.Language

const (
	LangEnglish = i18n.LangEnglish
	LangChinese = i18n.LangChinese
)

// Messages 消息结构
type Messages struct {
	// 版本信息
	VersionTitle string
	VersionDesc  string

	// 帮助信息
	HelpUsage    string
	HelpCommands string
	HelpOptions  string
	HelpExamples string

	// 命令描述
	CmdRun     string
	CmdAsm     string
	CmdDis     string
	CmdVersion string
	CmdHelp    string

	// 运行选项
	OptConfig  string
	OptMode    string
	OptThreads string
	OptStats   string
	OptProfile string
	OptJSON    string
	OptOutput  string
	OptLang    string

	// 错误信息
	ErrNoInput    string
	ErrReadFile   string
	ErrUnknownCmd string
	ErrLoad       string
	ErrConfig     string
	ErrAssemble   string
	ErrRuntime    string
	ErrWriteFile  string

	// 成功信息
	SuccessAsmComplete string

	// 统计
	StatsTitle   string
	ProfileTitle string
}

// 英文消息
var messagesEN = Messages{
	VersionTitle: "Novacore Bytecode VM v%s",
	VersionDesc:  "A reference-counted bytecode interpreter with a generational cycle collector",

	HelpUsage:    "Usage:",
	HelpCommands: "Commands:",
	HelpOptions:  "Run Options:",
	HelpExamples: "Examples:",

	CmdRun:     "Run an assembly source or compiled unit",
	CmdAsm:     "Assemble to a compiled unit",
	CmdDis:     "Disassemble a unit",
	CmdVersion: "Show version information",
	CmdHelp:    "Show this help message",

	OptConfig:  "Config file path (default: nearest novacore.toml)",
	OptMode:    "Concurrency mode: single or free",
	OptThreads: "Run the unit on n threads sharing globals",
	OptStats:   "Print interpreter statistics on exit",
	OptProfile: "Record and print an execution profile",
	OptJSON:    "Print statistics and profile as JSON",
	OptOutput:  "Output file path",
	OptLang:    "Set language (en/zh)",

	ErrNoInput:    "Error: no input file specified",
	ErrReadFile:   "Error reading file: %v",
	ErrUnknownCmd: "Unknown command: %s",
	ErrLoad:       "Error loading %s: %v",
	ErrConfig:     "Configuration error: %v",
	ErrAssemble:   "Assembly errors:",
	ErrRuntime:    "Error: %v",
	ErrWriteFile:  "Error writing file: %v",

	SuccessAsmComplete: "✓ Assembled %s (%d bytes)",

	StatsTitle:   "=== Statistics ===",
	ProfileTitle: "=== Profile ===",
}

// 中文消息
var messagesZH = Messages{
	VersionTitle: "Novacore 字节码虚拟机 v%s",
	VersionDesc:  "引用计数的字节码解释器，带分代循环回收器",

	HelpUsage:    "用法:",
	HelpCommands: "命令:",
	HelpOptions:  "运行选项:",
	HelpExamples: "示例:",

	CmdRun:     "运行汇编源码或编译产物",
	CmdAsm:     "汇编为编译产物",
	CmdDis:     "反汇编",
	CmdVersion: "显示版本信息",
	CmdHelp:    "显示帮助信息",

	OptConfig:  "配置文件路径（默认查找最近的 novacore.toml）",
	OptMode:    "并发模式：single 或 free",
	OptThreads: "在 n 个共享全局名字空间的线程上运行",
	OptStats:   "退出时打印解释器统计",
	OptProfile: "记录并打印执行档案",
	OptJSON:    "以 JSON 打印统计与档案",
	OptOutput:  "输出文件路径",
	OptLang:    "设置语言 (en/zh)",

	ErrNoInput:    "错误: 未指定输入文件",
	ErrReadFile:   "读取文件错误: %v",
	ErrUnknownCmd: "未知命令: %s",
	ErrLoad:       "加载 %s 失败: %v",
	ErrConfig:     "配置错误: %v",
	ErrAssemble:   "汇编错误:",
	ErrRuntime:    "运行时错误: %v",
	ErrWriteFile:  "写入文件错误: %v",

	SuccessAsmComplete: "✓ 汇编完成 %s (%d 字节)",

	StatsTitle:   "=== 统计 ===",
	ProfileTitle: "=== 执行档案 ===",
}

// 当前消息
var msg = messagesEN

// 当前语言
var currentLang = LangEnglish

// InitLanguage 初始化语言设置
// 优先级: 命令行参数 > 环境变量 NOVACORE_LANG > 操作系统语言 > 默认英文
func InitLanguage(langOverride string) {
	if langOverride != "" {
		setLanguage(langOverride)
		return
	}

	if l, ok := i18n.ParseLanguage(os.Getenv(i18n.EnvLanguage)); ok {
		useLanguage(l)
		return
	}

	if detectChineseOS() {
		useLanguage(LangChinese)
		return
	}

	useLanguage(LangEnglish)
}

// setLanguage 按名称或区域设置字符串设置语言，无法识别时使用英文
func setLanguage(lang string) {
	l, _ := i18n.ParseLanguage(lang)
	useLanguage(l)
}

// useLanguage 同时切换命令行消息与运行时诊断的语言
func useLanguage(l Language) {
	i18n.SetLanguage(l)
	currentLang = l
	if l == LangChinese {
		msg = messagesZH
	} else {
		msg = messagesEN
	}
}

// detectChineseOS 检测操作系统是否为中文环境
func detectChineseOS() bool {
	if systemLocaleChinese() {
		return true
	}
	// Unix/Linux/Mac: 看区域设置变量
	l, ok := i18n.FromEnv(os.Getenv)
	return ok && l == LangChinese
}

// GetLanguage 获取当前语言
func GetLanguage() Language {
	return currentLang
}

// Msg 获取当前消息对象
func Msg() *Messages {
	return &msg
}
