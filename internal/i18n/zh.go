package i18n

var messagesZH = map[string]string{
	// ========== 虚拟机 ==========
	MsgTraceback:          "回溯（最近的调用在最后）:",
	ErrUncaughtException:  "未捕获的异常: %s",
	ErrUnknownOpcode:      "未知操作码 %d",
	ErrIPOutOfBounds:      "指令指针 %d 越界",
	ErrIndexOutOfRange:    "%s 索引越界",
	ErrKeyNotFound:        "%s",
	ErrNotSubscriptable:   "'%s' 对象不支持下标访问",
	ErrNotIterable:        "'%s' 对象不可迭代",
	ErrDivisionByZero:     "整数除法或取模的除数为零",
	ErrUnsupportedOperand: "%s 不支持的操作数类型: '%s' 和 '%s'",
	ErrUnorderable:        "'%s' 不支持 '%s' 与 '%s' 之间的比较",
	ErrNotCallable:        "'%s' 对象不可调用",
	ErrArgumentCount:      "%s() 需要 %d 个位置参数，但传入了 %d 个",
	ErrUndefinedName:      "名称 '%s' 未定义",
	ErrUnboundLocal:       "局部变量 '%s' 在赋值前被引用",
	ErrRecursionLimit:     "超过最大递归深度",
	ErrTooManyBlocks:      "静态嵌套块过多",
	ErrNoActiveException:  "没有可重新抛出的活动异常",
	ErrNotAnException:     "异常必须派生自 BaseException",
	ErrBadExceptMatch:     "不允许捕获未继承 BaseException 的类",
	ErrNoMemory:           "内存不足",
	ErrInterrupted:        "已中断",
	ErrUnhashable:         "不可哈希的类型: '%s'",
	ErrNoLen:              "'%s' 类型的对象没有 len()",
	ErrBadArgument:        "%s() 的参数必须是 %s，而不是 '%s'",
	ErrBadIndex:           "%s 的下标必须是整数，而不是 '%s'",
	ErrOverflow:           "整数运算 %s 溢出",
	ErrNegativeCount:      "不能用负数 %d 重复序列",
	ErrRangeStep:          "range() 的第 3 个参数不能为零",

	// ========== 致命错误 ==========
	FatalNegativeRefcount: "对象 %s 的引用计数为负",
	FatalDoubleFree:       "对象 %s 被重复释放",
	FatalResurrection:     "%s 对象在销毁过程中被增加引用",
	FatalSmallIntRange:    "小整数 %d 不在缓存范围 [%d, %d] 内",
	FatalTraverseFailed:   "%s 对象的 traverse 失败: %v",
	FatalClearFailed:      "%s 对象的 clear 失败: %v",
	FatalStackOverflow:    "%s 的操作数栈溢出（最大 %d）",
	FatalStackUnderflow:   "%s 的操作数栈下溢",
	FatalLockReacquire:    "互斥锁被持有者重复获取（协程 %d）",
	FatalUnlockUnlocked:   "解锁未加锁的互斥锁",
	FatalGILNotHeld:       "线程 %d 在未持有解释器锁时释放了它",
	FatalBadBlock:         "%s 的块栈已损坏",

	// ========== 字节码 ==========
	ErrVerifyOperand:   "%s: 偏移量 %[3]d 处的操作数 %[2]d 越界",
	ErrVerifyJump:      "%s: 偏移量 %[3]d 处的跳转目标 %[2]d 越界",
	ErrVerifyUnderflow: "%s: 偏移量 %d 处栈下溢",
	ErrVerifyMaxStack:  "%s: 栈深度 %d 超过声明的最大值 %d（偏移量 %d）",
	ErrVerifyInconsist: "%s: 偏移量 %d 处栈深度不一致（%d 与 %d）",
	ErrVerifyLocals:    "%s: 声明了 %d 个局部变量，但有 %d 个参数",
	ErrVerifyFallOff:   "%s: 执行越过了代码末尾",
	ErrAsmSyntax:       "%s:%d: 语法错误: %s",
	ErrAsmUnknownOp:    "%s:%d: 未知操作码 %q",
	ErrAsmUnknownLabel: "%s:%d: 未知标签 %q",
	ErrCodecMagic:      "不是编译单元（魔数错误）",
	ErrCodecVersion:    "不支持的编译单元版本 %d.%d",

	// ========== 命令行 ==========
	CmdUsage:        "用法:",
	CmdUnknown:      "未知命令: %s",
	CmdMissingFile:  "缺少输入文件",
	CmdRun:          "运行编译单元（.nbc 或 .nasm）",
	CmdAsm:          "将 .nasm 文件汇编为编译单元",
	CmdDis:          "反汇编编译单元",
	CmdStats:        "运行编译单元并打印分配器与回收器统计",
	CmdVersion:      "打印版本信息",
	CmdHelp:         "显示帮助",
	CmdVersionTitle: "novacore %s",
}
