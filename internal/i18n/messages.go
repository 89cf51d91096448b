package i18n

// 消息 ID
const (
	// ========== 虚拟机 ==========
	MsgTraceback          = "msg.traceback"
	ErrUncaughtException  = "vm.uncaught_exception"
	ErrUnknownOpcode      = "vm.unknown_opcode"
	ErrIPOutOfBounds      = "vm.ip_out_of_bounds"
	ErrIndexOutOfRange    = "vm.index_out_of_range"
	ErrKeyNotFound        = "vm.key_not_found"
	ErrNotSubscriptable   = "vm.not_subscriptable"
	ErrNotIterable        = "vm.not_iterable"
	ErrDivisionByZero     = "vm.division_by_zero"
	ErrUnsupportedOperand = "vm.unsupported_operand"
	ErrUnorderable        = "vm.unorderable"
	ErrNotCallable        = "vm.not_callable"
	ErrArgumentCount      = "vm.argument_count"
	ErrUndefinedName      = "vm.undefined_name"
	ErrUnboundLocal       = "vm.unbound_local"
	ErrRecursionLimit     = "vm.recursion_limit"
	ErrTooManyBlocks      = "vm.too_many_blocks"
	ErrNoActiveException  = "vm.no_active_exception"
	ErrNotAnException     = "vm.not_an_exception"
	ErrBadExceptMatch     = "vm.bad_except_match"
	ErrNoMemory           = "vm.no_memory"
	ErrInterrupted        = "vm.interrupted"
	ErrUnhashable         = "vm.unhashable"
	ErrNoLen              = "vm.no_len"
	ErrBadArgument        = "vm.bad_argument"
	ErrBadIndex           = "vm.bad_index"
	ErrOverflow           = "vm.overflow"
	ErrNegativeCount      = "vm.negative_count"
	ErrRangeStep          = "vm.range_step"

	// ========== 致命错误 ==========
	FatalNegativeRefcount = "fatal.negative_refcount"
	FatalDoubleFree       = "fatal.double_free"
	FatalResurrection     = "fatal.resurrection"
	FatalSmallIntRange    = "fatal.small_int_range"
	FatalTraverseFailed   = "fatal.traverse_failed"
	FatalClearFailed      = "fatal.clear_failed"
	FatalStackOverflow    = "fatal.stack_overflow"
	FatalStackUnderflow   = "fatal.stack_underflow"
	FatalLockReacquire    = "fatal.lock_reacquire"
	FatalUnlockUnlocked   = "fatal.unlock_unlocked"
	FatalGILNotHeld       = "fatal.gil_not_held"
	FatalBadBlock         = "fatal.bad_block"

	// ========== 字节码 ==========
	ErrVerifyOperand   = "bytecode.operand_out_of_range"
	ErrVerifyJump      = "bytecode.bad_jump_target"
	ErrVerifyUnderflow = "bytecode.stack_underflow"
	ErrVerifyMaxStack  = "bytecode.max_stack_exceeded"
	ErrVerifyInconsist = "bytecode.inconsistent_depth"
	ErrVerifyLocals    = "bytecode.bad_locals"
	ErrVerifyFallOff   = "bytecode.falls_off_end"
	ErrAsmSyntax       = "bytecode.asm_syntax"
	ErrAsmUnknownOp    = "bytecode.asm_unknown_op"
	ErrAsmUnknownLabel = "bytecode.asm_unknown_label"
	ErrCodecMagic      = "bytecode.bad_magic"
	ErrCodecVersion    = "bytecode.bad_version"

	// ========== 命令行 ==========
	CmdUsage        = "cmd.usage"
	CmdUnknown      = "cmd.unknown"
	CmdMissingFile  = "cmd.missing_file"
	CmdRun          = "cmd.run"
	CmdAsm          = "cmd.asm"
	CmdDis          = "cmd.dis"
	CmdStats        = "cmd.stats"
	CmdVersion      = "cmd.version"
	CmdHelp         = "cmd.help"
	CmdVersionTitle = "cmd.version_title"
)
