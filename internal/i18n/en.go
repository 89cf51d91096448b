package i18n

var messagesEN = map[string]string{
	// ========== VM ==========
	MsgTraceback:          "Traceback (most recent call last):",
	ErrUncaughtException:  "uncaught exception: %s",
	ErrUnknownOpcode:      "unknown opcode %d",
	ErrIPOutOfBounds:      "instruction pointer %d out of bounds",
	ErrIndexOutOfRange:    "%s index out of range",
	ErrKeyNotFound:        "%s",
	ErrNotSubscriptable:   "'%s' object is not subscriptable",
	ErrNotIterable:        "'%s' object is not iterable",
	ErrDivisionByZero:     "integer division or modulo by zero",
	ErrUnsupportedOperand: "unsupported operand type(s) for %s: '%s' and '%s'",
	ErrUnorderable:        "'%s' not supported between instances of '%s' and '%s'",
	ErrNotCallable:        "'%s' object is not callable",
	ErrArgumentCount:      "%s() takes %d positional arguments but %d were given",
	ErrUndefinedName:      "name '%s' is not defined",
	ErrUnboundLocal:       "local variable '%s' referenced before assignment",
	ErrRecursionLimit:     "maximum recursion depth exceeded",
	ErrTooManyBlocks:      "too many statically nested blocks",
	ErrNoActiveException:  "no active exception to reraise",
	ErrNotAnException:     "exceptions must derive from BaseException",
	ErrBadExceptMatch:     "catching classes that do not inherit from BaseException is not allowed",
	ErrNoMemory:           "out of memory",
	ErrInterrupted:        "interrupted",
	ErrUnhashable:         "unhashable type: '%s'",
	ErrNoLen:              "object of type '%s' has no len()",
	ErrBadArgument:        "%s() argument must be %s, not '%s'",
	ErrBadIndex:           "%s indices must be integers, not '%s'",
	ErrOverflow:           "integer overflow in %s",
	ErrNegativeCount:      "can't multiply sequence by negative count %d",
	ErrRangeStep:          "range() arg 3 must not be zero",

	// ========== Fatal ==========
	FatalNegativeRefcount: "object %s has negative reference count",
	FatalDoubleFree:       "object %s freed twice",
	FatalResurrection:     "incref of %s object while it is being destroyed",
	FatalSmallIntRange:    "small int %d outside the cached range [%d, %d]",
	FatalTraverseFailed:   "traverse of %s object failed: %v",
	FatalClearFailed:      "clear of %s object failed: %v",
	FatalStackOverflow:    "operand stack overflow in %s (max %d)",
	FatalStackUnderflow:   "operand stack underflow in %s",
	FatalLockReacquire:    "mutex reacquired by its owner (goroutine %d)",
	FatalUnlockUnlocked:   "unlock of unlocked mutex",
	FatalGILNotHeld:       "thread %d released the interpreter lock without holding it",
	FatalBadBlock:         "block stack corrupted in %s",

	// ========== Bytecode ==========
	ErrVerifyOperand:   "%s: operand %d out of range at %d",
	ErrVerifyJump:      "%s: jump target %d out of range at %d",
	ErrVerifyUnderflow: "%s: stack underflow at %d",
	ErrVerifyMaxStack:  "%s: stack depth %d exceeds declared maximum %d at %d",
	ErrVerifyInconsist: "%s: inconsistent stack depth at %d (%d vs %d)",
	ErrVerifyLocals:    "%s: %d locals declared but %d arguments",
	ErrVerifyFallOff:   "%s: execution falls off the end of the code",
	ErrAsmSyntax:       "%s:%d: syntax error: %s",
	ErrAsmUnknownOp:    "%s:%d: unknown opcode %q",
	ErrAsmUnknownLabel: "%s:%d: unknown label %q",
	ErrCodecMagic:      "not a compiled unit (bad magic)",
	ErrCodecVersion:    "unsupported compiled unit version %d.%d",

	// ========== CLI ==========
	CmdUsage:        "Usage:",
	CmdUnknown:      "unknown command: %s",
	CmdMissingFile:  "missing input file",
	CmdRun:          "run a compiled unit (.nbc or .nasm)",
	CmdAsm:          "assemble a .nasm file into a compiled unit",
	CmdDis:          "disassemble a compiled unit",
	CmdStats:        "run a unit and print allocator and collector statistics",
	CmdVersion:      "print version information",
	CmdHelp:         "show this help",
	CmdVersionTitle: "novacore %s",
}
