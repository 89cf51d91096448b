package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"github.com/tangzhangming/novacore/internal/bytecode"
	"github.com/tangzhangming/novacore/internal/config"
	"github.com/tangzhangming/novacore/internal/errors"
	"github.com/tangzhangming/novacore/internal/logging"
	"github.com/tangzhangming/novacore/internal/vm"
)

const (
	Version = "0.1.0"
)

// 全局语言参数
var globalLang string

func main() {
	// 预扫描全局参数 --lang 或 -lang
	args := preprocessArgs(os.Args[1:])

	InitLanguage(globalLang)

	if len(args) < 1 {
		printUsage()
		os.Exit(0)
	}

	command := args[0]

	switch command {
	case "run":
		os.Exit(cmdRun(args[1:]))
	case "asm":
		cmdAsm(args[1:])
	case "dis":
		cmdDis(args[1:])
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		// 直接运行文件
		if !isFlag(command) {
			os.Exit(cmdRun(args))
		}
		fmt.Fprintf(os.Stderr, Msg().ErrUnknownCmd+"\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// preprocessArgs 预处理参数，提取全局 --lang 参数
func preprocessArgs(args []string) []string {
	var result []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--lang" || arg == "-lang" {
			if i+1 < len(args) {
				globalLang = args[i+1]
				i++
				continue
			}
		} else if strings.HasPrefix(arg, "--lang=") {
			globalLang = strings.TrimPrefix(arg, "--lang=")
			continue
		} else if strings.HasPrefix(arg, "-lang=") {
			globalLang = strings.TrimPrefix(arg, "-lang=")
			continue
		}
		result = append(result, arg)
	}
	return result
}

func isFlag(s string) bool {
	return len(s) > 0 && s[0] == '-'
}

func printUsage() {
	m := Msg()
	fmt.Printf(m.VersionTitle+"\n\n", Version)
	fmt.Println(m.HelpUsage)
	fmt.Println("  novacore [--lang en|zh] <command> [options] [arguments]")
	fmt.Println()
	fmt.Println(m.HelpCommands)
	fmt.Printf("  run <file>      %s\n", m.CmdRun)
	fmt.Printf("  asm <file>      %s\n", m.CmdAsm)
	fmt.Printf("  dis <file>      %s\n", m.CmdDis)
	fmt.Printf("  version         %s\n", m.CmdVersion)
	fmt.Printf("  help            %s\n", m.CmdHelp)
	fmt.Println()
	fmt.Println(m.HelpOptions)
	fmt.Printf("  -config <path>  %s\n", m.OptConfig)
	fmt.Printf("  -mode <mode>    %s\n", m.OptMode)
	fmt.Printf("  -threads <n>    %s\n", m.OptThreads)
	fmt.Printf("  -stats          %s\n", m.OptStats)
	fmt.Printf("  -profile        %s\n", m.OptProfile)
	fmt.Printf("  -json           %s\n", m.OptJSON)
	fmt.Printf("  --lang <en|zh>  %s\n", m.OptLang)
	fmt.Println()
	fmt.Println(m.HelpExamples)
	fmt.Printf("  novacore run main%s\n", bytecode.AssemblyFileExtension)
	fmt.Printf("  novacore run -mode free -threads 4 main%s\n", bytecode.CompiledFileExtension)
	fmt.Printf("  novacore asm -o main%s main%s\n", bytecode.CompiledFileExtension, bytecode.AssemblyFileExtension)
	fmt.Printf("  novacore --lang zh help\n")
}

// loadUnit 加载编译单元：.nbc 按编译产物读取，其余按汇编源码处理
func loadUnit(filename string) (*bytecode.Code, error) {
	if strings.EqualFold(filepath.Ext(filename), bytecode.CompiledFileExtension) {
		return bytecode.ReadFile(filename)
	}
	source, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return bytecode.Assemble(string(source), filename)
}

// ============================================================================
// run
// ============================================================================

// cmdRun 执行编译单元，返回进程退出码
func cmdRun(args []string) int {
	m := Msg()
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", m.OptConfig)
	mode := fs.String("mode", "", m.OptMode)
	threads := fs.Int("threads", 1, m.OptThreads)
	showStats := fs.Bool("stats", false, m.OptStats)
	profile := fs.Bool("profile", false, m.OptProfile)
	asJSON := fs.Bool("json", false, m.OptJSON)

	fs.Usage = func() {
		fmt.Println(m.HelpUsage + " novacore run [options] <file>")
		fmt.Println()
		fmt.Println(m.HelpOptions)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() < 1 {
		fs.Usage()
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, m.ErrNoInput)
		return 1
	}

	filename := fs.Arg(0)
	code, err := loadUnit(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, m.ErrLoad+"\n", filename, err)
		return 1
	}

	cfg, err := loadConfig(*configPath, filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, m.ErrConfig+"\n", err)
		return 1
	}
	if *mode != "" {
		cfg.Concurrency.Mode = config.Mode(*mode)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, m.ErrConfig+"\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()
	logging.InstallFatalHook(logger)

	in, err := vm.New(cfg, vm.WithLogger(logger), vm.WithProfile(*profile))
	if err != nil {
		fmt.Fprintf(os.Stderr, m.ErrConfig+"\n", err)
		return 1
	}
	defer func() {
		if err := in.Close(); err != nil {
			logger.Warn("interpreter close failed", zap.Error(err))
		}
	}()

	// Ctrl-C 在主线程的下一个检查点抛出 KeyboardInterrupt
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	defer signal.Stop(sigc)
	go func() {
		for range sigc {
			in.Interrupt()
		}
	}()

	ctx := context.Background()
	if *threads > 1 {
		err = in.RunThreads(ctx, code, *threads)
	} else {
		err = in.Run(ctx, code)
	}

	status := 0
	if err != nil {
		status = 1
		if ee, ok := vm.AsException(err); ok {
			fmt.Fprint(os.Stderr, errors.NewFormatter().FormatUncaught(ee.Type, ee.Message, ee.Traceback))
		} else {
			fmt.Fprintf(os.Stderr, m.ErrRuntime+"\n", err)
		}
	}

	if *showStats {
		printStats(in.Stats(), *asJSON)
	}
	if p := in.Profile(); p != nil {
		printProfile(p.Report(), *asJSON)
	}
	return status
}

// loadConfig 优先使用 -config，否则从编译单元所在目录向上查找 novacore.toml
func loadConfig(path, unit string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, _, err := config.LoadFor(unit)
	return cfg, err
}

func printStats(s vm.Stats, asJSON bool) {
	if asJSON {
		printJSON(s)
		return
	}
	m := Msg()
	fmt.Fprintln(os.Stderr, m.StatsTitle)
	fmt.Fprintf(os.Stderr, "  %-14s %d\n", "instructions", s.Eval.Instructions)
	fmt.Fprintf(os.Stderr, "  %-14s %d\n", "calls", s.Eval.Calls)
	fmt.Fprintf(os.Stderr, "  %-14s %d\n", "exceptions", s.Eval.Exceptions)
	fmt.Fprintf(os.Stderr, "  %-14s %d\n", "checkpoints", s.Eval.Checkpoints)
	fmt.Fprintf(os.Stderr, "  %-14s %d\n", "allocations", s.Objects.Allocations)
	fmt.Fprintf(os.Stderr, "  %-14s %d\n", "live objects", s.Live)
	fmt.Fprintf(os.Stderr, "  %-14s %d\n", "ref total", s.RefTotal)
	fmt.Fprintf(os.Stderr, "  %-14s %d\n", "gc epoch", s.GC.Epoch)
	for i, g := range s.GC.Generations {
		fmt.Fprintf(os.Stderr, "  gen%-11d %d collections, %d collected\n", i, g.Collections, g.Collected)
	}
	fmt.Fprintf(os.Stderr, "  %-14s %d (%s)\n", "switches", s.Coord.Switches, s.Coord.Mode)
	fmt.Fprintf(os.Stderr, "  %-14s %d, max %s\n", "stop-the-world", s.Coord.STWCount, s.Coord.STWMax)
}

func printProfile(r vm.ProfileReport, asJSON bool) {
	if asJSON {
		printJSON(r)
		return
	}
	m := Msg()
	fmt.Fprintln(os.Stderr, m.ProfileTitle)
	for i, op := range r.Opcodes {
		if i == 10 {
			break
		}
		fmt.Fprintf(os.Stderr, "  %-24s %d\n", op.Op, op.Count)
	}
	for _, f := range r.Functions {
		fmt.Fprintf(os.Stderr, "  %s (%s) %d calls [%s]\n", f.Name, f.File, f.Calls, f.State)
	}
	for _, l := range r.Loops {
		fmt.Fprintf(os.Stderr, "  %s@%d %d backedges [%s]\n", l.Function, l.HeaderIP, l.Backedges, l.State)
	}
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, Msg().ErrRuntime+"\n", err)
		return
	}
	fmt.Fprintln(os.Stderr, string(data))
}

// ============================================================================
// asm / dis
// ============================================================================

// cmdAsm 汇编为 .nbc 编译产物
func cmdAsm(args []string) {
	m := Msg()
	fs := flag.NewFlagSet("asm", flag.ExitOnError)
	output := fs.String("o", "", m.OptOutput)

	fs.Usage = func() {
		fmt.Println(m.HelpUsage + " novacore asm [options] <file>")
		fmt.Println()
		fmt.Println(m.HelpOptions)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fs.Usage()
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, m.ErrNoInput)
		os.Exit(1)
	}

	filename := fs.Arg(0)
	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, m.ErrReadFile+"\n", err)
		os.Exit(1)
	}
	code, err := bytecode.Assemble(string(source), filename)
	if err != nil {
		fmt.Fprintln(os.Stderr, m.ErrAssemble)
		fmt.Fprintf(os.Stderr, "  %v\n", err)
		os.Exit(1)
	}

	out := *output
	if out == "" {
		out = strings.TrimSuffix(filename, filepath.Ext(filename)) + bytecode.CompiledFileExtension
	}
	if err := bytecode.WriteFile(out, code); err != nil {
		fmt.Fprintf(os.Stderr, m.ErrWriteFile+"\n", err)
		os.Exit(1)
	}
	info, err := os.Stat(out)
	if err != nil {
		fmt.Fprintf(os.Stderr, m.ErrWriteFile+"\n", err)
		os.Exit(1)
	}
	fmt.Printf(m.SuccessAsmComplete+"\n", out, info.Size())
}

// cmdDis 反汇编
func cmdDis(args []string) {
	m := Msg()
	if len(args) < 1 {
		fmt.Println(m.HelpUsage + " novacore dis <file>")
		fmt.Fprintln(os.Stderr, m.ErrNoInput)
		os.Exit(1)
	}
	code, err := loadUnit(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, m.ErrLoad+"\n", args[0], err)
		os.Exit(1)
	}
	fmt.Print(bytecode.Disassemble(code))
}

// cmdVersion 显示版本信息
func cmdVersion() {
	m := Msg()
	fmt.Printf(m.VersionTitle+"\n", Version)
	fmt.Println(m.VersionDesc)
}
