// 本文件包含多线程执行的测试用例。
// 运行时使用 -race 标志检测竞态条件：
//
//	go test -race -v ./internal/vm/...
package vm

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/tangzhangming/novacore/internal/config"
)

func modeConfig(mode config.Mode) *config.Config {
	cfg := config.Default()
	cfg.Concurrency.Mode = mode
	return cfg
}

var allModes = []config.Mode{config.ModeSingle, config.ModeFree}

// ============================================================================
// RunThreads
// ============================================================================

func TestRunThreads(t *testing.T) {
	src := strings.TrimSuffix(fmt.Sprintf(fibProgram, 12), "    RETURN_VALUE\n") + `
    STORE_GLOBAL result
    LOAD_GLOBAL print
    LOAD_GLOBAL result
    CALL_FUNCTION 1
    POP_TOP
`
	for _, mode := range allModes {
		t.Run(string(mode), func(t *testing.T) {
			in, out := newTestInterp(t, modeConfig(mode))
			defer closeInterp(t, in)

			if err := in.RunThreads(context.Background(), assemble(t, src), 4); err != nil {
				t.Fatalf("RunThreads: %v", err)
			}
			if got := out.String(); got != strings.Repeat("144\n", 4) {
				t.Errorf("output = %q", got)
			}

			s := in.Stats()
			if s.Threads != 0 {
				t.Errorf("threads still attached: %d", s.Threads)
			}
			if s.Eval.FramesPushed != s.Eval.FramesPopped {
				t.Errorf("frames pushed %d, popped %d", s.Eval.FramesPushed, s.Eval.FramesPopped)
			}
		})
	}
}

func TestRunThreadsError(t *testing.T) {
	src := `
    LOAD_GLOBAL ValueError
    LOAD_CONST "boom"
    CALL_FUNCTION 1
    RAISE_VARARGS 1
`
	for _, mode := range allModes {
		t.Run(string(mode), func(t *testing.T) {
			in, _ := newTestInterp(t, modeConfig(mode))
			defer closeInterp(t, in)

			err := in.RunThreads(context.Background(), assemble(t, src), 3)
			ee := expectException(t, err, "ValueError")
			if ee.Message != "boom" {
				t.Errorf("message = %q", ee.Message)
			}
		})
	}
}

func TestRunThreadsBadCount(t *testing.T) {
	in, _ := newTestInterp(t, nil)
	defer closeInterp(t, in)

	if err := in.RunThreads(context.Background(), assemble(t, "NOP"), 0); err == nil {
		t.Error("RunThreads(0) should fail")
	}
}

func TestRunThreadsCancel(t *testing.T) {
	for _, mode := range allModes {
		t.Run(string(mode), func(t *testing.T) {
			in, _ := newTestInterp(t, modeConfig(mode))
			defer closeInterp(t, in)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()

			code := assemble(t, spinProgram)
			done := make(chan error, 1)
			go func() { done <- in.RunThreads(ctx, code, 3) }()

			select {
			case err := <-done:
				expectException(t, err, "KeyboardInterrupt")
				if !stderrors.Is(err, context.DeadlineExceeded) {
					t.Errorf("errors.Is(err, DeadlineExceeded) = false: %v", err)
				}
			case <-time.After(10 * time.Second):
				t.Fatal("threads did not stop")
			}
		})
	}
}

// ============================================================================
// 回收与并发
// ============================================================================

func TestConcurrentCollection(t *testing.T) {
	// 每个线程制造大量自引用列表，阈值很低，回收在运行中的线程之间停止世界
	src := `
    SETUP_LOOP done
    LOAD_GLOBAL range
    LOAD_CONST 2000
    CALL_FUNCTION 1
    GET_ITER
loop:
    FOR_ITER end
    POP_TOP
    BUILD_LIST 0
    DUP_TOP
    DUP_TOP
    LIST_APPEND 1
    POP_TOP
    STORE_GLOBAL last
    JUMP_ABSOLUTE loop
end:
    POP_BLOCK
done:
    LOAD_GLOBAL collect
    CALL_FUNCTION 0
    POP_TOP
`
	for _, mode := range allModes {
		t.Run(string(mode), func(t *testing.T) {
			cfg := modeConfig(mode)
			cfg.GC.Thresholds = [3]int{100, 5, 5}
			cfg.Eval.CheckInterval = 20
			in, _ := newTestInterp(t, cfg)
			defer closeInterp(t, in)

			if err := in.RunThreads(context.Background(), assemble(t, src), 4); err != nil {
				t.Fatalf("RunThreads: %v", err)
			}

			s := in.Stats()
			if s.GC.Epoch == 0 {
				t.Error("no collection ran")
			}
			if s.Coord.STWCount == 0 {
				t.Errorf("no stop-the-world recorded: %+v", s.Coord)
			}
		})
	}
}

func TestSharedGlobalsAcrossThreads(t *testing.T) {
	// 第一个线程创建共享列表，其余线程看到已有的全局名字
	src := `
    SETUP_EXCEPT create
    LOAD_GLOBAL shared
    POP_TOP
    POP_BLOCK
    JUMP_ABSOLUTE work
create:
    DUP_TOP
    LOAD_GLOBAL NameError
    JUMP_IF_NOT_EXC_MATCH reraise
    POP_TOP
    BUILD_LIST 0
    STORE_GLOBAL shared
    POP_EXCEPT
    JUMP_ABSOLUTE work
reraise:
    END_FINALLY
work:
    SETUP_LOOP done
    LOAD_GLOBAL range
    LOAD_CONST 100
    CALL_FUNCTION 1
    GET_ITER
loop:
    FOR_ITER end
    LOAD_GLOBAL shared
    ROT_TWO
    LIST_APPEND 1
    POP_TOP
    JUMP_ABSOLUTE loop
end:
    POP_BLOCK
done:
    NOP
`
	for _, mode := range allModes {
		t.Run(string(mode), func(t *testing.T) {
			in, _ := newTestInterp(t, modeConfig(mode))
			defer closeInterp(t, in)

			if err := in.RunThreads(context.Background(), assemble(t, src), 4); err != nil {
				t.Fatalf("RunThreads: %v", err)
			}
			if s := in.Stats(); s.Eval.Exceptions == 0 {
				t.Error("first LOAD_GLOBAL should raise NameError at least once")
			}
		})
	}
}

// ============================================================================
// 基准测试
// ============================================================================

func BenchmarkRunThreads(b *testing.B) {
	for _, mode := range allModes {
		b.Run(string(mode), func(b *testing.B) {
			in, err := New(modeConfig(mode), WithOutput(io.Discard))
			if err != nil {
				b.Fatal(err)
			}
			defer in.Close()

			src := strings.TrimSuffix(fmt.Sprintf(fibProgram, 15), "    RETURN_VALUE\n") + "    POP_TOP\n"
			code := benchAssemble(b, src)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := in.RunThreads(context.Background(), code, 4); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
