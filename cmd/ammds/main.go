package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/John-Robertt/ammds-bridge/internal/config"
	"github.com/John-Robertt/ammds-bridge/internal/handler"
	"github.com/John-Robertt/ammds-bridge/internal/handler/all"
	"github.com/John-Robertt/ammds-bridge/internal/logx"
	"github.com/John-Robertt/ammds-bridge/internal/servers"
	"github.com/John-Robertt/ammds-bridge/internal/store"
	"github.com/John-Robertt/ammds-bridge/internal/store/sqlite"
)

func main() {
	// .env 可选：不存在时静默跳过，已有环境变量不被覆盖。
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := NewMain()
	err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// exitError 只携带退出码：具体信息已经写到 stdout/stderr。
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Main 是程序本体；测试可以在 Run 之前注入存储。
type Main struct {
	// KV 非空时跳过 store.path，直接使用它。
	KV store.KV

	closers []io.Closer
}

func NewMain() *Main { return &Main{} }

// Close 释放 Run 期间打开的资源（数据库、日志文件）。
func (m *Main) Close() error {
	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil
	return errors.Join(errs...)
}

// Run 解析参数、装配依赖并执行子命令。
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("ammds"),
		kong.Description("AMMDS 元数据桥：解析影片详情页并导入 AMMDS 服务端"),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("创建参数解析器失败：%w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return &exitError{code: 2}
	}
	// help 由 kong 输出；Exit 被替换为空函数，这里直接返回。
	for _, a := range args {
		if a == "-h" || a == "--help" || a == "help" {
			_, _ = parser.Parse(withoutHelpWord(args))
			return nil
		}
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "参数错误：%v\n", err)
		return &exitError{code: 2}
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		fmt.Fprintf(stderr, "配置错误（%s）：%v\n", config.Code(err), err)
		return &exitError{code: 1}
	}
	if cli.Verbose {
		cfg.Log.Level = "debug"
	}

	lg := logx.New(logx.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Path:       cfg.Log.Path,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}, stderr)
	m.closers = append(m.closers, lg)
	defer m.Close()

	kv := m.KV
	if kv == nil {
		kv, err = m.openStore(ctx, cfg.Store.Path)
		if err != nil {
			fmt.Fprintln(stderr, "提示：可通过 store.path 或 AMMDS_STORE_PATH 指定其他数据库路径")
			return err
		}
	}

	reg := handler.NewRegistry(lg.Logger, all.Modules()...)
	reg.Discover(ctx)

	deps.Config = cfg
	deps.Logger = lg.Logger
	deps.KV = kv
	deps.Servers = servers.New(kv)
	deps.Handlers = reg

	return kctx.Run(deps)
}

// openStore：path 为空或 ":memory:" 时使用进程内存储（重启即丢失）。
func (m *Main) openStore(ctx context.Context, path string) (store.KV, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == ":memory:" {
		return store.NewMemory(), nil
	}
	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("打开数据库 %q 失败：%w", path, err)
	}
	m.closers = append(m.closers, db)
	return db, nil
}

// withoutHelpWord 把 "help" 子命令写法改成 kong 认识的 --help。
func withoutHelpWord(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "help" {
			a = "--help"
		}
		out = append(out, a)
	}
	return out
}
