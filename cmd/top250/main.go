package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/fantribe/top250/internal/config"
)

func main() {
	c := &cli{
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		stdoutTTY:   isTTY(os.Stdout),
		interactive: isTTY(os.Stderr),
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := c.run(ctx, os.Args[1:])
	stop()
	if code != 0 {
		os.Exit(code)
	}
}

// cli 把 stdout/stderr 与终端探测注入进来，测试时换成 buffer。
type cli struct {
	stdout io.Writer
	stderr io.Writer
	// stdoutTTY=false 时 stdout 只输出一个 JSON 文档。
	stdoutTTY bool
	// interactive=true 时在 stderr 输出进度。
	interactive bool
	// cwd 为空时使用进程当前目录。
	cwd string
}

func (c *cli) run(ctx context.Context, args []string) int {
	if len(args) == 0 || isHelp(args[0]) {
		c.printUsage()
		return 0
	}

	switch args[0] {
	case "serve":
		return c.serveCmd(ctx, args[1:])
	case "show":
		return c.showCmd(ctx, args[1:])
	case "export":
		return c.exportCmd(ctx, args[1:])
	default:
		fmt.Fprintf(c.stderr, "未知命令：%q\n\n", args[0])
		c.printUsage()
		return 2
	}
}

// commonArgs 是所有子命令共享的配置覆盖参数。
type commonArgs struct {
	config.CLIArgs
}

func (a *commonArgs) register(fs *pflag.FlagSet) {
	fs.StringVarP(&a.ConfigFile, "config", "c", "", "配置文件路径（json/yaml/toml）")
	fs.StringVar(&a.Repo, "repo", "", "数据仓库名")
	fs.StringVar(&a.MinDate, "min-date", "", "最早可选日期 YYYY-MM-DD")
	fs.StringVar(&a.Proxy, "proxy", "", "HTTP 代理地址")
}

// parseFlags 解析子命令参数；返回 (继续执行, 退出码)。
func (c *cli) parseFlags(fs *pflag.FlagSet, args []string) (bool, int) {
	fs.SetOutput(c.stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, 0
		}
		fmt.Fprintf(c.stderr, "参数错误：%v\n", err)
		return false, 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(c.stderr, "参数错误：多余的参数 %q\n", fs.Args())
		return false, 2
	}
	return true, 0
}

func (c *cli) loadConfig(a config.CLIArgs) (config.EffectiveConfig, error) {
	cwd := c.cwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return config.EffectiveConfig{}, err
		}
		cwd = wd
	}
	return config.LoadEffective(cwd, a)
}

// emitError 输出致命错误：非 TTY 时 stdout 仍是单个 JSON 文档。
func (c *cli) emitError(err error) {
	code := config.Code(err)
	if code == "" {
		code = "failed"
	}
	if !c.stdoutTTY {
		enc := json.NewEncoder(c.stdout)
		_ = enc.Encode(map[string]string{"error_code": code, "error_msg": err.Error()})
	}
	fmt.Fprintf(c.stderr, "错误：%v\n", err)
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func (c *cli) printUsage() {
	fmt.Fprint(c.stdout, `用法：
  top250 serve  [--listen :8080] [通用参数]
  top250 show   [--date YYYY-MM-DD] [通用参数]
  top250 export [--date YYYY-MM-DD] [--out site] [通用参数]

命令：
  serve   启动网页服务（/、/api/top250、/poster、/healthz）
  show    拉取某一天的榜单并输出（终端为表格，管道为 JSON）
  export  拉取某一天的榜单并写出静态页面与 JSON

通用参数：
  -c, --config    配置文件路径（默认查找 ./top250.{json,yaml,toml}）
      --repo      数据仓库名
      --min-date  最早可选日期
      --proxy     HTTP 代理地址

使用 "top250 <命令> --help" 查看详细说明。
`)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
