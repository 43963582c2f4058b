package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // 容器镜像可能没有 zoneinfo

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/fantribe/top250/internal/infra/httpx"
	"github.com/fantribe/top250/internal/navigator"
	"github.com/fantribe/top250/internal/source"
)

const (
	// ErrCodeNotFound 表示 --config 显式指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	DefaultMinDate     = "2025-05-01"
	DefaultListen      = ":8080"
	DefaultTimezone    = "UTC"
	DefaultPosterWidth = 120

	// 配置文件名（不含扩展名）；支持 json/yaml/toml。
	fileName  = "top250"
	envPrefix = "TOP250"
)

// DefaultPosterHosts 是海报代理允许访问的域名后缀。
var DefaultPosterHosts = []string{"doubanio.com", "media-amazon.com"}

// CLIArgs 是命令行可以覆盖的配置项；空值表示“未指定”。
type CLIArgs struct {
	ConfigFile string

	Repo    string
	MinDate string
	Listen  string
	Proxy   string
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// 配置文件的绝对路径；没有读取到文件时为空。
	File string

	Owner    string
	Repo     string
	Branch   string
	FilePath string
	Mirrors  []string

	MinDate  time.Time
	Location *time.Location

	Listen string

	ProxyURL   string
	ImageProxy bool
	RateLimit  float64
	Timeout    time.Duration

	// ProbeSchedule 为空表示不启用定时镜像探测。
	ProbeSchedule string

	PosterProxy bool
	PosterWidth int
	PosterHosts []string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Path == "" {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取配置并与 CLI 参数合并。
//
// 发现规则：
// 1) CLI 提供 --config：必须存在，扩展名决定格式
// 2) 否则在 cwd 下查找 top250.{json,yaml,yml,toml}（可选）
//
// 覆盖优先级：CLI > 环境变量 TOP250_* > 配置文件 > 内置默认值
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfgPath := ""
	if p := strings.TrimSpace(cli.ConfigFile); p != "" {
		if !filepath.IsAbs(p) {
			p = filepath.Join(cwd, p)
		}
		cfgPath = filepath.Clean(p)
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: err}
			}
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	} else {
		v.SetConfigName(fileName)
		v.AddConfigPath(cwd)
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: v.ConfigFileUsed(), Err: err}
			}
		}
		cfgPath = v.ConfigFileUsed()
	}

	// CLI 显式指定的值优先级最高。
	for key, val := range map[string]string{
		"repo":      cli.Repo,
		"min_date":  cli.MinDate,
		"listen":    cli.Listen,
		"proxy.url": cli.Proxy,
	} {
		if strings.TrimSpace(val) != "" {
			v.Set(key, strings.TrimSpace(val))
		}
	}

	eff, err := build(v)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	eff.File = cfgPath
	return eff, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("owner", source.DefaultOwner)
	v.SetDefault("repo", source.DefaultRepo)
	v.SetDefault("branch", source.DefaultBranch)
	v.SetDefault("file_path", source.DefaultPathTemplate)
	v.SetDefault("mirrors", source.DefaultMirrors)
	v.SetDefault("min_date", DefaultMinDate)
	v.SetDefault("timezone", DefaultTimezone)
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("proxy.url", "")
	v.SetDefault("image_proxy", false)
	v.SetDefault("rate_limit", httpx.DefaultRateLimit)
	v.SetDefault("timeout", httpx.DefaultTimeout)
	v.SetDefault("probe_schedule", "")
	v.SetDefault("poster_proxy", false)
	v.SetDefault("poster_width", DefaultPosterWidth)
	v.SetDefault("poster_hosts", DefaultPosterHosts)
}

func build(v *viper.Viper) (EffectiveConfig, error) {
	repo := strings.TrimSpace(v.GetString("repo"))
	if repo == "" {
		return EffectiveConfig{}, fmt.Errorf("repo 不能为空")
	}

	filePath := strings.TrimSpace(v.GetString("file_path"))
	if filePath == "" {
		return EffectiveConfig{}, fmt.Errorf("file_path 不能为空")
	}
	if !strings.Contains(filePath, "{day}") && !strings.Contains(filePath, "{month}") {
		return EffectiveConfig{}, fmt.Errorf("file_path 至少需要包含 {day} 或 {month}：%q", filePath)
	}

	mirrors := cleanList(v.GetStringSlice("mirrors"))
	if len(mirrors) == 0 {
		return EffectiveConfig{}, fmt.Errorf("mirrors 不能为空")
	}
	if _, err := source.NewResolver(v.GetString("owner"), repo, v.GetString("branch"), mirrors); err != nil {
		return EffectiveConfig{}, fmt.Errorf("mirrors 无效：%w", err)
	}

	minDate, err := navigator.ParseDay(strings.TrimSpace(v.GetString("min_date")))
	if err != nil {
		return EffectiveConfig{}, fmt.Errorf("min_date 无效：%w", err)
	}

	loc, err := time.LoadLocation(strings.TrimSpace(v.GetString("timezone")))
	if err != nil {
		return EffectiveConfig{}, fmt.Errorf("timezone 无效：%w", err)
	}

	proxyURL := strings.TrimSpace(v.GetString("proxy.url"))
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return EffectiveConfig{}, fmt.Errorf("proxy.url 无效：%w", err)
		}
	}
	imageProxy := v.GetBool("image_proxy")
	if imageProxy && proxyURL == "" {
		return EffectiveConfig{}, fmt.Errorf("image_proxy=true 但 proxy.url 为空")
	}

	rateLimit := v.GetFloat64("rate_limit")
	if rateLimit < 0 {
		return EffectiveConfig{}, fmt.Errorf("rate_limit 不能为负数：%v", rateLimit)
	}
	timeout := v.GetDuration("timeout")
	if timeout <= 0 {
		return EffectiveConfig{}, fmt.Errorf("timeout 必须为正数：%q", v.GetString("timeout"))
	}

	schedule := strings.TrimSpace(v.GetString("probe_schedule"))
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return EffectiveConfig{}, fmt.Errorf("probe_schedule 无效：%w", err)
		}
	}

	width := v.GetInt("poster_width")
	// 文档约定：范围 [32, 600]；超出截断。
	if width < 32 {
		width = 32
	}
	if width > 600 {
		width = 600
	}

	return EffectiveConfig{
		Owner:         strings.TrimSpace(v.GetString("owner")),
		Repo:          repo,
		Branch:        strings.TrimSpace(v.GetString("branch")),
		FilePath:      filePath,
		Mirrors:       mirrors,
		MinDate:       minDate,
		Location:      loc,
		Listen:        strings.TrimSpace(v.GetString("listen")),
		ProxyURL:      proxyURL,
		ImageProxy:    imageProxy,
		RateLimit:     rateLimit,
		Timeout:       timeout,
		ProbeSchedule: schedule,
		PosterProxy:   v.GetBool("poster_proxy"),
		PosterWidth:   width,
		PosterHosts:   cleanList(v.GetStringSlice("poster_hosts")),
	}, nil
}

func cleanList(xs []string) []string {
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if x = strings.TrimSpace(x); x != "" {
			out = append(out, x)
		}
	}
	return out
}
