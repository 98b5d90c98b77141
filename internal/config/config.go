package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// FileName 是配置文件名。
const FileName = "photosort.json"

const (
	// ErrCodeNotFound 表示未给 path 但 cwd 下没有 photosort.json。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示未给 path 且配置文件缺少 path 字段。
	ErrCodeMissingPath = "config_missing_path"
)

const (
	DefaultListen    = "127.0.0.1:8765"
	DefaultThumbSize = 320

	minThumbSize = 64
	maxThumbSize = 2048
)

// CLIArgs 保留“是否显式指定”的信息，保证 --apply=false 能覆盖 config.apply=true。
type CLIArgs struct {
	Path string

	Target    string
	TargetSet bool

	Apply    bool
	ApplySet bool

	Staged    bool
	StagedSet bool

	Listen    string
	ListenSet bool
}

// FileConfig 对应 photosort.json 的解析结构。
type FileConfig struct {
	Path      string `json:"path"`
	Target    string `json:"target"`
	Apply     *bool  `json:"apply"`
	Staged    *bool  `json:"staged"`
	Listen    string `json:"listen"`
	ThumbSize int    `json:"thumb_size"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置。
type EffectiveConfig struct {
	Path string
	// Target 是 move 的目标目录（绝对路径）；为空表示未指定。
	Target string

	Apply  bool
	Staged bool

	Listen    string
	ThumbSize int
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
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
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

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则：
// 1) CLI 提供 path：尝试读取 <path>/photosort.json（可选）
// 2) CLI 未提供 path：必须读取 <cwd>/photosort.json，且其中必须包含 path
//
// 覆盖优先级：CLI > 配置文件 > 默认值。
// 相对路径（path/target）以 cwd 为基准。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Path) != "" {
		absPath := absCleanFrom(cwdAbs, cli.Path)
		cfgPath := filepath.Join(absPath, FileName)

		fc, _, err := readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		return merge(cwdAbs, absPath, cli, fc, cfgPath)
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	return merge(cwdAbs, absCleanFrom(cwdAbs, fc.Path), cli, fc, cfgPath)
}

func merge(cwdAbs, absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	target := strings.TrimSpace(fc.Target)
	if cli.TargetSet {
		target = strings.TrimSpace(cli.Target)
	}
	if target != "" {
		target = absCleanFrom(cwdAbs, target)
	}

	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	staged := false
	if cli.StagedSet {
		staged = cli.Staged
	} else if fc.Staged != nil {
		staged = *fc.Staged
	}

	listen := DefaultListen
	if cli.ListenSet {
		listen = strings.TrimSpace(cli.Listen)
	} else if strings.TrimSpace(fc.Listen) != "" {
		listen = strings.TrimSpace(fc.Listen)
	}
	if _, _, err := net.SplitHostPort(listen); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("listen 无效：%q", listen)}
	}

	thumb := fc.ThumbSize
	if thumb == 0 {
		thumb = DefaultThumbSize
	}
	if thumb < minThumbSize {
		thumb = minThumbSize
	}
	if thumb > maxThumbSize {
		thumb = maxThumbSize
	}

	return EffectiveConfig{
		Path:      absPath,
		Target:    target,
		Apply:     apply,
		Staged:    staged,
		Listen:    listen,
		ThumbSize: thumb,
	}, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
