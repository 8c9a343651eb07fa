package backends

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// errorTokens 是 “error” 的本地化写法对照表，编译器在中文环境下会输出“错误”。
var errorTokens = []string{"error", "错误"}

// colonTokens 同时接受半角与全角冒号。
var colonTokens = []string{":", "："}

var (
	logPrefixPattern  = regexp.MustCompile(`^(?:\[[A-Za-z]+\]\s*)+`)
	quotedPattern     = regexp.MustCompile(`^"(.*)"$`)
	windowsAbsPattern = regexp.MustCompile(`^[A-Za-z]:[\\/]`)
)

// alternation 把字面量表拼接为非捕获分组。
func alternation(tokens []string) string {
	quoted := make([]string, 0, len(tokens))
	for _, token := range tokens {
		quoted = append(quoted, regexp.QuoteMeta(token))
	}
	return "(?:" + strings.Join(quoted, "|") + ")"
}

// stripLogPrefix 去掉行首的 [INFO]、[exec] 等日志前缀。
func stripLogPrefix(text string) string {
	return strings.TrimSpace(logPrefixPattern.ReplaceAllString(strings.TrimSpace(text), ""))
}

func unquote(text string) string {
	text = strings.TrimSpace(text)
	if match := quotedPattern.FindStringSubmatch(text); match != nil {
		return strings.TrimSpace(match[1])
	}
	return text
}

// resolvePath 把日志中的路径解析为绝对、规范化路径。
//
// 约束说明：
// - Windows 盘符路径按反斜杠规范化，不依赖分析机的操作系统
// - 相对路径优先相对 home，其次相对 workDir
func resolvePath(file string, home string, workDir string) string {
	file = unquote(file)
	if file == "" {
		return ""
	}
	if windowsAbsPattern.MatchString(file) {
		return cleanWindowsPath(file)
	}
	if filepath.IsAbs(file) {
		return filepath.Clean(file)
	}

	base := home
	if base == "" {
		base = workDir
	}
	if windowsAbsPattern.MatchString(base) {
		return cleanWindowsPath(strings.TrimRight(base, `\/`) + `\` + file)
	}
	if base == "" || !filepath.IsAbs(base) {
		joined, err := filepath.Abs(filepath.Join(base, file))
		if err != nil {
			return filepath.Clean(filepath.Join(base, file))
		}
		return joined
	}
	return filepath.Join(base, file)
}

// cleanWindowsPath 折叠盘符路径中的 . 与 ..，统一使用反斜杠。
// 盘符之上的 .. 被丢弃，与 Windows 的行为一致。
func cleanWindowsPath(file string) string {
	drive, rest := file[:2], strings.ReplaceAll(file[2:], `\`, "/")
	return drive + strings.ReplaceAll(path.Clean(rest), "/", `\`)
}

// resolveDir 与 resolvePath 相同，但用于目录提示。
func resolveDir(dir string, workDir string) string {
	return resolvePath(dir, "", workDir)
}

// homeOrWorkDir 返回模块目录，缺失时回退到工作目录。
func homeOrWorkDir(in Input) string {
	if in.ModuleHome != "" {
		return in.ModuleHome
	}
	return in.WorkDir
}
