package backends

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"reactorlog/internal/model"
)

const (
	// compileWindow 是编译诊断向后读取的最大行数。
	compileWindow = 10
	// stackWindow 是测试失败向后读取堆栈的最大行数。
	stackWindow = 10
	// projectWindow 是工程级错误向后读取的最大行数。
	projectWindow = 500
)

var (
	compilingPattern    = regexp.MustCompile(`(?:^|\s)Compiling\s+\d+\s+source\s+files?\s+to\s+(.*)[/\\]target[/\\]`)
	javacPattern        = regexp.MustCompile(`^\[ERROR\]\s+(.+):\[(\d+),\d+\]`)
	errorCountPattern   = regexp.MustCompile(`^\[INFO\]\s+\d+\s*errors?\s*$`)
	topLevelPattern     = regexp.MustCompile(`^\[INFO\]\s+(?:Building\s|BUILD\s|---\s)`)
	testSummaryPattern  = regexp.MustCompile(`^(?:\[(?:ERROR|INFO|WARNING)\]\s+)?Tests\s+run\s*:\s*(\d+)\s*,\s*Failures\s*:\s*(\d+)\s*,\s*Errors\s*:\s*(\d+)\s*,\s*Skipped\s*:\s*(\d+)\s*,\s*.*FAILURE.*\s*-\s*in\s+`)
	projectErrorPattern = regexp.MustCompile(`^\[ERROR\]\s+.*\s+on\s+project\s+(.*?)\s*:`)
	helpPattern         = regexp.MustCompile(`^\[ERROR\]\s+->\s+\[Help\s+.*\]$`)
	targetDirPattern    = regexp.MustCompile(`^\[ERROR\]\s+.*\s+in\s+(.*?)[/\\]target[/\\]`)
	buildingPattern     = regexp.MustCompile(`^\[INFO\]\s+Building\s+`)
)

// JavaBackend 处理 maven-compiler-plugin 与 surefire 的输出。
type JavaBackend struct{}

// Name 返回后端名称。
func (b *JavaBackend) Name() string {
	return "java"
}

// Language 返回语言名称。
func (b *JavaBackend) Language() string {
	return "Java"
}

// Extract 依次尝试模块目录、编译诊断、测试失败三种格式。
func (b *JavaBackend) Extract(in Input) Output {
	line := strings.TrimSpace(in.Line)

	if match := compilingPattern.FindStringSubmatch(line); match != nil {
		return Output{ModuleHome: resolveDir(match[1], in.WorkDir)}
	}

	if match := javacPattern.FindStringSubmatch(line); match != nil {
		return Output{Fragments: b.compileFragment(in, line, match)}
	}

	if match := testSummaryPattern.FindStringSubmatch(line); match != nil {
		return Output{Fragments: b.testFragment(in, line, match)}
	}

	return Output{}
}

func (b *JavaBackend) compileFragment(in Input, line string, match []string) []model.Fragment {
	lineNumber, err := strconv.Atoi(match[2])
	if err != nil {
		return nil
	}
	file := resolvePath(match[1], in.ModuleHome, in.WorkDir)
	if file == "" {
		return nil
	}

	text := []string{line}
	for i := 1; i <= compileWindow; i++ {
		index := in.Index + i
		if index >= len(in.Lines) {
			break
		}
		next := strings.TrimSpace(in.Lines[index])
		if errorCountPattern.MatchString(next) || topLevelPattern.MatchString(next) || javacPattern.MatchString(next) {
			break
		}
		if strings.HasPrefix(next, "[INFO]") {
			continue
		}
		text = append(text, next)
	}

	return []model.Fragment{{
		File:   file,
		Module: in.Module,
		Class:  model.ClassCompile,
		Line:   lineNumber,
		Text:   text,
	}}
}

func (b *JavaBackend) testFragment(in Input, line string, match []string) []model.Fragment {
	failures, _ := strconv.Atoi(match[2])
	errs, _ := strconv.Atoi(match[3])
	if failures == 0 && errs == 0 {
		return nil
	}

	fields := strings.Fields(line[len(match[0]):])
	if len(fields) == 0 {
		return nil
	}
	className, _, _ := strings.Cut(fields[0], "$")

	file, ok := resolveTestSource(homeOrWorkDir(in), className)
	if !ok {
		return nil
	}

	base := className[strings.LastIndex(className, ".")+1:] + ".java"
	framePattern := regexp.MustCompile(`^at\s+.*\(` + regexp.QuoteMeta(base) + `\s*:\s*(\d+)\)$`)

	lineNumber := 0
	text := []string{line}
	for i := 1; i <= stackWindow; i++ {
		index := in.Index + i
		if index >= len(in.Lines) {
			break
		}
		next := strings.TrimSpace(in.Lines[index])
		text = append(text, next)
		if frame := framePattern.FindStringSubmatch(next); frame != nil {
			lineNumber, _ = strconv.Atoi(frame[1])
			break
		}
	}

	return []model.Fragment{{
		File:   file,
		Module: in.Module,
		Class:  model.ClassTest,
		Line:   lineNumber,
		Text:   text,
	}}
}

// resolveTestSource 把测试类名映射为源文件。
//
// 优先检查约定目录 src/test/java；否则遍历模块目录，
// 优先返回相对路径以 src/ 开头的匹配，没有时返回遍历顺序中的第一个匹配。
func resolveTestSource(home string, className string) (string, bool) {
	if home == "" || className == "" {
		return "", false
	}
	rel := strings.ReplaceAll(className, ".", "/") + ".java"

	conventional := filepath.Join(home, "src", "test", "java", filepath.FromSlash(rel))
	if info, err := os.Stat(conventional); err == nil && !info.IsDir() {
		return absClean(conventional), true
	}

	first := ""
	preferred := ""
	walkErr := filepath.WalkDir(home, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			if path != home && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		relative, relErr := filepath.Rel(home, path)
		if relErr != nil {
			return nil
		}
		relative = filepath.ToSlash(relative)
		if relative != rel && !strings.HasSuffix(relative, "/"+rel) {
			return nil
		}

		if first == "" {
			first = path
		}
		if strings.HasPrefix(relative, "src/") {
			preferred = path
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, fs.SkipAll) {
		return "", false
	}

	switch {
	case preferred != "":
		return absClean(preferred), true
	case first != "":
		return absClean(first), true
	default:
		return "", false
	}
}

func absClean(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// ExtractTrailer 处理 Reactor 结束后的工程级错误（例如 “on project xxx:”）。
func (b *JavaBackend) ExtractTrailer(in Input) Output {
	line := strings.TrimSpace(in.Line)
	match := projectErrorPattern.FindStringSubmatch(line)
	if match == nil {
		return Output{}
	}

	fragment := model.Fragment{
		Module: match[1],
		Class:  model.ClassProject,
		Text:   []string{line},
	}
	for i := 1; i <= projectWindow; i++ {
		index := in.Index + i
		if index >= len(in.Lines) {
			break
		}
		next := strings.TrimSpace(in.Lines[index])
		if helpPattern.MatchString(next) || buildingPattern.MatchString(next) {
			break
		}
		if dir := targetDirPattern.FindStringSubmatch(next); dir != nil {
			fragment.ModuleHome = resolveDir(dir[1], in.WorkDir)
		}
		fragment.Text = append(fragment.Text, next)
	}

	return Output{Fragments: []model.Fragment{fragment}}
}
