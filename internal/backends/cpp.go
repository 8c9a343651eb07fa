package backends

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"reactorlog/internal/model"
)

// linkWindow 是链接错误向前回溯的最大行数。
const linkWindow = 500

// cppGrammar 描述一种操作系统工具链的诊断格式。
type cppGrammar struct {
	os          string
	compile     []*regexp.Regexp
	linkTrigger *regexp.Regexp
	linkSymbol  *regexp.Regexp
}

var (
	errorAlt = alternation(errorTokens)
	colonAlt = alternation(colonTokens)

	linuxGrammar = cppGrammar{
		os: "linux",
		compile: []*regexp.Regexp{
			regexp.MustCompile(`:\s*(\d+)\s*:\s*(\d+)\s*:\s*\w*\s*` + errorAlt + `\s*\w*\d*` + colonAlt),
		},
		linkTrigger: regexp.MustCompile(`collect2\s*:\s*ld\s+`),
		linkSymbol:  regexp.MustCompile(`undefined\s+reference\s+to\s+`),
	}

	solarisGrammar = cppGrammar{
		os: "solaris",
		compile: []*regexp.Regexp{
			regexp.MustCompile(`,\s*第\s*(\d+)\s*行` + colonAlt + `\s*` + errorAlt + `\s*,`),
		},
		linkTrigger: regexp.MustCompile(`ld\s*:\s*.*:\s*symbol\s+referencing\s+errors\.`),
		linkSymbol:  regexp.MustCompile(`(?:^|[\s/])target/objs/(.*?)\.o$`),
	}

	windowsGrammar = cppGrammar{
		os: "windows",
		compile: []*regexp.Regexp{
			regexp.MustCompile(`\((\d+)\)\s*:\s*\w*\s*` + errorAlt + `\s*\w*\d*` + colonAlt),
			regexp.MustCompile(`:\s*(\d+)\s*:\s*\w*\s*` + errorAlt + `\s*\w*\d*` + colonAlt),
		},
		linkTrigger: regexp.MustCompile(`\s*:\s*fatal\s+error\s+LNK\d+\s*:`),
		linkSymbol:  regexp.MustCompile(`:\s*error\s+LNK\d+\s*:\s*unresolved\s+external\s+symbol\s+`),
	}

	shellCdPattern  = regexp.MustCompile(`(?:^|\s)cd\s+(.*?)\s+&&\s+`)
	objOutPattern   = regexp.MustCompile(`(?:^|\s)/Fo(.*?)\\target\\objs\\.*\.obj\s+-c\s+`)
	linkStepPattern = regexp.MustCompile(`:\s*link\s+\(default-link\)\s+@`)
)

// CppBackend 处理 C/C++ 工具链输出。
// grammars 的顺序即匹配优先级；每行先尝试所有编译格式，再尝试链接格式。
type CppBackend struct {
	name     string
	grammars []cppGrammar
}

// NewCppBackend 用给定的操作系统语法创建 C/C++ 后端。
func NewCppBackend(name string, grammars ...cppGrammar) *CppBackend {
	return &CppBackend{name: name, grammars: grammars}
}

// Name 返回后端名称。
func (b *CppBackend) Name() string {
	return b.name
}

// Language 返回语言名称。
func (b *CppBackend) Language() string {
	return "C/C++"
}

// GrammarNames 返回按优先级排列的操作系统语法名称。
func (b *CppBackend) GrammarNames() []string {
	names := make([]string, 0, len(b.grammars))
	for _, grammar := range b.grammars {
		names = append(names, grammar.os)
	}
	return names
}

// Extract 识别模块目录、编译错误和链接错误。
func (b *CppBackend) Extract(in Input) Output {
	line := strings.TrimSpace(in.Line)

	if match := shellCdPattern.FindStringSubmatch(line); match != nil {
		return Output{ModuleHome: resolveDir(match[1], in.WorkDir)}
	}
	if match := objOutPattern.FindStringSubmatch(line); match != nil {
		return Output{ModuleHome: resolveDir(match[1], in.WorkDir)}
	}

	for _, grammar := range b.grammars {
		for _, pattern := range grammar.compile {
			if loc := pattern.FindStringSubmatchIndex(line); loc != nil {
				return Output{Fragments: compileFragment(in, line, loc)}
			}
		}
	}

	for _, grammar := range b.grammars {
		if grammar.linkTrigger.MatchString(line) {
			return Output{Fragments: linkFragment(in, line, grammar)}
		}
	}

	return Output{}
}

func compileFragment(in Input, line string, loc []int) []model.Fragment {
	lineNumber, err := strconv.Atoi(line[loc[2]:loc[3]])
	if err != nil {
		return nil
	}
	file := resolvePath(stripLogPrefix(line[:loc[0]]), in.ModuleHome, in.WorkDir)
	if file == "" {
		return nil
	}

	return []model.Fragment{{
		File:   file,
		Module: in.Module,
		Class:  model.ClassCompile,
		Line:   lineNumber,
		Text:   []string{line},
	}}
}

// linkFragment 从触发行向前回溯收集未定义符号，再按时间顺序返回。
func linkFragment(in Input, line string, grammar cppGrammar) []model.Fragment {
	collected := make([]string, 0)
	for i := 1; i <= linkWindow; i++ {
		index := in.Index - i
		if index < 0 {
			break
		}
		previous := strings.TrimSpace(in.Lines[index])
		// 上一次链接失败的符号已归入那一次的片段。
		if linkStepPattern.MatchString(previous) || grammar.linkTrigger.MatchString(previous) {
			break
		}
		if grammar.linkSymbol.MatchString(previous) {
			collected = append(collected, previous)
		}
	}
	slices.Reverse(collected)

	if len(collected) == 0 {
		collected = append(collected, line)
	}

	return []model.Fragment{{
		ModuleHome: homeOrWorkDir(in),
		Module:     in.Module,
		Class:      model.ClassLink,
		Text:       collected,
	}}
}
