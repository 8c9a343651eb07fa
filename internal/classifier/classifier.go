// Package classifier 实现构建日志的行分类状态机。
//
// 分类器只负责判断一行是否回显到控制台，并推进模块区间、构建结论等扫描状态；
// 具体的错误提取由 backends 包完成。
package classifier

import (
	"regexp"
	"strings"

	"reactorlog/internal/model"
)

// Disposition 表示一行日志的控制台处理方式。
type Disposition int

const (
	// Echo 表示原样输出到控制台。
	Echo Disposition = iota
	// Suppress 表示不回显（已被结构化捕获或与汇总重复）。
	Suppress
)

func (d Disposition) String() string {
	if d == Suppress {
		return "suppress"
	}
	return "echo"
}

var (
	moduleStartPattern    = regexp.MustCompile(`^\[INFO\]\s+Building\s+`)
	archiveBuildPattern   = regexp.MustCompile(`^\[INFO\]\s+Building\s+\w+\s*:`)
	buildResultPattern    = regexp.MustCompile(`^\[INFO\]\s+BUILD\s+(SUCCESS|FAILURE)$`)
	reactorSummaryPattern = regexp.MustCompile(`^\[INFO\]\s+Reactor\s+Summary(?:\s+for\s+.*)?:?$`)
	finalMemoryPattern    = regexp.MustCompile(`^\[INFO\]\s+Final\s+Memory:`)
	summaryFailedPattern  = regexp.MustCompile(`^\[INFO\]\s+(.*?)\s+\.+\s*(FAILURE|SKIPPED)`)
	separatorPattern      = regexp.MustCompile(`^(\[INFO\]\s+)?-{3,}$`)
	errorMarkerPattern    = regexp.MustCompile(`\[(ERROR|EXCEPTION)\]`)
	execErrorPattern      = regexp.MustCompile(`\[exec\].*\s+(error|errors)\s+`)
	colonErrorPattern     = regexp.MustCompile(`:.*\s+(error|errors)\s+`)
	promptPattern         = regexp.MustCompile(`^\$\s+`)
	workDirPattern        = regexp.MustCompile(`^\(.*\)$`)
)

const dependencyExplanation = "following dependencies:"

// Classify 根据当前状态对一行日志分类，返回新状态与处理方式。
// 传入的 state 不会被修改，规则按顺序匹配，第一个命中的规则生效。
func Classify(state model.ScanState, line model.LogLine) (model.ScanState, Disposition) {
	text := strings.TrimSpace(line.Text)

	// 规则 1：模块开始构建。
	if moduleStartPattern.MatchString(text) && !archiveBuildPattern.MatchString(text) {
		return startModule(state, line.Index, moduleName(text)), Suppress
	}

	// 规则 2：构建结论。
	if match := buildResultPattern.FindStringSubmatch(text); match != nil {
		return finishBuild(state, line.Index, match[1] == "SUCCESS"), Suppress
	}

	// 规则 3：Reactor Summary 区段整体不回显。
	if reactorSummaryPattern.MatchString(text) {
		next := state
		next.ReactorSummary = true
		return next, Suppress
	}
	if state.ReactorSummary {
		next := state
		if finalMemoryPattern.MatchString(text) {
			next.ReactorSummary = false
			return next, Suppress
		}
		if match := summaryFailedPattern.FindStringSubmatch(text); match != nil {
			next.FailedModules = appendUnique(state.FailedModules, match[1])
		}
		return next, Suppress
	}

	// 规则 4：分隔线。
	if separatorPattern.MatchString(text) {
		return state, Suppress
	}

	// 规则 5：错误标记行已被结构化捕获，依赖解析说明除外。
	if disposition, ok := classifyErrorMarker(text); ok {
		return state, disposition
	}

	// 规则 6：命令回显与工作目录行。
	if promptPattern.MatchString(text) || workDirPattern.MatchString(text) {
		return state, Suppress
	}

	return state, Echo
}

func classifyErrorMarker(text string) (Disposition, bool) {
	if errorMarkerPattern.MatchString(text) {
		if strings.Contains(text, dependencyExplanation) {
			return Echo, true
		}
		return Suppress, true
	}
	if strings.Contains(text, "http://") {
		return Echo, true
	}
	if execErrorPattern.MatchString(text) {
		return Suppress, true
	}
	if colonErrorPattern.MatchString(text) {
		if strings.Contains(text, dependencyExplanation) {
			return Echo, true
		}
		return Suppress, true
	}
	return Echo, false
}

// moduleName 取 "Building" 之后的第一个词作为模块名。
func moduleName(text string) string {
	loc := moduleStartPattern.FindStringIndex(text)
	fields := strings.Fields(text[loc[1]:])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func startModule(state model.ScanState, index int, name string) model.ScanState {
	next := state
	ranges := make([]model.ModuleRange, len(state.Ranges), len(state.Ranges)+1)
	copy(ranges, state.Ranges)

	// 上一个模块的区间止于分隔线之前，保证区间互不重叠。
	if last := len(ranges) - 1; last >= 0 && ranges[last].Open() {
		ranges[last].End = max(index-2, ranges[last].Start)
	}

	start := max(index-1, 0)
	if last := len(ranges) - 1; last >= 0 && start <= ranges[last].End {
		start = ranges[last].End + 1
	}
	ranges = append(ranges, model.ModuleRange{Module: name, Start: start, End: -1})

	next.Ranges = ranges
	next.InsideModule = true
	next.CurrentModule = name
	// 新模块开始意味着上一次汇总区段已经结束（Maven 3.5 之后不再输出 Final Memory）。
	next.ReactorSummary = false
	return next
}

func finishBuild(state model.ScanState, index int, success bool) model.ScanState {
	next := state

	if last := len(state.Ranges) - 1; last >= 0 && state.Ranges[last].Open() {
		ranges := make([]model.ModuleRange, len(state.Ranges))
		copy(ranges, state.Ranges)
		ranges[last].End = max(index-1, ranges[last].Start)
		next.Ranges = ranges
	}

	next.InsideModule = false
	next.CurrentModule = ""

	// FAILURE 一旦出现不会被之后的 SUCCESS 覆盖。
	switch {
	case !success:
		next.Verdict = model.VerdictFailure
	case state.Verdict == model.VerdictUnknown:
		next.Verdict = model.VerdictSuccess
	}
	return next
}

func appendUnique(items []string, item string) []string {
	for _, existing := range items {
		if existing == item {
			return items
		}
	}
	result := make([]string, len(items), len(items)+1)
	copy(result, items)
	return append(result, item)
}
