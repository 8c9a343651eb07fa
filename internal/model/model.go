// Package model 定义 reactorlog 的核心数据模型。
// 这些结构会被分类器、语言后端、会话层和输出层共同使用。
package model

import "sort"

// LogLine 表示会话中捕获的一行原始输出，捕获后不可修改。
type LogLine struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Verdict 表示一次构建的总体结论。
// Unknown 表示尚未看到 BUILD SUCCESS / BUILD FAILURE 标记。
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictSuccess
	VerdictFailure
)

func (v Verdict) String() string {
	switch v {
	case VerdictSuccess:
		return "success"
	case VerdictFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// MarshalText 让 JSON 输出使用可读字符串。
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText 解析 MarshalText 的输出，未知取值视为 unknown。
func (v *Verdict) UnmarshalText(text []byte) error {
	switch string(text) {
	case "success":
		*v = VerdictSuccess
	case "failure":
		*v = VerdictFailure
	default:
		*v = VerdictUnknown
	}
	return nil
}

// Passed 仅在结论明确为成功时返回 true。
func (v Verdict) Passed() bool {
	return v == VerdictSuccess
}

// ModuleRange 记录某个模块在日志中的行区间（闭区间）。
// End 为 -1 表示区间尚未关闭。
type ModuleRange struct {
	Module string `json:"module"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// Open 判断区间是否仍在记录中。
func (r ModuleRange) Open() bool {
	return r.End < 0
}

// ScanState 是分类器的扫描状态。
// 只能由分类器按行顺序推进，不允许并发访问。
type ScanState struct {
	InsideModule   bool          `json:"inside_module"`
	CurrentModule  string        `json:"current_module,omitempty"`
	ReactorSummary bool          `json:"reactor_summary"`
	Ranges         []ModuleRange `json:"ranges"`
	Verdict        Verdict       `json:"verdict"`
	// FailedModules 来自 Reactor Summary 中 FAILURE/SKIPPED 的模块名，保持出现顺序且去重。
	FailedModules []string `json:"failed_modules,omitempty"`
}

// RangeOf 返回模块最近一次出现的行区间。
func (s ScanState) RangeOf(module string) (ModuleRange, bool) {
	for i := len(s.Ranges) - 1; i >= 0; i-- {
		if s.Ranges[i].Module == module {
			return s.Ranges[i], true
		}
	}
	return ModuleRange{}, false
}

// DiagnosticClass 是错误的诊断类别，用于通知邮件分组。
type DiagnosticClass string

const (
	ClassCompile DiagnosticClass = "compile"
	ClassTest    DiagnosticClass = "test"
	ClassLink    DiagnosticClass = "link"
	ClassProject DiagnosticClass = "project"
)

// Fragment 是语言后端从一行日志（及其窗口）中提取出的错误片段。
// 会话层负责把片段合并为 ErrorRecord。
type Fragment struct {
	File       string          `json:"file,omitempty"`
	ModuleHome string          `json:"module_home,omitempty"`
	Module     string          `json:"module,omitempty"`
	Class      DiagnosticClass `json:"class"`
	Line       int             `json:"line,omitempty"`
	Text       []string        `json:"text"`
}

// Diagnostic 是 ErrorRecord 中带行号的一条消息。Line 为 0 表示行号未知。
type Diagnostic struct {
	Line  int             `json:"line,omitempty"`
	Class DiagnosticClass `json:"class"`
	Text  []string        `json:"text"`
}

// ErrorRecord 是一个文件（或模块目录）的结构化错误。
//
// 注意：
// - File 为空表示尚未定位到具体源文件的模块级失败（例如链接错误）
// - File 非空时一定是绝对且规范化的路径
// - LineNumber/Message 与 Diagnostics 的第一条保持一致
type ErrorRecord struct {
	File        string          `json:"file,omitempty"`
	ModuleHome  string          `json:"module_home,omitempty"`
	Module      string          `json:"module,omitempty"`
	Class       DiagnosticClass `json:"class"`
	LineNumber  int             `json:"line_number,omitempty"`
	Message     []string        `json:"message"`
	Diagnostics []Diagnostic    `json:"diagnostics"`
	LogWindow   []string        `json:"log_window,omitempty"`
	Author      string          `json:"author,omitempty"`
	Email       string          `json:"email,omitempty"`
	CommitDate  string          `json:"commit_date,omitempty"`
	RepoURL     string          `json:"repo_url,omitempty"`
}

// Key 返回记录在会话中的唯一键。
func (r *ErrorRecord) Key() string {
	return fragmentKey(r.File, r.ModuleHome, r.Module)
}

// Key 返回片段将要合并到的记录键。
func (f Fragment) Key() string {
	return fragmentKey(f.File, f.ModuleHome, f.Module)
}

func fragmentKey(file string, home string, module string) string {
	if file != "" {
		return file
	}
	if home != "" {
		return home
	}
	return "project:" + module
}

// AddDiagnostic 合并一条诊断：行号与首行文本都相同视为重复，保留先出现的一条；
// 否则按出现顺序追加。同一行上的多个错误（不同列）因此各自保留。
func (r *ErrorRecord) AddDiagnostic(d Diagnostic) {
	for _, existing := range r.Diagnostics {
		if existing.Line == d.Line && headText(existing.Text) == headText(d.Text) {
			return
		}
	}
	r.Diagnostics = append(r.Diagnostics, d)
	r.syncHead()
}

func headText(text []string) string {
	if len(text) == 0 {
		return ""
	}
	return text[0]
}

func (r *ErrorRecord) syncHead() {
	if len(r.Diagnostics) == 0 {
		return
	}
	head := r.Diagnostics[0]
	r.LineNumber = head.Line
	r.Message = head.Text
}

// SessionResult 是一次构建会话对外投影出的结果。
type SessionResult struct {
	ID            string         `json:"id"`
	Command       string         `json:"command,omitempty"`
	WorkDir       string         `json:"work_dir,omitempty"`
	Backend       string         `json:"backend"`
	Verdict       Verdict        `json:"verdict"`
	Records       []*ErrorRecord `json:"records"`
	Ranges        []ModuleRange  `json:"ranges"`
	FailedModules []string       `json:"failed_modules,omitempty"`
	Retried       bool           `json:"retried"`
	Lines         int            `json:"lines"`
}

// RecordMap 把记录按 Key 展开为映射，便于程序化消费。
func (r SessionResult) RecordMap() map[string]*ErrorRecord {
	result := make(map[string]*ErrorRecord, len(r.Records))
	for _, record := range r.Records {
		result[record.Key()] = record
	}
	return result
}

// LogResult 是离线扫描单个日志文件的结果。
type LogResult struct {
	Path   string        `json:"path"`
	Result SessionResult `json:"result"`
}

// ScanError 记录单个日志文件读取失败的信息。
// 单个文件失败不会中止整个目录的扫描。
type ScanError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// ScanTotal 是离线扫描的汇总。
type ScanTotal struct {
	Logs    int64 `json:"logs"`
	Failed  int64 `json:"failed"`
	Records int64 `json:"records"`
}

// ScanResult 是 scan 命令的完整输出模型。
type ScanResult struct {
	ScannedPath string      `json:"scanned_path"`
	Logs        []LogResult `json:"logs"`
	Total       ScanTotal   `json:"total"`
	Errors      []ScanError `json:"errors"`
}

// SortRecords 按文件路径（模块级记录按键）排序，用于稳定输出。
func SortRecords(records []*ErrorRecord) {
	sort.SliceStable(records, func(i int, j int) bool {
		return records[i].Key() < records[j].Key()
	})
}
