// Package session 驱动一次构建会话：逐行分类回显、缓存日志、
// 失败时调用语言后端提取错误记录，并在需要时只重试失败模块。
package session

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reactorlog/internal/backends"
	"reactorlog/internal/classifier"
	"reactorlog/internal/model"
	"reactorlog/internal/pom"
)

// Session 是单次构建的扫描状态与日志缓冲。
//
// 约束说明：
// - 只能被一个 goroutine 顺序 Feed
// - lines 只追加不修改，供后端向前/向后读取窗口
type Session struct {
	id      string
	command string
	workDir string
	backend backends.Backend
	echo    io.Writer
	logger  *zap.Logger
	goos    string

	state   model.ScanState
	lines   []string
	retried bool
}

// Config 是创建会话的参数。
type Config struct {
	Command string
	WorkDir string
	Backend backends.Backend
	// Echo 接收分类为 Echo 的行，为 nil 时不回显。
	Echo   io.Writer
	Logger *zap.Logger
	// GOOS 决定 ${prefix} 的展开方式，为空时使用 runtime.GOOS。
	GOOS string
}

// New 创建会话并分配唯一 ID。
func New(cfg Config) *Session {
	id := uuid.NewString()
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	backend := cfg.Backend
	if backend == nil {
		backend = &backends.JavaBackend{}
	}
	goos := cfg.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	return &Session{
		id:      id,
		command: cfg.Command,
		workDir: cfg.WorkDir,
		backend: backend,
		echo:    cfg.Echo,
		logger:  logger.With(zap.String("session", id), zap.String("backend", backend.Name())),
		goos:    goos,
	}
}

// ID 返回会话 ID。
func (s *Session) ID() string {
	return s.id
}

// Feed 缓存一行并推进扫描状态，Echo 行写入回显输出。
func (s *Session) Feed(text string) classifier.Disposition {
	index := len(s.lines)
	s.lines = append(s.lines, text)

	var disposition classifier.Disposition
	s.state, disposition = classifier.Classify(s.state, model.LogLine{Index: index, Text: text})
	if disposition == classifier.Echo && s.echo != nil {
		fmt.Fprintln(s.echo, text)
	}
	return disposition
}

// MarkFailed 在进程非零退出时强制结论为失败。
func (s *Session) MarkFailed() {
	s.state.Verdict = model.VerdictFailure
}

// State 返回当前扫描状态。
func (s *Session) State() model.ScanState {
	return s.state
}

// Lines 返回已缓存的日志行（只读）。
func (s *Session) Lines() []string {
	return s.lines
}

// Analyze 从头重放分类器，在模块窗口内调用后端提取片段，
// 窗口之外交给后端的 TrailerExtractor（若实现），最后合并为错误记录。
func (s *Session) Analyze() []*model.ErrorRecord {
	assembler := newAssembler()
	trailer, _ := s.backend.(backends.TrailerExtractor)

	state := model.ScanState{}
	home := ""
	for index, text := range s.lines {
		before := state
		state, _ = classifier.Classify(state, model.LogLine{Index: index, Text: text})

		if len(state.Ranges) != len(before.Ranges) {
			// 新模块开始，旧的目录提示不再适用。
			home = ""
			continue
		}
		if before.InsideModule != state.InsideModule {
			continue
		}

		in := backends.Input{
			Line:       text,
			Index:      index,
			Lines:      s.lines,
			ModuleHome: home,
			Module:     state.CurrentModule,
			WorkDir:    s.workDir,
		}

		var out backends.Output
		switch {
		case state.InsideModule:
			out = s.backend.Extract(in)
		case trailer != nil:
			out = trailer.ExtractTrailer(in)
		default:
			continue
		}

		if out.ModuleHome != "" {
			home = out.ModuleHome
		}
		for _, fragment := range out.Fragments {
			assembler.add(fragment)
		}
	}

	records := assembler.records()
	s.attachWindows(records, state)
	s.logger.Debug("session analyzed", zap.Int("lines", len(s.lines)), zap.Int("records", len(records)))
	return records
}

// attachWindows 为每条记录附上所属模块在日志中的区间。
// 先用源文件所在工程的 artifactId 定位模块，失败时退回记录上的模块名。
func (s *Session) attachWindows(records []*model.ErrorRecord, state model.ScanState) {
	for _, record := range records {
		candidates := make([]string, 0, 2)
		if path := record.File; path != "" || record.ModuleHome != "" {
			if path == "" {
				path = record.ModuleHome
			}
			if id, ok := pom.ResolveArtifactID(path, s.goos); ok {
				candidates = append(candidates, id)
			}
		}
		if record.Module != "" {
			candidates = append(candidates, record.Module)
		}

		for _, module := range candidates {
			moduleRange, ok := state.RangeOf(module)
			if !ok {
				continue
			}
			record.LogWindow = s.window(moduleRange)
			break
		}
	}
}

func (s *Session) window(r model.ModuleRange) []string {
	end := r.End
	if end < 0 || end >= len(s.lines) {
		end = len(s.lines) - 1
	}
	if r.Start > end {
		return nil
	}
	return append([]string(nil), s.lines[r.Start:end+1]...)
}

// Result 投影出会话结果；records 为 nil 表示未做分析（构建成功）。
func (s *Session) Result(records []*model.ErrorRecord) model.SessionResult {
	if records == nil {
		records = []*model.ErrorRecord{}
	}
	return model.SessionResult{
		ID:            s.id,
		Command:       s.command,
		WorkDir:       s.workDir,
		Backend:       s.backend.Name(),
		Verdict:       s.state.Verdict,
		Records:       records,
		Ranges:        append([]model.ModuleRange(nil), s.state.Ranges...),
		FailedModules: append([]string(nil), s.state.FailedModules...),
		Retried:       s.retried,
		Lines:         len(s.lines),
	}
}

// assembler 按键合并片段：首次出现的片段决定记录元数据，之后只合并诊断。
type assembler struct {
	byKey   map[string]*model.ErrorRecord
	order   []*model.ErrorRecord
	modules map[string]bool
}

func newAssembler() *assembler {
	return &assembler{
		byKey:   make(map[string]*model.ErrorRecord),
		modules: make(map[string]bool),
	}
}

func (a *assembler) add(fragment model.Fragment) {
	// 工程级错误只在该模块还没有任何记录时保留。
	if fragment.Class == model.ClassProject && a.modules[fragment.Module] {
		return
	}

	key := fragment.Key()
	record, ok := a.byKey[key]
	if !ok {
		record = &model.ErrorRecord{
			File:       fragment.File,
			ModuleHome: fragment.ModuleHome,
			Module:     fragment.Module,
			Class:      fragment.Class,
		}
		a.byKey[key] = record
		a.order = append(a.order, record)
	}
	if fragment.Module != "" {
		a.modules[fragment.Module] = true
	}
	record.AddDiagnostic(model.Diagnostic{
		Line:  fragment.Line,
		Class: fragment.Class,
		Text:  trimLines(fragment.Text),
	})
}

func (a *assembler) records() []*model.ErrorRecord {
	return a.order
}

func trimLines(lines []string) []string {
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		result = append(result, strings.TrimRight(line, " \t\r"))
	}
	return result
}
