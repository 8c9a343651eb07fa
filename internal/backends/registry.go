// Package backends 提供按语言划分的构建日志错误提取器。
//
// 每个后端只负责自己工具链家族的诊断格式，后端本身无状态：
// 扫描位置、模块目录等上下文全部通过 Input 传入。
package backends

import (
	"fmt"
	"sort"
	"strings"

	"reactorlog/internal/model"
)

// Backend 定义单语言错误提取接口。
type Backend interface {
	// Name 返回配置中使用的后端名称（例如 java、cpp-linux）。
	Name() string
	// Language 返回后端面向的源语言。
	Language() string
	// Extract 在模块窗口内处理一行日志，可以向前/向后读取 Lines。
	Extract(in Input) Output
}

// TrailerExtractor 是可选能力：处理模块窗口之外（Reactor 结束之后）的行。
type TrailerExtractor interface {
	ExtractTrailer(in Input) Output
}

// Input 是一次提取调用的上下文。
type Input struct {
	// Line 为当前行原文，Index 为其在 Lines 中的下标。
	Line  string
	Index int
	// Lines 是会话已缓存的全部行，只读。
	Lines []string
	// ModuleHome 是当前模块目录提示，WorkDir 为构建工作目录（相对路径兜底）。
	ModuleHome string
	Module     string
	WorkDir    string
}

// Output 是提取结果。
type Output struct {
	// ModuleHome 非空表示本行更新了模块目录提示。
	ModuleHome string
	Fragments  []model.Fragment
}

// Descriptor 用于对外展示后端信息。
type Descriptor struct {
	Name     string
	Language string
	Grammars []string
}

// Registry 管理后端注册与名称查找。
type Registry struct {
	backends []Backend
	byName   map[string]Backend
}

// NewRegistry 创建并注册所有内置后端。
func NewRegistry() *Registry {
	backends := []Backend{
		&JavaBackend{},
		NewCppBackend("cpp", linuxGrammar, solarisGrammar, windowsGrammar),
		NewCppBackend("cpp-linux", linuxGrammar),
		NewCppBackend("cpp-solaris", solarisGrammar),
		NewCppBackend("cpp-windows", windowsGrammar),
	}

	registry := &Registry{
		backends: backends,
		byName:   make(map[string]Backend),
	}
	for _, backend := range backends {
		registry.byName[backend.Name()] = backend
	}
	return registry
}

// Lookup 按名称（大小写不敏感）查找后端。
func (r *Registry) Lookup(name string) (Backend, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = "java"
	}
	backend, ok := r.byName[key]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q, allowed values: %s", name, strings.Join(r.Names(), ", "))
	}
	return backend, nil
}

// Names 返回已注册的后端名称（已排序）。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for _, backend := range r.backends {
		names = append(names, backend.Name())
	}
	sort.Strings(names)
	return names
}

// Backends 返回已注册后端清单。
func (r *Registry) Backends() []Descriptor {
	result := make([]Descriptor, 0, len(r.backends))
	for _, backend := range r.backends {
		descriptor := Descriptor{Name: backend.Name(), Language: backend.Language()}
		if cpp, ok := backend.(*CppBackend); ok {
			descriptor.Grammars = cpp.GrammarNames()
		}
		result = append(result, descriptor)
	}

	sort.Slice(result, func(i int, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
