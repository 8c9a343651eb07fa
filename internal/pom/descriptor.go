// Package pom 读写 Maven 工程描述文件（pom.xml），并把模块名解析为目录。
//
// 描述文件以 etree 文档的形式持有：注释、空白和属性顺序在回写时保持不变，
// 只有被显式修改的元素会变化。
package pom

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// FileName 是 Maven 工程描述文件的固定文件名。
const FileName = "pom.xml"

// xmlDeclaration 是回写时统一使用的 XML 声明内容。
const xmlDeclaration = `version="1.0" encoding="UTF-8"`

// Descriptor 是解析后的 pom.xml。
type Descriptor struct {
	doc *etree.Document
}

// ReadDescriptor 读取并解析指定路径的描述文件。
func ReadDescriptor(path string) (*Descriptor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open descriptor %s: %w", path, err)
	}
	defer file.Close()

	descriptor, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parse descriptor %s: %w", path, err)
	}
	return descriptor, nil
}

// Parse 从 reader 解析描述文件，要求恰好一个根元素。
func Parse(r io.Reader) (*Descriptor, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, err
	}

	switch roots := len(doc.ChildElements()); {
	case roots == 0:
		return nil, errors.New("no root element")
	case roots > 1:
		return nil, errors.New("multiple root elements")
	}
	return &Descriptor{doc: doc}, nil
}

// charsetReader 支持中文环境下常见的非 UTF-8 声明。
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "utf-8", "utf8", "us-ascii", "ascii":
		return input, nil
	case "gbk", "gb2312", "cp936":
		return simplifiedchinese.GBK.NewDecoder().Reader(input), nil
	case "gb18030":
		return simplifiedchinese.GB18030.NewDecoder().Reader(input), nil
	default:
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
}

// Root 返回根元素（通常是 project）。
func (d *Descriptor) Root() *etree.Element {
	return d.doc.Root()
}

// ArtifactID 返回根元素下 artifactId 的文本，缺失时为空串。
func (d *Descriptor) ArtifactID() string {
	if child := d.Root().SelectElement("artifactId"); child != nil {
		return strings.TrimSpace(child.Text())
	}
	return ""
}

// Modules 返回根元素下 modules/module 的非空路径，保持声明顺序。
func (d *Descriptor) Modules() []string {
	modules := d.Root().SelectElement("modules")
	if modules == nil {
		return nil
	}

	result := make([]string, 0)
	for _, module := range modules.SelectElements("module") {
		if text := strings.TrimSpace(module.Text()); text != "" {
			result = append(result, text)
		}
	}
	return result
}

// HasBuild 判断根元素下是否声明了 build 段。
func (d *Descriptor) HasBuild() bool {
	return d.Root().SelectElement("build") != nil
}

// Clone 深拷贝描述文件。
func (d *Descriptor) Clone() *Descriptor {
	return &Descriptor{doc: d.doc.Copy()}
}

// SetArtifactID 替换根元素下 artifactId 的文本。
func (d *Descriptor) SetArtifactID(id string) {
	child := d.Root().SelectElement("artifactId")
	if child == nil {
		child = d.Root().CreateElement("artifactId")
	}
	child.SetText(id)
}

// RemoveBuild 删除根元素下所有 build 段。
func (d *Descriptor) RemoveBuild() {
	removeChildElements(d.Root(), "build")
}

// SetModules 清空所有 modules 段（包括 profile 内的）中的 module，
// 再把 paths 依次写入根元素下的 modules 段；该段缺失时新建。
func (d *Descriptor) SetModules(paths []string) {
	indent := "\n        "
	closing := "\n    "

	root := d.Root()
	top := root.SelectElement("modules")
	if top != nil {
		indent, closing = indentation(top, indent, closing)
	}

	for _, modules := range d.doc.FindElements("//modules") {
		removeChildElements(modules, "module")
	}

	if top == nil {
		root.CreateText("    ")
		top = root.CreateElement("modules")
		root.CreateText("\n")
	}

	for len(top.Child) > 0 {
		top.RemoveChildAt(len(top.Child) - 1)
	}
	for _, path := range paths {
		top.CreateText(indent)
		top.CreateElement("module").SetText(path)
	}
	top.CreateText(closing)
}

// WriteTo 以 UTF-8 编码序列化描述文件，并补齐 XML 声明。
func (d *Descriptor) WriteTo(w io.Writer) (int64, error) {
	out := d.doc.Copy()
	out.WriteSettings.CanonicalText = true

	if inst, ok := leadingDeclaration(out); ok {
		inst.Inst = xmlDeclaration
	} else {
		inst := out.CreateProcInst("xml", xmlDeclaration)
		out.RemoveChild(inst)
		out.InsertChildAt(0, inst)

		newline := out.CreateText("\n")
		out.RemoveChild(newline)
		out.InsertChildAt(1, newline)
	}

	return out.WriteTo(w)
}

// WriteFile 把描述文件写入 path。
func (d *Descriptor) WriteFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create descriptor %s: %w", path, err)
	}

	writer := bufio.NewWriter(file)
	if _, err := d.WriteTo(writer); err != nil {
		file.Close()
		return fmt.Errorf("write descriptor %s: %w", path, err)
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("write descriptor %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close descriptor %s: %w", path, err)
	}
	return nil
}

// ReducedDescriptor 基于聚合工程模板生成只包含失败模块的重试描述文件。
//
// 约束说明：
// - artifactId 追加 -tmp 后缀，避免与原聚合工程冲突
// - build 段被删除
// - modules 替换为 ../<rel>，顺序与 relPaths 一致（描述文件位于工作目录的下一级）
func ReducedDescriptor(template *Descriptor, relPaths []string) *Descriptor {
	reduced := template.Clone()
	reduced.SetArtifactID(template.ArtifactID() + "-tmp")
	reduced.RemoveBuild()

	modules := make([]string, 0, len(relPaths))
	for _, rel := range relPaths {
		modules = append(modules, "../"+strings.TrimPrefix(strings.ReplaceAll(rel, `\`, "/"), "./"))
	}
	reduced.SetModules(modules)
	return reduced
}

func leadingDeclaration(doc *etree.Document) (*etree.ProcInst, bool) {
	if len(doc.Child) == 0 {
		return nil, false
	}
	inst, ok := doc.Child[0].(*etree.ProcInst)
	if !ok || inst.Target != "xml" {
		return nil, false
	}
	return inst, true
}

// removeChildElements 删除 tag 匹配的直接子元素，连同其前导空白。
func removeChildElements(parent *etree.Element, tag string) {
	for i := len(parent.Child) - 1; i >= 0; i-- {
		child, ok := parent.Child[i].(*etree.Element)
		if !ok || child.Tag != tag {
			continue
		}
		parent.RemoveChildAt(i)
		if i > 0 && isBlank(parent.Child[i-1]) {
			parent.RemoveChildAt(i - 1)
			i--
		}
	}
}

// indentation 从已有子元素推断缩进：首个子元素前的空白与末尾空白。
func indentation(e *etree.Element, indent string, closing string) (string, string) {
	for i, child := range e.Child {
		if _, ok := child.(*etree.Element); ok {
			if i > 0 && isBlank(e.Child[i-1]) {
				indent = e.Child[i-1].(*etree.CharData).Data
			}
			break
		}
	}
	if n := len(e.Child); n > 0 && isBlank(e.Child[n-1]) {
		closing = e.Child[n-1].(*etree.CharData).Data
	}
	return indent, closing
}

func isBlank(token etree.Token) bool {
	data, ok := token.(*etree.CharData)
	return ok && strings.TrimSpace(data.Data) == ""
}
