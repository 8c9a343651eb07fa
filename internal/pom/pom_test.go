package pom

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aggregatorPOM = `<?xml version="1.0" encoding="UTF-8"?>
<!-- aggregator -->
<project xmlns="http://maven.apache.org/POM/4.0.0" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
    <modelVersion>4.0.0</modelVersion>
    <groupId>com.acme</groupId>
    <artifactId>parent</artifactId>
    <packaging>pom</packaging>
    <modules>
        <module>mod/a</module>
        <module>mod/b</module>
        <module>broken</module>
    </modules>
    <build>
        <plugins/>
    </build>
    <profiles>
        <profile>
            <modules>
                <module>extra</module>
            </modules>
        </profile>
    </profiles>
</project>
`

func modulePOM(id string, modules ...string) string {
	var sb strings.Builder
	sb.WriteString("<project xmlns=\"http://maven.apache.org/POM/4.0.0\">\n")
	sb.WriteString("    <artifactId>" + id + "</artifactId>\n")
	if len(modules) > 0 {
		sb.WriteString("    <modules>\n")
		for _, module := range modules {
			sb.WriteString("        <module>" + module + "</module>\n")
		}
		sb.WriteString("    </modules>\n")
	}
	sb.WriteString("</project>\n")
	return sb.String()
}

func writeFile(t *testing.T, path string, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file failed: %v", err)
	}
}

// fixtureTree 构造 parent → {mod/a → A, mod/b → B, broken}。
func fixtureTree(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), aggregatorPOM)
	writeFile(t, filepath.Join(root, "mod", "a", FileName), modulePOM("A"))
	writeFile(t, filepath.Join(root, "mod", "b", FileName), modulePOM("B", "nested"))
	writeFile(t, filepath.Join(root, "mod", "b", "nested", FileName), modulePOM("${prefix}native"))
	writeFile(t, filepath.Join(root, "broken", FileName), "<project><artifactId>x</project>")
	return root
}

func TestParseDescriptor(t *testing.T) {
	descriptor, err := Parse(strings.NewReader(aggregatorPOM))
	require.NoError(t, err)

	assert.Equal(t, "parent", descriptor.ArtifactID())
	assert.Equal(t, []string{"mod/a", "mod/b", "broken"}, descriptor.Modules())
	assert.True(t, descriptor.HasBuild())
	assert.Equal(t, "project", descriptor.Root().Tag)
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, input := range []string{"", "<project>", "<project></other>", "<a/><b/>"} {
		if _, err := Parse(strings.NewReader(input)); err == nil {
			t.Fatalf("expected parse error for %q", input)
		}
	}
}

func TestRoundTripPreservesLayout(t *testing.T) {
	descriptor, err := Parse(strings.NewReader(aggregatorPOM))
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = descriptor.WriteTo(&buf)
	require.NoError(t, err)

	if diff := cmp.Diff(aggregatorPOM, buf.String()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseGBKDeclaration(t *testing.T) {
	// “模块” 的 GBK 编码。
	input := append([]byte(`<?xml version="1.0" encoding="GBK"?><project><name>`), 0xc4, 0xa3, 0xbf, 0xe9)
	input = append(input, []byte(`</name></project>`)...)

	descriptor, err := Parse(bytes.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "模块", descriptor.Root().SelectElement("name").Text())
}

func TestWriteNormalizesDeclaration(t *testing.T) {
	descriptor, err := Parse(strings.NewReader(modulePOM("solo")))
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = descriptor.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"+modulePOM("solo"), buf.String())

	input := append([]byte(`<?xml version="1.0" encoding="GBK"?><project><name>`), 0xc4, 0xa3, 0xbf, 0xe9)
	input = append(input, []byte(`</name></project>`)...)
	gbk, err := Parse(bytes.NewReader(input))
	require.NoError(t, err)

	buf.Reset()
	_, err = gbk.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?><project><name>模块</name></project>`, buf.String())
}

func TestSetModulesKeepsIndentation(t *testing.T) {
	template, err := Parse(strings.NewReader(aggregatorPOM))
	require.NoError(t, err)

	reduced := ReducedDescriptor(template, []string{"mod/a"})
	var buf bytes.Buffer
	_, err = reduced.WriteTo(&buf)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "    <artifactId>parent-tmp</artifactId>\n")
	assert.Contains(t, out, "    <modules>\n        <module>../mod/a</module>\n    </modules>\n")
	assert.NotContains(t, out, "<build>")
	assert.Contains(t, out, "<!-- aggregator -->")
}

// TestReducedDescriptor 对应重试裁剪场景：模块顺序与失败顺序一致。
func TestReducedDescriptor(t *testing.T) {
	template, err := Parse(strings.NewReader(aggregatorPOM))
	require.NoError(t, err)

	reduced := ReducedDescriptor(template, []string{"mod/a", `mod\b`})

	assert.Equal(t, []string{"../mod/a", "../mod/b"}, reduced.Modules())
	assert.Equal(t, "parent-tmp", reduced.ArtifactID())
	assert.NotEqual(t, template.ArtifactID(), reduced.ArtifactID())
	assert.False(t, reduced.HasBuild())

	// 模板本身保持不变。
	assert.Equal(t, []string{"mod/a", "mod/b", "broken"}, template.Modules())
	assert.True(t, template.HasBuild())

	var buf bytes.Buffer
	_, err = reduced.WriteTo(&buf)
	require.NoError(t, err)
	out := buf.String()
	assert.NotContains(t, out, "<module>extra</module>")
	assert.Contains(t, out, "<module>../mod/a</module>")
	assert.Contains(t, out, `xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"`)

	reparsed, err := Parse(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, reduced.Modules(), reparsed.Modules())
}

func TestReducedDescriptorWithoutModulesSection(t *testing.T) {
	template, err := Parse(strings.NewReader(modulePOM("solo")))
	require.NoError(t, err)

	reduced := ReducedDescriptor(template, []string{"x"})
	assert.Equal(t, []string{"../x"}, reduced.Modules())
}

func TestWriteFile(t *testing.T) {
	template, err := Parse(strings.NewReader(aggregatorPOM))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, ReducedDescriptor(template, []string{"mod/a"}).WriteFile(path))

	written, err := ReadDescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"../mod/a"}, written.Modules())

	err = template.WriteFile(filepath.Join(t.TempDir(), "missing", FileName))
	require.Error(t, err)
}

func TestResolveModulePaths(t *testing.T) {
	root := fixtureTree(t)

	nested := filepath.Join(root, "mod", "b", "nested")
	got := ResolveModulePaths(root, "linux")
	want := map[string]string{
		"parent":          root,
		"A":               filepath.Join(root, "mod", "a"),
		"B":               filepath.Join(root, "mod", "b"),
		"${prefix}native": nested,
		"libnative":       nested,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("module paths mismatch (-want +got):\n%s", diff)
	}

	windows := ResolveModulePaths(root, "windows")
	assert.Equal(t, nested, windows["native"])
	assert.NotContains(t, windows, "libnative")
}

func TestResolveModulePathsMissingRoot(t *testing.T) {
	assert.Empty(t, ResolveModulePaths(t.TempDir(), "linux"))
}

func TestResolveArtifactID(t *testing.T) {
	root := fixtureTree(t)
	source := filepath.Join(root, "mod", "a", "src", "main", "java", "Foo.java")
	writeFile(t, source, "class Foo {}")

	id, ok := ResolveArtifactID(source, "linux")
	require.True(t, ok)
	assert.Equal(t, "A", id)

	id, ok = ResolveArtifactID(filepath.Join(root, "mod"), "linux")
	require.True(t, ok)
	assert.Equal(t, "parent", id)

	nested := filepath.Join(root, "mod", "b", "nested")
	id, ok = ResolveArtifactID(nested, "linux")
	require.True(t, ok)
	assert.Equal(t, "libnative", id)

	id, ok = ResolveArtifactID(nested, "windows")
	require.True(t, ok)
	assert.Equal(t, "native", id)

	_, ok = ResolveArtifactID(filepath.Join(root, "broken"), "linux")
	assert.False(t, ok)

	_, ok = ResolveArtifactID(filepath.Join(root, "does-not-exist"), "linux")
	assert.False(t, ok)
}
