package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguageFromFilename(t *testing.T) {
	tests := map[string]string{
		"main.go":          "go",
		"App.TSX":          "typescript",
		"scripts/build.sh": "bash",
		"README.md":        "markdown",
		"Makefile":         "text",
		"archive.xyz":      "text",
	}
	for name, want := range tests {
		assert.Equal(t, want, LanguageFromFilename(name), name)
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "language tag", in: "```go\nfunc main() {}\n```", want: "func main() {}"},
		{name: "no tag", in: "```\nx := 1\n```\n", want: "x := 1"},
		{name: "surrounding whitespace", in: "\n  ```python\nprint(1)\n```  \n", want: "print(1)"},
		{name: "plus in tag", in: "```c++\nint x;\n```", want: "int x;"},
		{name: "unfenced", in: "  plain code  ", want: "plain code"},
		{name: "multi line", in: "```js\na()\n\nb()\n```", want: "a()\n\nb()"},
		{name: "info string", in: "```go title=\"main.go\"\npackage main\n```", want: "package main"},
		{name: "single line", in: "```x := 1```", want: "x := 1"},
		{name: "crlf", in: "```go\r\npackage main\r\n```\r\n", want: "package main"},
		{name: "closing on last line", in: "```\nx := 1```", want: "x := 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripCodeFence(tt.in)
			assert.Equal(t, tt.want, got)
			assert.False(t, strings.Contains(got, FenceMarker))
		})
	}
}

func TestStripCodeFenceKeepsInnerFences(t *testing.T) {
	got := StripCodeFence("```md\na\n```\ntext\n```")
	assert.Contains(t, got, FenceMarker)
}

func TestDataURI(t *testing.T) {
	uri := DataURI("image/png", []byte("png-bytes"))
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	mime, data, err := ParseDataURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestParseDataURI(t *testing.T) {
	mime, data, err := ParseDataURI("data:image/jpeg;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, []byte("hello"), data)

	mime, data, err = ParseDataURI("aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, []byte("hello"), data)

	mime, data, err = ParseDataURI("data:image/png;charset=x;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, []byte("hello"), data)

	for _, bad := range []string{"data:image/png;base64", "data:image/png,aGVsbG8=", "data:image/png;base64,!!!", ""} {
		_, _, err := ParseDataURI(bad)
		assert.ErrorIs(t, err, ErrInvalidDataURI, bad)
	}
}

func TestLoadPromptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("  be helpful \n"), 0600))

	got, err := LoadPromptFile(path)
	require.NoError(t, err)
	assert.Equal(t, "be helpful", got)

	_, err = LoadPromptFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestSaveEnvValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", ".env")

	require.NoError(t, SaveEnvValue(path, "OTHER", "keep"))
	require.NoError(t, SaveEnvValue(path, "GEMINI_API_KEY", "abc123"))

	values, err := LoadEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", values["GEMINI_API_KEY"])
	assert.Equal(t, "keep", values["OTHER"])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadEnvFileMissing(t *testing.T) {
	values, err := LoadEnvFile(filepath.Join(t.TempDir(), "nope.env"))
	require.NoError(t, err)
	assert.Empty(t, values)
}
