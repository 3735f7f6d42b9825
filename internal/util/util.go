package util

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// FenceMarker は Markdown のコードフェンス記号です。
const FenceMarker = "```"

// fencedBlock は応答全体を囲むコードフェンスにマッチします。
// 開始行の残り (言語タグや info string) は改行までまとめて読み飛ばします。
var fencedBlock = regexp.MustCompile("(?s)^\\s*```[^\\r\\n]*\\r?\\n(.*?)(?:\\r?\\n)?```\\s*$")

// inlineFence は1行で完結するフェンス (```x := 1```) にマッチします。
var inlineFence = regexp.MustCompile("^\\s*```([^`\\r\\n]*)```\\s*$")

// ErrInvalidDataURI は data URI の形式が不正な場合に返されます。
var ErrInvalidDataURI = errors.New("invalid data URI")

var languages = map[string]string{
	".go":    "go",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".py":    "python",
	".rb":    "ruby",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".swift": "swift",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".sh":    "bash",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".scss":  "scss",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".md":    "markdown",
	".xml":   "xml",
}

// LanguageFromFilename はファイル名の拡張子から言語名を推定します。不明な場合は "text" です。
func LanguageFromFilename(filename string) string {
	if lang, ok := languages[strings.ToLower(filepath.Ext(filename))]; ok {
		return lang
	}
	return "text"
}

// StripCodeFence は応答全体を囲む Markdown のコードフェンスを取り除きます。
func StripCodeFence(text string) string {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := inlineFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// DataURI は MIME タイプと生データから data URI を作ります。
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURI は data URI の接頭辞を取り除き、MIME タイプと生データを返します。
// 接頭辞がない場合は全体を base64 として扱います。
func ParseDataURI(uri string) (string, []byte, error) {
	mimeType := ""
	payload := uri
	if strings.HasPrefix(uri, "data:") {
		header, rest, ok := strings.Cut(uri, ",")
		if !ok {
			return "", nil, fmt.Errorf("%w: missing payload", ErrInvalidDataURI)
		}
		header = strings.TrimPrefix(header, "data:")
		if !strings.HasSuffix(header, ";base64") {
			return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURI)
		}
		// charset などのパラメータは捨てる
		mimeType, _, _ = strings.Cut(strings.TrimSuffix(header, ";base64"), ";")
		mimeType = strings.TrimSpace(mimeType)
		payload = rest
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: empty payload", ErrInvalidDataURI)
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	return mimeType, data, nil
}

// LoadPromptFile はシステム指示などのプロンプトファイルの内容を文字列として読み込みます。
func LoadPromptFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("プロンプトファイルの読み込みに失敗: %w", err)
	}
	return strings.TrimSpace(string(content)), nil
}
