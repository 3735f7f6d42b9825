package types

// Capability は UI アクションが対象とする生成機能です。
type Capability string

const (
	CapabilityEdit    Capability = "edit"
	CapabilityChat    Capability = "chat"
	CapabilityImage   Capability = "image"
	CapabilityVideo   Capability = "video"
	CapabilityAnalyze Capability = "analyze"
	CapabilityLive    Capability = "live"
)

// GenerationOptions は機能ごとのオプションと入力です。
type GenerationOptions struct {
	AspectRatio string // 画像・動画 (例: 1:1, 16:9)
	Resolution  string // 動画 (例: 720p)
	ImageSize   string // 画像の解像度ティア (例: 1K, 2K, 4K)

	Code         string // 編集対象のコード
	Filename     string // 編集対象のファイル名 (言語の推定に使用)
	ImageDataURI string // 解析対象の画像
}

// GenerationRequest は一度発行したら変更しない生成リクエストです。値で受け渡します。
type GenerationRequest struct {
	Prompt     string
	Capability Capability
	Options    GenerationOptions
}

// ResultKind は GenerationResult のバリアントです。
type ResultKind int

const (
	ResultText ResultKind = iota + 1
	ResultImageDataURI
	ResultVideoURI
	ResultAnalysisText
)

// GenerationResult は生成結果です。リトライ状態は持ちません。
type GenerationResult struct {
	Kind  ResultKind
	Value string
}

// Source はチャット応答のグラウンディング引用元です。
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// ChatResult はチャットの応答テキストと引用元です。
type ChatResult struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// VideoOperation はサーバー側で進行中の動画生成ジョブの状態です。
// ポーリングループのみが更新し、Done になった時点で終端です。
type VideoOperation struct {
	Name      string
	Done      bool
	ResultURI string
	// Err はプロバイダが報告したオペレーションエラーです。
	Err string
}
