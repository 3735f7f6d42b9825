package types

import "google.golang.org/genai"

// LiveAPIConfig は Gemini Live API の接続とセッション設定を保持します。
type LiveAPIConfig struct {
	// Live APIで使用するモデル名
	Model string

	// 応答音声のプリセットボイス名 (例: Zephyr)
	Voice string

	// 応答のキャラクター設定や指示 (空の場合は送信しない)
	SystemInstruction string

	// Live APIで受け取りたい出力形式。音声のみの応答では AUDIO を1つだけ指定します。
	ResponseModalities []genai.Modality

	// 入力音声のサンプルレート (Hz)
	InputSampleRate int

	// 応答音声の MIME にレートが含まれない場合に使うサンプルレート (Hz)
	OutputSampleRate int
}

// LiveStreamData は Live API に送信するリアルタイム入力 (音声フレーム) を定義します。
type LiveStreamData struct {
	// データの種類 (例: audio/pcm;rate=16000)
	MimeType string

	// データの生バイト列 (16bit LE PCM)
	Data []byte
}

// LiveEventKind はライブセッションから届くイベントの種別です。
type LiveEventKind int

const (
	SessionOpened LiveEventKind = iota + 1
	AudioFrameReceived
	TranscriptDelta
	SessionClosed
)

func (k LiveEventKind) String() string {
	switch k {
	case SessionOpened:
		return "opened"
	case AudioFrameReceived:
		return "audio"
	case TranscriptDelta:
		return "transcript"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// LiveEvent はライブセッションのイベントです。Kind によって有効なフィールドが決まります。
//
//	AudioFrameReceived: PCM, SampleRate
//	TranscriptDelta:    Text
//	SessionClosed:      Reason, Err
type LiveEvent struct {
	Kind       LiveEventKind
	PCM        []byte
	SampleRate int
	Text       string
	Reason     string
	Err        error
}
