package gemini

import "errors"

var (
	// ErrMissingCredential は APIキーが設定されていない場合に返されます。
	ErrMissingCredential = errors.New("gemini API key is not configured")

	// ErrNoResult はプロバイダの応答に期待したペイロード (画像・動画) が含まれない場合に返されます。
	ErrNoResult = errors.New("provider returned no result")

	// ErrGenerationFailed は動画オペレーションが結果なしで完了した場合に返されます。
	ErrGenerationFailed = errors.New("generation failed")

	// ErrPollExhausted はポーリング回数の上限に達した場合に返されます。
	ErrPollExhausted = errors.New("video operation polling exhausted")

	// ErrSessionActive はライブセッションが既に開いている場合に返されます。
	ErrSessionActive = errors.New("live session already active")

	// ErrSessionClosed はクローズ済みのセッションに送信しようとした場合に返されます。
	ErrSessionClosed = errors.New("live session closed")
)
