// Package audio はライブ音声ブリッジで使う PCM 変換を提供します。
// 送信は 16kHz モノラル 16bit 符号付き LE PCM、ブラウザとの受け渡しは float32 LE です。
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// SampleRate はマイク入力の固定サンプルレートです。
	SampleRate = 16000

	// quantizeScale は [-1,1] を int16 へ写す係数です。-1.0 は -32768 ではなく -32767 になります。
	quantizeScale = 32767

	// normalizeScale は int16 を [-1,1) へ戻す係数です。
	normalizeScale = 32768
)

// Frame は 16bit 符号付き PCM サンプルのバッファです。
type Frame struct {
	Samples []int16
}

// Quantize は1サンプルを [-1,1] にクランプしてから int16 に量子化します。
func Quantize(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(s * quantizeScale)
}

// Normalize は int16 サンプルを浮動小数点に戻します。
func Normalize(v int16) float32 {
	return float32(v) / normalizeScale
}

// Encode はキャプチャしたサンプルを Frame に変換します。
func Encode(samples []float32) Frame {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = Quantize(s)
	}
	return Frame{Samples: out}
}

// Bytes はフレームをリトルエンディアンのバイト列にします。
func (f Frame) Bytes() []byte {
	buf := make([]byte, len(f.Samples)*2)
	for i, s := range f.Samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// MIMEType は Live API に渡す入力音声の MIME タイプを返します。
func MIMEType(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}

// Decode は 16bit LE PCM を正規化した float32 サンプルに変換します。
// 奇数長の末尾1バイトは捨てます。
func Decode(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = Normalize(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out
}

// Float32Bytes は float32 サンプルを LE バイト列にします (ブラウザへの再生データ)。
func Float32Bytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

// Float32Samples は LE バイト列を float32 サンプルに戻します (ブラウザからのマイク入力)。
func Float32Samples(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("float32 サンプル列の長さが不正です: %d bytes", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

// RateFromMIME は "audio/pcm;rate=24000" のような MIME からサンプルレートを取り出します。
// 含まれない場合は fallback を返します。
func RateFromMIME(mime string, fallback int) int {
	for _, param := range strings.Split(mime, ";")[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(k, "rate") {
			continue
		}
		if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
			return rate
		}
	}
	return fallback
}
