package studio

import (
	"context"
	"fmt"

	"workspace-live-go/internal/types"
)

// Generate は GenerationRequest を対応する機能に振り分けます。
// チャットの引用元が必要な場合は Chat を直接呼び出してください。
func (s *Studio) Generate(ctx context.Context, req types.GenerationRequest) (types.GenerationResult, error) {
	opts := req.Options

	switch req.Capability {
	case types.CapabilityEdit:
		code, err := s.EditCode(ctx, opts.Code, req.Prompt, opts.Filename)
		return types.GenerationResult{Kind: types.ResultText, Value: code}, err

	case types.CapabilityChat:
		res, err := s.Chat(ctx, req.Prompt)
		return types.GenerationResult{Kind: types.ResultText, Value: res.Text}, err

	case types.CapabilityImage:
		uri, err := s.GenerateImage(ctx, req.Prompt, opts.AspectRatio, opts.ImageSize)
		return types.GenerationResult{Kind: types.ResultImageDataURI, Value: uri}, err

	case types.CapabilityVideo:
		uri, err := s.generateVideo(ctx, req.Prompt, opts.AspectRatio, opts.Resolution)
		return types.GenerationResult{Kind: types.ResultVideoURI, Value: uri}, err

	case types.CapabilityAnalyze:
		text, err := s.AnalyzeImage(ctx, opts.ImageDataURI, req.Prompt)
		return types.GenerationResult{Kind: types.ResultAnalysisText, Value: text}, err

	default:
		return types.GenerationResult{}, fmt.Errorf("unsupported capability %q", req.Capability)
	}
}
