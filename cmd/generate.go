package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"workspace-live-go/internal/types"
	"workspace-live-go/internal/util"
)

// generateFlags は単発実行コマンドのフラグを保持するための構造体です。
var generateFlags struct {
	file        string
	instruction string
	write       bool
	imageAspect string
	imageSize   string
	imageOut    string
	videoAspect string
	resolution  string
	videoOut    string
	image       string
}

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "指示に従ってファイルを書き換えます。",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCodeCommand(cmd, generateFlags.instruction)
	},
}

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "ファイルに解説コメントを追加します。",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCodeCommand(cmd, "")
	},
}

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "ファイルのバグを修正します。",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCodeCommand(cmd, "")
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Google 検索のグラウンディング付きで質問に答えます。",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

var imageCmd = &cobra.Command{
	Use:   "image [prompt]",
	Short: "画像を1枚生成します。",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImage,
}

var videoCmd = &cobra.Command{
	Use:   "video [prompt]",
	Short: "動画を生成し、完了まで待ってファイルに保存します。",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runVideo,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [prompt]",
	Short: "画像ファイルを解析します。",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAnalyze,
}

func init() {
	for _, c := range []*cobra.Command{editCmd, explainCmd, fixCmd} {
		c.Flags().StringVarP(&generateFlags.file, "file", "f", "", "対象のファイル (必須)")
		c.MarkFlagRequired("file")
		c.Flags().BoolVarP(&generateFlags.write, "write", "w", false, "結果を標準出力ではなく元のファイルに書き込む")
	}
	editCmd.Flags().StringVar(&generateFlags.instruction, "instruction", "", "編集の指示 (必須)")
	editCmd.MarkFlagRequired("instruction")

	imageCmd.Flags().StringVar(&generateFlags.imageAspect, "aspect-ratio", "1:1", "アスペクト比 (例: 1:1, 16:9)")
	imageCmd.Flags().StringVar(&generateFlags.imageSize, "size", "1K", "解像度ティア (1K, 2K, 4K)")
	imageCmd.Flags().StringVarP(&generateFlags.imageOut, "out", "o", "image.png", "出力ファイル")

	videoCmd.Flags().StringVar(&generateFlags.videoAspect, "aspect-ratio", "16:9", "アスペクト比 (16:9, 9:16)")
	videoCmd.Flags().StringVar(&generateFlags.resolution, "resolution", "", "解像度 (省略時は設定値)")
	videoCmd.Flags().StringVarP(&generateFlags.videoOut, "out", "o", "video.mp4", "出力ファイル")

	analyzeCmd.Flags().StringVar(&generateFlags.image, "image", "", "解析する画像ファイル (必須)")
	analyzeCmd.MarkFlagRequired("image")

	rootCmd.AddCommand(editCmd, explainCmd, fixCmd, chatCmd, imageCmd, videoCmd, analyzeCmd)
}

func newCommandApp(cmd *cobra.Command) (*app, error) {
	cfg, logger, err := loadConfig(cmd, nil)
	if err != nil {
		return nil, err
	}
	return newApp(cmd.Context(), cfg, logger)
}

func runCodeCommand(cmd *cobra.Command, instruction string) error {
	a, err := newCommandApp(cmd)
	if err != nil {
		return err
	}
	src, err := os.ReadFile(generateFlags.file)
	if err != nil {
		return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	ctx := cmd.Context()
	var code string
	switch cmd.Name() {
	case "explain":
		code, err = a.studio.ExplainCode(ctx, string(src), generateFlags.file)
	case "fix":
		code, err = a.studio.FixBugs(ctx, string(src), generateFlags.file)
	default:
		var res types.GenerationResult
		res, err = a.studio.Generate(ctx, types.GenerationRequest{
			Prompt:     instruction,
			Capability: types.CapabilityEdit,
			Options:    types.GenerationOptions{Code: string(src), Filename: generateFlags.file},
		})
		code = res.Value
	}
	if err != nil {
		return err
	}

	if generateFlags.write {
		return os.WriteFile(generateFlags.file, []byte(code), 0o644)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), code)
	return err
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newCommandApp(cmd)
	if err != nil {
		return err
	}
	res, err := a.studio.Chat(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Text)
	if len(res.Sources) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for _, src := range res.Sources {
			fmt.Fprintf(out, "- %s (%s)\n", src.Title, src.URI)
		}
	}
	return nil
}

func runImage(cmd *cobra.Command, args []string) error {
	a, err := newCommandApp(cmd)
	if err != nil {
		return err
	}
	res, err := a.studio.Generate(cmd.Context(), types.GenerationRequest{
		Prompt:     strings.Join(args, " "),
		Capability: types.CapabilityImage,
		Options:    types.GenerationOptions{AspectRatio: generateFlags.imageAspect, ImageSize: generateFlags.imageSize},
	})
	if err != nil {
		return err
	}

	_, data, err := util.ParseDataURI(res.Value)
	if err != nil {
		return err
	}
	if err := os.WriteFile(generateFlags.imageOut, data, 0o644); err != nil {
		return fmt.Errorf("画像の保存に失敗: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), generateFlags.imageOut)
	return nil
}

func runVideo(cmd *cobra.Command, args []string) error {
	a, err := newCommandApp(cmd)
	if err != nil {
		return err
	}
	res, err := a.studio.Generate(cmd.Context(), types.GenerationRequest{
		Prompt:     strings.Join(args, " "),
		Capability: types.CapabilityVideo,
		Options:    types.GenerationOptions{AspectRatio: generateFlags.videoAspect, Resolution: generateFlags.resolution},
	})
	if err != nil {
		return err
	}

	// 単発実行ではブロブストアから取り出してファイルに書き出す
	data, _, err := a.blobs.Get(cmd.Context(), path.Base(res.Value))
	if err != nil {
		return err
	}
	if err := os.WriteFile(generateFlags.videoOut, data, 0o644); err != nil {
		return fmt.Errorf("動画の保存に失敗: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), generateFlags.videoOut)
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := newCommandApp(cmd)
	if err != nil {
		return err
	}
	img, err := os.ReadFile(generateFlags.image)
	if err != nil {
		return fmt.Errorf("画像の読み込みに失敗: %w", err)
	}

	res, err := a.studio.Generate(cmd.Context(), types.GenerationRequest{
		Prompt:     strings.Join(args, " "),
		Capability: types.CapabilityAnalyze,
		Options:    types.GenerationOptions{ImageDataURI: util.DataURI(http.DetectContentType(img), img)},
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Value)
	return err
}
