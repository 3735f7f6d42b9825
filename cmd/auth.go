package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"workspace-live-go/internal/config"
	"workspace-live-go/internal/util"
)

// authCmd は Gemini APIキーを env ファイルに保存するためのコマンド定義です。
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Gemini APIキーを env ファイルに保存します。",
	Long: `--gemini-api-key で指定したキー、または標準入力から読み込んだキーを
env ファイル (既定は .env) の GEMINI_API_KEY として保存します。既存の他のキーは保持されます。`,
	RunE: authApplication,
}

func init() {
	rootCmd.AddCommand(authCmd)
}

// authApplication はキーを保存します。
func authApplication(cmd *cobra.Command, args []string) error {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		fmt.Fprint(cmd.ErrOrStderr(), "Gemini APIキーを入力してください: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("APIキーの読み込みに失敗: %w", err)
		}
		key = strings.TrimSpace(line)
	}
	if key == "" {
		return fmt.Errorf("APIキーが空です")
	}

	path := config.EnvFileOrDefault(envFile)
	if err := util.SaveEnvValue(path, config.APIKeyEnv, key); err != nil {
		return err
	}

	slog.Info("✅ APIキーを保存しました", "path", path)
	return nil
}
