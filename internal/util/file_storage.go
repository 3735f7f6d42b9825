package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// SaveEnvValue は env ファイルの key を value で更新します。他のキーは保持されます。
func SaveEnvValue(path, key, value string) error {
	values, err := LoadEnvFile(path)
	if err != nil {
		return err
	}
	values[key] = value

	// ファイルが配置されるディレクトリが存在しない場合、作成する
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("ディレクトリの作成に失敗: %w", err)
	}

	if err := godotenv.Write(values, path); err != nil {
		return fmt.Errorf("env ファイルの保存に失敗: %w", err)
	}
	// APIキーを含むためオーナーのみ読み書き可にする
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("env ファイルのパーミッション変更に失敗: %w", err)
	}
	return nil
}

// LoadEnvFile は env ファイルを読み込みます。ファイルが存在しない場合は空のマップを返します。
func LoadEnvFile(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("env ファイルの読み込みに失敗: %w", err)
	}
	return values, nil
}
