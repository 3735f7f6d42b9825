package main

import (
	"log"

	"workspace-live-go/cmd"
)

func main() {
	// エラーが発生した場合、ログに出力してプログラムを終了する
	if err := cmd.Execute(); err != nil {
		log.Fatalf("CLI tool execution failed: %v", err)
	}
}
