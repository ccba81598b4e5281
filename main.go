package main

import "github.com/olakz-ops/export-chat-converter/internal/cmd"

func main() {
	cmd.Execute()
}
