package main

import (
	"os"

	chatmergecmder "github.com/papercomputeco/chatmerge/cmd/chatmerge"
)

func main() {
	cmd := chatmergecmder.NewChatmergeCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
