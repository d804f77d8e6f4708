package main

import (
	"os"

	"github.com/payhuk02/payhula-sub024/cmd/webhookctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
