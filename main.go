package main

import (
	"os"

	"github.com/querymind/querymind/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
