package main

import (
	"os"
)

func main() {
	application := NewApplication()
	if err := application.RootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
