package main

import (
	"github.com/spf13/afero"
	"os"
)

func main() {
	cmd := newRootCommand(afero.NewOsFs())
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
