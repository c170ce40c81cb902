// pluginwatch builds and deploys an Obsidian plugin into a vault as you edit.
package main

import (
	"os"

	"github.com/obsidianware/pluginwatch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
