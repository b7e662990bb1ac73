// Command attachsort files Gmail attachments into categorized Drive folders.
package main

import (
	"github.com/teemow/attachsort/cmd"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
