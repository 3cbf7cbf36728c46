// Command dbcrossbar moves tabular data between databases, cloud storage,
// and flat files while preserving a portable schema.
package main

import (
	"os"

	"github.com/dbcrossbar/dbcrossbar-go/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:], os.Stderr))
}
