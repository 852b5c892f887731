// Command splitstress hammers a split-list set with concurrent writers, readers and extractors and verifies the outcome.
package main

import (
	"os"

	"github.com/g-m-twostay/go-cds/cmd/splitstress/cmd"
)

func main() {
	os.Exit(cmd.Main())
}
