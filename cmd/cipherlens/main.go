// Command cipherlens scores URLs, pages and email for phishing and serves the
// detection API.
package main

import (
	"os"

	"github.com/cipherlens/cipherlens/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
