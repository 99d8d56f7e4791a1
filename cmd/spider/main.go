// Command spider runs a crawl with one of the bundled handlers and writes the
// scraped items to stdout, a blob store or a Pub/Sub topic.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
