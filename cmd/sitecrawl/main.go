// Command sitecrawl crawls websites into filtered markdown, either as an
// HTTP service or as a one-shot CLI.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
