package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

var listURLRe = regexp.MustCompile(`https?://[^\s,;"'<>()\[\]]+`)

// readURLList returns every http(s) URL in r, in order of first appearance.
// Lines starting with '#' are skipped.
func readURLList(r io.Reader) ([]string, error) {
	var urls []string
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, u := range listURLRe.FindAllString(line, -1) {
			u = strings.TrimRight(u, ".")
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
		}
	}
	return urls, sc.Err()
}

func readURLListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer f.Close()
	return readURLList(f)
}
