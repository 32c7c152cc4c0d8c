// Command benchmark measures end-to-end crawl throughput of a running
// sitecrawl API against a fixed set of sites.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/use-agent/sitecrawl/models"
)

var (
	apiURL   = flag.String("api-url", "http://localhost:8080", "sitecrawl API base URL")
	apiKey   = flag.String("api-key", "", "API key for authenticated requests")
	runs     = flag.Int("runs", 2, "number of crawls per site for averaging")
	maxPages = flag.Int("max-pages", 10, "page cap per crawl")
	output   = flag.String("output", "benchmark-results.json", "JSON output file path")
	deadline = flag.Duration("deadline", 5*time.Minute, "give up on a crawl after this long")
)

// Sites covering static pages, docs and heavier rendered sites.
var testSites = []struct {
	Label string
	URL   string
}{
	{"Static", "https://example.com"},
	{"Blog", "https://go.dev/blog"},
	{"Docs", "https://go.dev/doc"},
	{"News", "https://www.bbc.com/news"},
	{"Complex", "https://github.com/go-rod/rod"},
}

type runResult struct {
	Run         int             `json:"run"`
	ElapsedMs   int64           `json:"elapsed_ms"`
	State       models.JobState `json:"state"`
	Fetched     int             `json:"fetched"`
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
	Discovered  int             `json:"discovered"`
	AvgWords    float64         `json:"avg_words"`
	PagesPerSec float64         `json:"pages_per_sec"`
	Error       string          `json:"error,omitempty"`
}

func (r runResult) ok() bool { return r.State == models.JobCompleted }

type siteAverages struct {
	ElapsedMs   float64 `json:"elapsed_ms"`
	Fetched     float64 `json:"fetched"`
	SuccessRate float64 `json:"success_rate"`
	PagesPerSec float64 `json:"pages_per_sec"`
	AvgWords    float64 `json:"avg_words"`
}

type siteResult struct {
	URL      string        `json:"url"`
	Label    string        `json:"label"`
	Runs     []runResult   `json:"runs"`
	Averages *siteAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp   string       `json:"timestamp"`
	APIURL      string       `json:"api_url"`
	RunsPerSite int          `json:"runs_per_site"`
	MaxPages    int          `json:"max_pages"`
	Results     []siteResult `json:"results"`
}

var client = &http.Client{Timeout: 30 * time.Second}

func main() {
	flag.Parse()

	fmt.Println("=== sitecrawl benchmark ===")
	fmt.Printf("API URL:    %s\n", *apiURL)
	fmt.Printf("Runs/site:  %d\n", *runs)
	fmt.Printf("Max pages:  %d\n", *maxPages)
	fmt.Printf("Output:     %s\n", *output)
	fmt.Println()

	if err := call(http.MethodGet, "/api/v1/health", nil, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure sitecrawl is running (sitecrawl serve)\n")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		APIURL:      *apiURL,
		RunsPerSite: *runs,
		MaxPages:    *maxPages,
	}

	for _, s := range testSites {
		fmt.Printf("Benchmarking [%s] %s ...\n", s.Label, s.URL)
		sr := siteResult{URL: s.URL, Label: s.Label}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkSite(s.URL, i)
			if rr.ok() {
				fmt.Printf("OK  %dms  %d/%d pages  %.2f pages/s\n", rr.ElapsedMs, rr.Succeeded, rr.Fetched, rr.PagesPerSec)
			} else {
				fmt.Printf("%s: %s\n", strings.ToUpper(string(rr.State)), rr.Error)
			}
			sr.Runs = append(sr.Runs, rr)
		}

		sr.Averages = computeAverages(sr.Runs)
		report.Results = append(report.Results, sr)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

// call sends a request to the API and decodes a 2xx JSON body into out.
func call(method, path string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, *apiURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var env models.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&env) == nil && env.Error != nil {
			return fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func benchmarkSite(url string, run int) runResult {
	rr := runResult{Run: run, State: models.JobFailed}
	start := time.Now()

	var created models.CrawlResponse
	if err := call(http.MethodPost, "/api/v1/crawl", models.CrawlRequest{HomepageURL: url, MaxPages: *maxPages}, &created); err != nil {
		rr.Error = err.Error()
		return rr
	}

	p, err := waitJob(created.ID, start.Add(*deadline))
	rr.ElapsedMs = time.Since(start).Milliseconds()
	if err != nil {
		rr.Error = err.Error()
		_ = call(http.MethodPost, "/api/v1/crawl/"+created.ID+"/cancel", nil, nil)
		return rr
	}

	rr.State = p.State
	rr.Error = p.Error
	rr.Fetched = p.Fetched
	rr.Succeeded = p.Succeeded
	rr.Failed = p.Failed
	rr.Discovered = p.Discovered
	if secs := time.Duration(rr.ElapsedMs) * time.Millisecond; secs > 0 {
		rr.PagesPerSec = float64(p.Fetched) / secs.Seconds()
	}

	var results models.ResultsResponse
	if err := call(http.MethodGet, "/api/v1/crawl/"+created.ID+"/results", nil, &results); err == nil && results.SuccessfulPages > 0 {
		words := 0
		for _, r := range results.Results {
			words += r.WordCount
		}
		rr.AvgWords = float64(words) / float64(results.SuccessfulPages)
	}
	return rr
}

func waitJob(id string, until time.Time) (models.Progress, error) {
	for time.Now().Before(until) {
		var p models.ProgressResponse
		if err := call(http.MethodGet, "/api/v1/crawl/"+id, nil, &p); err != nil {
			return models.Progress{}, err
		}
		if p.Done() {
			return p.Progress, nil
		}
		time.Sleep(time.Second)
	}
	return models.Progress{}, errors.New("deadline exceeded")
}

func computeAverages(runs []runResult) *siteAverages {
	var n int
	var avg siteAverages

	for _, r := range runs {
		if !r.ok() {
			continue
		}
		n++
		avg.ElapsedMs += float64(r.ElapsedMs)
		avg.Fetched += float64(r.Fetched)
		if r.Fetched > 0 {
			avg.SuccessRate += float64(r.Succeeded) / float64(r.Fetched)
		}
		avg.PagesPerSec += r.PagesPerSec
		avg.AvgWords += r.AvgWords
	}
	if n == 0 {
		return nil
	}

	f := float64(n)
	avg.ElapsedMs /= f
	avg.Fetched /= f
	avg.SuccessRate /= f
	avg.PagesPerSec /= f
	avg.AvgWords /= f
	return &avg
}

func printTable(results []siteResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Site\tAvg Time\tPages\tSuccess\tPages/s\tAvg Words\n")
	fmt.Fprintf(w, "────\t────────\t─────\t───────\t───────\t─────────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t-\t-\n", truncateURL(r.URL, 40))
			continue
		}
		a := r.Averages
		fmt.Fprintf(w, "%s\t%dms\t%.1f\t%.0f%%\t%.2f\t%.0f\n",
			truncateURL(r.URL, 40),
			int64(a.ElapsedMs),
			a.Fetched,
			a.SuccessRate*100,
			a.PagesPerSec,
			a.AvgWords,
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func truncateURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
