// ---------------------------------------------------------------------------
// scripts/demo_walkthrough/main.go: scripted tour of a running orbit server
//
// Usage:
//   go run ./scripts/demo_walkthrough --server http://localhost:8080
//
// Flags:
//   --server  Base URL of the orbit server     (default: http://localhost:8080)
//   --query   Search to run if search is on    (default: "knowledge graphs")
//   --pause   Pause between phases             (default: 1s)
// ---------------------------------------------------------------------------
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// ANSI colour helpers
// ---------------------------------------------------------------------------

const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
	white  = "\033[37m"
)

const phases = 5

func colour(c, s string) string { return c + s + reset }
func header(phase int, msg string) {
	bar := strings.Repeat("━", 60)
	fmt.Println()
	fmt.Println(colour(dim, bar))
	fmt.Printf("  %s  %s\n", colour(bold+cyan, fmt.Sprintf("Phase %d/%d", phase, phases)), colour(bold+white, msg))
	fmt.Println(colour(dim, bar))
}

// ---------------------------------------------------------------------------
// API types (mirror the server's JSON shapes)
// ---------------------------------------------------------------------------

type node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type graphBody struct {
	Nodes []node `json:"nodes"`
	Links []link `json:"links"`
}

type view struct {
	Graph         graphBody `json:"graph"`
	Mode          string    `json:"mode"`
	PendingSource *string   `json:"pending_source"`
	CenterID      *string   `json:"center_id"`
	Depth         int       `json:"depth"`
}

type health struct {
	Status string `json:"status"`
	Search bool   `json:"search"`
	AI     bool   `json:"ai"`
}

// ---------------------------------------------------------------------------
// HTTP helpers
// ---------------------------------------------------------------------------

// call sends body (if any) as JSON and decodes the {"data": ...} envelope
// into target.
func call(method, url string, body, target interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s returned %d %s: %s", method, url, resp.StatusCode, e.Code, e.Error)
	}
	if target == nil {
		return nil
	}
	env := struct {
		Data interface{} `json:"data"`
	}{Data: target}
	return json.NewDecoder(resp.Body).Decode(&env)
}

func getHealth(serverURL string) (health, error) {
	var h health
	resp, err := http.Get(serverURL + "/health")
	if err != nil {
		return h, fmt.Errorf("GET /health: %w", err)
	}
	defer resp.Body.Close()
	return h, json.NewDecoder(resp.Body).Decode(&h)
}

func describe(v view) string {
	center := "none"
	if v.CenterID != nil {
		center = *v.CenterID
	}
	return fmt.Sprintf("%d nodes, %d links, depth %d, center %s, mode %s",
		len(v.Graph.Nodes), len(v.Graph.Links), v.Depth, center, v.Mode)
}

func fail(err error) {
	fmt.Println(colour(red, "  ✗ "+err.Error()))
	os.Exit(1)
}

// ---------------------------------------------------------------------------
// Walkthrough
// ---------------------------------------------------------------------------

func seedGraph() graphBody {
	return graphBody{
		Nodes: []node{
			{ID: "graphs", Label: "Knowledge graphs"},
			{ID: "ontology", Label: "Ontologies"},
			{ID: "embeddings", Label: "Graph embeddings"},
			{ID: "search", Label: "Semantic search"},
		},
		Links: []link{
			{Source: "graphs", Target: "ontology"},
			{Source: "graphs", Target: "embeddings"},
			{Source: "embeddings", Target: "search"},
		},
	}
}

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "orbit server base URL")
	query := flag.String("query", "knowledge graphs", "search query for phase 5")
	pause := flag.Duration("pause", time.Second, "pause between phases")
	flag.Parse()
	base := strings.TrimRight(*serverURL, "/")

	// ---- Phase 1: health --------------------------------------------------
	header(1, "Checking server health")
	h, err := getHealth(base)
	if err != nil {
		fail(err)
	}
	fmt.Printf("  status %s, search %v, ai %v\n", colour(green, h.Status), h.Search, h.AI)
	time.Sleep(*pause)

	// ---- Phase 2: seed ----------------------------------------------------
	header(2, "Loading a seed graph")
	var v view
	if err := call(http.MethodPut, base+"/api/graph", seedGraph(), &v); err != nil {
		fail(err)
	}
	fmt.Println("  " + describe(v))
	time.Sleep(*pause)

	// ---- Phase 3: drill and back -----------------------------------------
	header(3, "Drilling into "+colour(yellow, "Graph embeddings")+" and back out")
	if err := call(http.MethodPost, base+"/api/graph/drill/embeddings", nil, &v); err != nil {
		fail(err)
	}
	fmt.Println("  drilled: " + describe(v))
	time.Sleep(*pause)

	var back struct {
		Moved bool `json:"moved"`
		View  view `json:"view"`
	}
	if err := call(http.MethodPost, base+"/api/graph/back", nil, &back); err != nil {
		fail(err)
	}
	fmt.Printf("  back (moved=%v): %s\n", back.Moved, describe(back.View))
	time.Sleep(*pause)

	// ---- Phase 4: connect mode -------------------------------------------
	header(4, "Connecting two topics in connect mode")
	if err := call(http.MethodPut, base+"/api/graph/mode", map[string]string{"mode": "connect"}, nil); err != nil {
		fail(err)
	}
	for _, id := range []string{"ontology", "search"} {
		var res struct {
			Outcome string `json:"outcome"`
		}
		if err := call(http.MethodPost, base+"/api/graph/events/node-click", map[string]string{"id": id}, &res); err != nil {
			fail(err)
		}
		fmt.Printf("  click %-10s → %s\n", id, colour(green, res.Outcome))
	}
	if err := call(http.MethodPut, base+"/api/graph/mode", map[string]string{"mode": "default"}, nil); err != nil {
		fail(err)
	}

	var hood graphBody
	if err := call(http.MethodGet, base+"/api/graph/nodes/ontology/neighborhood?depth=1", nil, &hood); err != nil {
		fail(err)
	}
	for _, n := range hood.Nodes {
		fmt.Printf("  ontology neighbour: %s\n", n.Label)
	}
	time.Sleep(*pause)

	// ---- Phase 5: search --------------------------------------------------
	header(5, "Searching for "+colour(yellow, *query))
	if !h.Search {
		fmt.Println(colour(dim, "  search is not configured (set EXA_API_KEY), skipping"))
		return
	}
	var sr struct {
		Applied bool `json:"applied"`
		Results int  `json:"results"`
		View    view `json:"view"`
	}
	if err := call(http.MethodPost, base+"/api/graph/search", map[string]interface{}{"query": *query, "merge": true}, &sr); err != nil {
		fail(err)
	}
	fmt.Printf("  %d results merged (applied=%v): %s\n", sr.Results, sr.Applied, describe(sr.View))
	fmt.Println()
	fmt.Println(colour(bold+green, "  Walkthrough complete."))
}
