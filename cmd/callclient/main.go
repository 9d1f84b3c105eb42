// callclient drives the orchestrator's local control API: start a call,
// poll its status, stop it.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "orchestrator control API address")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: callclient [-addr URL] start|status|stop|watch")
		os.Exit(2)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	base := *addr + "/v1/session"

	switch flag.Arg(0) {
	case "start":
		body := do(client, http.MethodPost, base)
		log.Printf("session started: %s", body)
	case "status":
		body := do(client, http.MethodGet, base)
		log.Printf("session: %s", body)
	case "stop":
		body := do(client, http.MethodDelete, base)
		log.Printf("session stopped: %s", body)
	case "watch":
		watch(client, base)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		os.Exit(2)
	}
}

func do(client *http.Client, method, url string) string {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("read response: %v", err)
	}
	if resp.StatusCode >= 400 {
		log.Fatalf("server returned %d: %s", resp.StatusCode, body)
	}
	return string(body)
}

// watch polls session status once a second until the session reaches a
// terminal state.
func watch(client *http.Client, url string) {
	var last string
	for {
		body := do(client, http.MethodGet, url)

		var snap struct {
			SessionID string `json:"sessionId"`
			State     string `json:"state"`
			Language  string `json:"language"`
		}
		if err := json.Unmarshal([]byte(body), &snap); err != nil {
			log.Fatalf("decode status: %v", err)
		}

		if snap.State != last {
			log.Printf("state=%s language=%s session=%s", snap.State, snap.Language, snap.SessionID)
			last = snap.State
		}
		if snap.State == "ENDED" || snap.State == "FAILED" {
			return
		}
		time.Sleep(time.Second)
	}
}
