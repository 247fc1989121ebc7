package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type result struct {
	File     string
	Type     string
	Status   int
	Duration time.Duration
	Error    error
}

func main() {
	var (
		base    string
		dir     string
		secret  string
		timeout time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&dir, "events", filepath.Join("scripts", "webhook_replay", "events"), "Directory of event JSON files")
	flag.StringVar(&secret, "secret", os.Getenv("STRIPE_WEBHOOK_SECRET"), "Webhook signing secret")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	if secret == "" {
		log.Fatal("signing secret required (-secret or STRIPE_WEBHOOK_SECRET)")
	}

	files, err := eventFiles(dir)
	if err != nil {
		log.Fatalf("failed to list events: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	url := strings.TrimRight(base, "/") + "/api/v1/payments/webhook"

	var results []result
	failures := 0
	for _, f := range files {
		res := replay(client, url, secret, f)
		if res.Error != nil || res.Status != http.StatusOK {
			failures++
		}
		results = append(results, res)
	}

	printReport(results)
	fmt.Printf("Replayed: %d, Failures: %d\n", len(results), failures)
	if failures > 0 {
		os.Exit(1)
	}
}

func eventFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no event files in %s", dir)
	}
	sort.Strings(files)
	return files, nil
}

func replay(client *http.Client, url, secret, path string) result {
	res := result{File: filepath.Base(path)}

	payload, err := os.ReadFile(path)
	if err != nil {
		res.Error = fmt.Errorf("read event: %w", err)
		return res
	}
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		res.Error = fmt.Errorf("parse event: %w", err)
		return res
	}
	res.Type = envelope.Type

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		res.Error = err
		return res
	}
	ts := time.Now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, sign(secret, ts, payload)))

	start := time.Now()
	resp, err := client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err
		return res
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	res.Status = resp.StatusCode
	return res
}

// sign reproduces the processor's signature scheme: HMAC-SHA256 over
// "<timestamp>.<payload>" with the endpoint secret.
func sign(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func printReport(results []result) {
	fmt.Println("Webhook Replay Report")
	fmt.Println("=====================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if res.Status != http.StatusOK {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s (%s)\n", status, res.File, res.Type)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		} else {
			fmt.Printf("  Status: %d (%s)\n", res.Status, res.Duration)
		}
	}
}
