// Package main probes the pallet server's /healthz endpoint for container
// health checks. It exits 0 on a 2xx response and 1 otherwise.
//
// Usage: healthcheck [url]
//
// Without an argument the URL is derived from PALLET_SERVER_LISTEN.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	url := defaultURL(os.Getenv("PALLET_SERVER_LISTEN"))
	if len(os.Args) > 1 {
		url = os.Args[1]
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		os.Exit(0)
	}
	fmt.Fprintf(os.Stderr, "healthcheck failed: %s returned %d\n", url, resp.StatusCode)
	os.Exit(1)
}

// defaultURL turns a listen address such as ":8080" or "0.0.0.0:9000" into
// a loopback health URL.
func defaultURL(listen string) string {
	if listen == "" {
		listen = ":8080"
	}
	host, port, ok := strings.Cut(listen, ":")
	if !ok {
		port = listen
	}
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%s/healthz", host, port)
}
