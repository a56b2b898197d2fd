// Package main is a command-line execution context for the feature host.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/atinyakov/gnoixus/internal/client"
)

var (
	version   string
	buildDate string
)

// main parses command-line flags and dispatches to the register or shell commands.
func main() {
	var (
		cmd      string
		baseURL  string
		dir      string
		caFile   string
		id       string
		endpoint string
		showVer  bool
	)

	flag.StringVar(&cmd, "cmd", "shell", "command: register | shell")
	flag.StringVar(&baseURL, "url", "https://localhost:8080", "feature host base URL")
	flag.StringVar(&dir, "dir", ".", "directory holding the context identity")
	flag.StringVar(&caFile, "ca", "certs/ca.crt", "path to CA cert")
	flag.StringVar(&id, "id", "", "requested context id for registration")
	flag.StringVar(&endpoint, "endpoint", "", "callback URL for notifications")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("Gnoixus Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	ctx := context.Background()
	switch cmd {
	case "register":
		pool, err := client.NewCAPool(caFile)
		if err != nil {
			log.Fatal(err)
		}
		hc := &http.Client{
			Timeout:   10 * time.Second,
			Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}},
		}
		assigned, err := client.Register(ctx, hc, baseURL, client.Registration{ID: id, Kind: "content", Endpoint: endpoint}, dir)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Registered as %s. Certificate and key saved.\n", assigned)
	case "shell":
		hc, err := client.LoadClientCertificate(filepath.Join(dir, client.CertFile), filepath.Join(dir, client.KeyFile), caFile)
		if err != nil {
			log.Fatal(err)
		}
		shell := &client.Shell{
			Sender: &client.Messenger{Client: hc, BaseURL: baseURL},
			Prompt: "gnoixus> ",
		}
		if err := shell.Run(ctx, os.Stdin, os.Stdout); err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("unknown command: %s", cmd)
	}
}
