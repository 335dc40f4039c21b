package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deliveroo.ai/internal/auth"
	"deliveroo.ai/internal/sim/tuning"
)

type httpFlags struct {
	baseURL *string
	secret  *string
}

func addHTTPFlags(fs *flag.FlagSet) httpFlags {
	return httpFlags{
		baseURL: fs.String("url", "http://127.0.0.1:8080", "server base url"),
		secret:  fs.String("secret", "", "admin secret (default: $DELIVEROO_ADMIN_SECRET)"),
	}
}

func (h httpFlags) url(path string) string {
	return strings.TrimRight(strings.TrimSpace(*h.baseURL), "/") + path
}

// do sends the request, signing an admin token when admin is set, prints the
// body and exits non-zero on a non-2xx status.
func (h httpFlags) do(method, path string, body io.Reader, admin bool) {
	req, err := http.NewRequest(method, h.url(path), body)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	if admin {
		key := strings.TrimSpace(*h.secret)
		if key == "" {
			key = strings.TrimSpace(os.Getenv("DELIVEROO_ADMIN_SECRET"))
		}
		if key == "" {
			fmt.Fprintln(os.Stderr, "missing -secret")
			os.Exit(2)
		}
		tok, err := auth.SignAdmin(key)
		if err != nil {
			fmt.Fprintln(os.Stderr, "sign:", err)
			os.Exit(1)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Print(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func matchesCmd(args []string) {
	fs := flag.NewFlagSet("matches", flag.ExitOnError)
	h := addHTTPFlags(fs)
	_ = fs.Parse(args)
	h.do(http.MethodGet, "/api/matches", nil, false)
}

func createCmd(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	h := addHTTPFlags(fs)
	configPath := fs.String("config", "", "match config file, .json or .yaml (optional; defaults apply)")
	_ = fs.Parse(args)

	body, err := readMatchConfig(strings.TrimSpace(*configPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read config:", err)
		os.Exit(1)
	}
	h.do(http.MethodPost, "/api/matches", strings.NewReader(body), true)
}

// readMatchConfig returns the request body for a create call. YAML files are
// resolved locally against the defaults and sent as JSON.
func readMatchConfig(path string) (string, error) {
	if path == "" {
		return "{}", nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err := tuning.Load(path)
		if err != nil {
			return "", err
		}
		raw, err := json.Marshal(cfg)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func toggleCmd(args []string) {
	fs := flag.NewFlagSet("toggle", flag.ExitOnError)
	h := addHTTPFlags(fs)
	matchID := fs.String("match", "", "match id (required)")
	_ = fs.Parse(args)
	if strings.TrimSpace(*matchID) == "" {
		fmt.Fprintln(os.Stderr, "missing -match")
		os.Exit(2)
	}
	h.do(http.MethodPost, "/api/matches/"+*matchID, nil, true)
}

func deleteCmd(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	h := addHTTPFlags(fs)
	matchID := fs.String("match", "", "match id (required)")
	_ = fs.Parse(args)
	if strings.TrimSpace(*matchID) == "" {
		fmt.Fprintln(os.Stderr, "missing -match")
		os.Exit(2)
	}
	h.do(http.MethodDelete, "/api/matches/"+*matchID, nil, true)
}
