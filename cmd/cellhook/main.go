package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Exit codes of a job invocation.
const (
	exitOK         = 0
	exitError      = 1
	exitValidation = 2
	exitRemote     = 3
	exitTimeout    = 4
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage(os.Stderr)
		return exitError
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "run":
		return runJob(args)
	case "serve":
		return runServe(args)
	case "record":
		return runRecordNoun(args)
	case "field":
		return runFieldNoun(args)
	case "table":
		return runTableNoun(args)
	case "config":
		return runConfigNoun(args)
	case "hook":
		return runHookNoun(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return exitError
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: cellhook version [--json]")
		return exitError
	}

	info := currentVersionInfo()
	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return exitError
		}
		fmt.Println(string(data))
		return exitOK
	}

	fmt.Printf("cellhook %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return exitOK
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(built); ok {
		info.BuildTime = normalized
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `cellhook - dispatch record cells to HTTP job services

Usage:
  cellhook <command> [flags]

Jobs:
  run <job> --record <id>     Run one job profile against one record
  serve                       Serve webhooks and the write-back API

Record store:
  record get --table T --record R
  record set --table T --record R field=value...
  field ensure --table T --name N [--type text|number]
  table create --id T [--name N]

Config:
  config check                Validate configuration and integrity
  config lock                 Write the .checksums manifest
  hook sign --path P --record R
                              Print a signed webhook body for testing

General:
  version [--json]            Show version information
  help                        Show this help message

Every command accepts --config (default: $CELLHOOK_CONFIG, ./config.yaml).

Exit codes of run: 0 dispatched, 2 missing input, 3 job service error,
4 job service timeout, 1 anything else.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}
