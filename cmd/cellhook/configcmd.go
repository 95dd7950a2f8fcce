package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattjoyce/cellhook/internal/config"
)

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return exitError
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return exitOK
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "lock":
		return runConfigLock(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n\n", action)
		printConfigNounHelp(os.Stderr)
		return exitError
	}
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprint(w, `Usage: cellhook config <action> [flags]

Actions:
  check [--json]   Load and validate the configuration
  lock             Hash the configuration into .checksums

Once a .checksums manifest exists, every command refuses a config whose
BLAKE3 hash no longer matches. Run 'config lock' after intentional edits.
`)
}

type checkResult struct {
	Valid  bool     `json:"valid"`
	Path   string   `json:"path,omitempty"`
	Jobs   []string `json:"jobs,omitempty"`
	API    bool     `json:"api"`
	Hooks  int      `json:"webhooks"`
	Error  string   `json:"error,omitempty"`
	Locked bool     `json:"locked"`
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	var result checkResult
	cfg, err := loadConfig(*configPath)
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Valid = true
		result.Path = cfg.SourcePath
		result.Jobs = cfg.JobNames()
		result.API = cfg.API.Enabled
		if cfg.Webhooks != nil {
			result.Hooks = len(cfg.Webhooks.Endpoints)
		}
		_, lerr := config.LoadChecksums(filepath.Dir(cfg.SourcePath))
		result.Locked = lerr == nil
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else if result.Valid {
		fmt.Printf("OK %s\n", result.Path)
		fmt.Printf("  jobs:     %d %v\n", len(result.Jobs), result.Jobs)
		fmt.Printf("  api:      %t\n", result.API)
		fmt.Printf("  webhooks: %d\n", result.Hooks)
		fmt.Printf("  locked:   %t\n", result.Locked)
	} else {
		fmt.Fprintf(os.Stderr, "INVALID: %s\n", result.Error)
	}

	if !result.Valid {
		return exitError
	}
	return exitOK
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("config lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	path, err := config.Discover(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return exitError
	}
	report, err := config.Lock(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return exitError
	}
	fmt.Printf("Locked %s\n  blake3 %s\n  wrote  %s\n", report.Filename, report.Hash, report.ChecksumPath)
	return exitOK
}
