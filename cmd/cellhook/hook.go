package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mattjoyce/cellhook/internal/webhook"
)

func runHookNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Println("Usage: cellhook hook sign --path P --record R [--config PATH]")
		if len(args) < 1 {
			return exitError
		}
		return exitOK
	}
	if args[0] != "sign" {
		fmt.Fprintf(os.Stderr, "Unknown hook action: %s\n", args[0])
		return exitError
	}
	return runHookSign(args[1:])
}

// runHookSign prints a webhook body for a record and the signature header the
// configured endpoint expects, ready for curl.
func runHookSign(args []string) int {
	fs := flag.NewFlagSet("hook sign", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	path := fs.String("path", "", "Webhook endpoint path")
	recordID := fs.String("record", "", "Record id")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if *path == "" || *recordID == "" {
		fmt.Fprintln(os.Stderr, "Usage: cellhook hook sign --path P --record R")
		return exitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	if cfg.Webhooks == nil {
		fmt.Fprintln(os.Stderr, "No webhooks configured")
		return exitError
	}
	whCfg, err := webhook.FromGlobalConfig(cfg.Webhooks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid webhook config: %v\n", err)
		return exitError
	}

	for _, ep := range whCfg.Endpoints {
		if ep.Path != *path {
			continue
		}
		body, _ := json.Marshal(webhook.TriggerRequest{RecordID: *recordID})
		fmt.Printf("%s: %s\n%s\n", ep.SignatureHeader, webhook.SignatureHeaderValue(body, ep.Secret), body)
		return exitOK
	}
	fmt.Fprintf(os.Stderr, "No webhook endpoint with path %s\n", *path)
	return exitError
}
