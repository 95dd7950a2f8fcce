package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mattjoyce/cellhook/internal/recordstore"
)

func runRecordNoun(args []string) int {
	if len(args) < 1 {
		printRecordNounHelp(os.Stderr)
		return exitError
	}
	if isHelpToken(args[0]) {
		printRecordNounHelp(os.Stdout)
		return exitOK
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "get":
		return runRecordGet(actionArgs)
	case "set":
		return runRecordSet(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown record action: %s\n\n", action)
		printRecordNounHelp(os.Stderr)
		return exitError
	}
}

func printRecordNounHelp(w *os.File) {
	fmt.Fprint(w, `Usage: cellhook record <action> [flags]

Actions:
  get --table T --record R              Print a record as JSON
  set --table T --record R field=value  Write cells, creating the record if needed

Values written to number fields must parse as numbers. An empty value clears the cell.
`)
}

func runRecordGet(args []string) int {
	fs := flag.NewFlagSet("record get", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	table := fs.String("table", "", "Table id")
	recordID := fs.String("record", "", "Record id")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if *table == "" || *recordID == "" {
		fmt.Fprintln(os.Stderr, "Usage: cellhook record get --table T --record R")
		return exitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}
	defer closeStore()

	rec, err := store.SelectRecord(ctx, *table, *recordID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read record: %v\n", err)
		return exitError
	}
	printRecord(rec)
	return exitOK
}

func runRecordSet(args []string) int {
	fs := flag.NewFlagSet("record set", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	table := fs.String("table", "", "Table id")
	recordID := fs.String("record", "", "Record id (generated when empty)")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if *table == "" || fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: cellhook record set --table T [--record R] field=value...")
		return exitError
	}
	raw, err := parseAssignments(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}
	defer closeStore()

	fields, err := store.Fields(ctx, *table)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read fields: %v\n", err)
		return exitError
	}
	cells, err := typedCells(raw, fields)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}

	var rec *recordstore.Record
	if *recordID == "" {
		rec, err = store.InsertRecord(ctx, *table, "", cells)
	} else {
		rec, err = store.UpdateRecord(ctx, *table, *recordID, cells)
		if errors.Is(err, recordstore.ErrRecordNotFound) {
			rec, err = store.InsertRecord(ctx, *table, *recordID, cells)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write record: %v\n", err)
		return exitError
	}
	printRecord(rec)
	return exitOK
}

// parseAssignments splits field=value arguments.
func parseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid assignment %q (want field=value)", arg)
		}
		out[strings.TrimSpace(name)] = value
	}
	return out, nil
}

// typedCells parses raw values against the table's field types.
func typedCells(raw map[string]string, fields []recordstore.Field) (map[string]recordstore.Value, error) {
	types := make(map[string]recordstore.FieldType, len(fields))
	for _, f := range fields {
		types[f.Name] = f.Type
	}
	cells := make(map[string]recordstore.Value, len(raw))
	for name, value := range raw {
		typ, ok := types[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", recordstore.ErrUnknownField, name)
		}
		v, err := recordstore.ParseValue(value, typ)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		cells[name] = v
	}
	return cells, nil
}

// printRecord writes rec as indented JSON.
func printRecord(rec *recordstore.Record) {
	out := struct {
		ID      string                       `json:"id"`
		TableID string                       `json:"table_id"`
		Fields  map[string]recordstore.Value `json:"fields"`
	}{ID: rec.ID, TableID: rec.TableID, Fields: rec.Fields()}
	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
}

func runFieldNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Println("Usage: cellhook field ensure --table T --name N [--type text|number]")
		if len(args) < 1 {
			return exitError
		}
		return exitOK
	}
	if args[0] != "ensure" {
		fmt.Fprintf(os.Stderr, "Unknown field action: %s\n", args[0])
		return exitError
	}

	fs := flag.NewFlagSet("field ensure", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	table := fs.String("table", "", "Table id")
	name := fs.String("name", "", "Field name")
	typ := fs.String("type", string(recordstore.FieldText), "Field type (text, number)")
	if err := fs.Parse(args[1:]); err != nil {
		return exitError
	}
	fieldType := recordstore.FieldType(*typ)
	if *table == "" || *name == "" || !fieldType.Valid() {
		fmt.Fprintln(os.Stderr, "Usage: cellhook field ensure --table T --name N [--type text|number]")
		return exitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}
	defer closeStore()

	created, err := store.CreateField(ctx, *table, *name, fieldType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create field: %v\n", err)
		return exitError
	}
	if created {
		fmt.Printf("created %s.%s (%s)\n", *table, *name, fieldType)
	} else {
		fmt.Printf("%s.%s already exists\n", *table, *name)
	}
	return exitOK
}

func runTableNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Println("Usage: cellhook table create --id T [--name N]")
		if len(args) < 1 {
			return exitError
		}
		return exitOK
	}
	if args[0] != "create" {
		fmt.Fprintf(os.Stderr, "Unknown table action: %s\n", args[0])
		return exitError
	}

	fs := flag.NewFlagSet("table create", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	id := fs.String("id", "", "Table id")
	name := fs.String("name", "", "Display name (defaults to the id)")
	if err := fs.Parse(args[1:]); err != nil {
		return exitError
	}
	if *id == "" {
		fmt.Fprintln(os.Stderr, "Usage: cellhook table create --id T [--name N]")
		return exitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}
	defer closeStore()

	created, err := store.CreateTable(ctx, *id, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create table: %v\n", err)
		return exitError
	}
	if created {
		fmt.Printf("created table %s\n", *id)
	} else {
		fmt.Printf("table %s already exists\n", *id)
	}
	return exitOK
}
