package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"qbrreport/internal/qbrreport"
)

func main() {
	log.SetFlags(log.LstdFlags | log.LUTC)
	opts, timeout, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return
		}
		log.Fatal(err)
	}
	opts.Logger = log.Default()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := qbrreport.Generate(ctx, opts)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Wrote JSON payload: %s\n", result.JSONPath)
	fmt.Printf("Wrote report: %s\n", result.ReportPath)
}

func parseFlags(args []string, out io.Writer) (qbrreport.Options, time.Duration, error) {
	fs := flag.NewFlagSet("qbr_report", flag.ContinueOnError)
	fs.SetOutput(out)
	dataFlag := fs.String("data", "", "Path to the dataset JSON (defaults to dataset.path from config)")
	propertyFlag := fs.String("property", "", "Property id (defaults to every property)")
	quarterFlag := fs.String("quarter", "", "Quarter key such as 2025-Q3 (defaults to the dataset's current_quarter)")
	jsonOutFlag := fs.String("json-out", "", "Output JSON payload path (defaults to data/reports/qbr-<quarter>.json)")
	reportOutFlag := fs.String("report-out", "", "Output report path (defaults to data/reports/qbr-<quarter>.md)")
	configFlag := fs.String("config", filepath.Join("data", "config"), "Config file or directory")
	baseURLFlag := fs.String("base-url", "", "Base URL for relative proxy endpoints, e.g. http://127.0.0.1:8001")
	noLLMFlag := fs.Bool("no-llm", false, "Disable LLM narrative generation")
	timeoutFlag := fs.Duration("timeout", 60*time.Second, "Overall time limit")
	if err := fs.Parse(args); err != nil {
		return qbrreport.Options{}, 0, err
	}
	if fs.NArg() > 0 {
		return qbrreport.Options{}, 0, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if *timeoutFlag <= 0 {
		return qbrreport.Options{}, 0, fmt.Errorf("timeout must be positive, got %s", *timeoutFlag)
	}
	return qbrreport.Options{
		DataPath:   *dataFlag,
		PropertyID: *propertyFlag,
		Quarter:    *quarterFlag,
		JSONOut:    *jsonOutFlag,
		ReportOut:  *reportOutFlag,
		ConfigPath: *configFlag,
		BaseURL:    *baseURLFlag,
		NoLLM:      *noLLMFlag,
	}, *timeoutFlag, nil
}
