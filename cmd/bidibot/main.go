package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
)

// Version information - set via ldflags during build
var (
	version   = "0.1.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

type cliOptions struct {
	configPath  string
	host        string
	port        int
	browser     string
	headless    bool
	insecure    bool
	back        bool
	metricsAddr string
	trace       bool
	logLevel    string
	showVersion bool
	urls        []string

	// set records which flags were given explicitly.
	set map[string]bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "bidibot: %v\n", err)
		return exitUsage
	}
	if opts.showVersion {
		printVersion(stdout)
		return exitOK
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "bidibot: %v\n", err)
		return exitCodeForError(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, cfg, opts, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "bidibot: %v\n", err)
		return exitCodeForError(err)
	}
	return exitOK
}

func parseFlags(args []string, stderr io.Writer) (*cliOptions, error) {
	opts := &cliOptions{set: make(map[string]bool)}

	fs := flag.NewFlagSet("bidibot", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to a config file (replaces ./.bidibot/config.yaml)")
	fs.StringVar(&opts.host, "host", "", "WebDriver host")
	fs.IntVar(&opts.port, "port", 0, "WebDriver port")
	fs.StringVar(&opts.browser, "browser", "", "Browser name (firefox, chrome, ...)")
	fs.BoolVar(&opts.headless, "headless", false, "Run the browser headless")
	fs.BoolVar(&opts.insecure, "insecure", false, "Accept insecure TLS certificates")
	fs.BoolVar(&opts.back, "back", false, "Go back once after the last URL")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address")
	fs.BoolVar(&opts.trace, "trace", false, "Export spans to stderr")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: bidibot [flags] URL...")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Opens a WebDriver BiDi session, navigates to each URL in order and closes the session.")
		fmt.Fprintln(stderr)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})
	opts.urls = fs.Args()

	if opts.showVersion {
		return opts, nil
	}
	if len(opts.urls) == 0 {
		fs.Usage()
		return nil, errors.New("at least one URL is required")
	}
	return opts, nil
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "bidibot %s\n", version)
	if commit != "unknown" {
		fmt.Fprintf(w, "  Commit:     %s\n", commit)
	}
	if buildDate != "unknown" {
		fmt.Fprintf(w, "  Built:      %s\n", buildDate)
	}
	fmt.Fprintf(w, "  Go version: %s\n", runtime.Version())
}
