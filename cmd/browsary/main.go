// Package main provides the browsary command line tool. It runs a YAML
// script of browser actions, or hands a natural language task to an LLM
// that drives the browser through the same actions.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/entrhq/browsary/pkg/agent"
	"github.com/entrhq/browsary/pkg/agent/pilot"
	"github.com/entrhq/browsary/pkg/browser"
	"github.com/entrhq/browsary/pkg/config"
	"github.com/entrhq/browsary/pkg/llm/tokenizer"
	"github.com/entrhq/browsary/pkg/logging"
	"github.com/entrhq/browsary/pkg/security/urlpolicy"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile   string
	Script       string
	Task         string
	Instructions string
	Engine       string
	Browser      string
	BrowserBin   string
	ControlURL   string
	Headless     bool
	NoSandbox    bool
	SkipInstall  bool
	PoolSize     int
	Model        string
	APIKey       string
	BaseURL      string
	MaxSteps     int
	Timeout      time.Duration
	OutputFile   string
	Verbose      bool
	ShowVersion  bool

	// set records the flags given explicitly on the command line
	set map[string]bool
}

func main() {
	cli := parseFlags(flag.CommandLine, os.Args[1:])

	if cli.ShowVersion {
		fmt.Printf("browsary v%s\n", version)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if err := run(ctx, cli); err != nil {
		cancel()
		log.Printf("Execution failed: %v", err)
		os.Exit(1)
	}
	cancel()
}

// parseFlags parses command line flags
func parseFlags(fs *flag.FlagSet, args []string) *CLIConfig {
	cli := &CLIConfig{set: make(map[string]bool)}

	fs.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (JSON or YAML, default ~/.browsary/config.json)")
	fs.StringVar(&cli.Script, "script", "", "YAML script of actions to run")
	fs.StringVar(&cli.Task, "task", "", "Task for the LLM pilot")
	fs.StringVar(&cli.Instructions, "instructions", "", "Extra instructions for the LLM pilot")
	fs.StringVar(&cli.Engine, "engine", "", "Browser engine: playwright or rod")
	fs.StringVar(&cli.Browser, "browser", "chromium", "Playwright browser: chromium, firefox or webkit")
	fs.StringVar(&cli.BrowserBin, "browser-bin", "", "Chromium executable for the rod engine")
	fs.StringVar(&cli.ControlURL, "control-url", "", "DevTools URL of a running browser for the rod engine")
	fs.BoolVar(&cli.Headless, "headless", true, "Run browsers without a window")
	fs.BoolVar(&cli.NoSandbox, "no-sandbox", false, "Disable the Chromium sandbox (rod engine)")
	fs.BoolVar(&cli.SkipInstall, "skip-install", false, "Do not install the playwright driver and browsers")
	fs.IntVar(&cli.PoolSize, "pool-size", 0, "Number of pooled browsers")
	fs.StringVar(&cli.Model, "model", "", "LLM model to use")
	fs.StringVar(&cli.APIKey, "api-key", "", "OpenAI API key")
	fs.StringVar(&cli.BaseURL, "base-url", "", "OpenAI API base URL")
	fs.IntVar(&cli.MaxSteps, "max-steps", 0, "Maximum LLM turns for a task")
	fs.DurationVar(&cli.Timeout, "timeout", 5*time.Minute, "Execution timeout")
	fs.StringVar(&cli.OutputFile, "output", "", "Write the JSON result to this file instead of stdout")
	fs.BoolVar(&cli.Verbose, "verbose", false, "Log to stderr at debug level")
	fs.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "browsary - drive a browser from scripts or an LLM\n\n")
		fmt.Fprintf(out, "Usage: browsary [options]\n\n")
		fmt.Fprintf(out, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(out, "\nExamples:\n")
		fmt.Fprintf(out, "  # Run a script of actions\n")
		fmt.Fprintf(out, "  browsary -script steps.yaml\n\n")
		fmt.Fprintf(out, "  # Let the LLM work a task\n")
		fmt.Fprintf(out, "  browsary -task \"Find the title of the newest post on https://go.dev/blog\"\n\n")
		fmt.Fprintf(out, "  # Use rod with an existing Chrome\n")
		fmt.Fprintf(out, "  browsary -engine rod -control-url ws://127.0.0.1:9222/devtools/browser/... -script steps.yaml\n\n")
	}

	// ExitOnError flag sets never return a parse error
	_ = fs.Parse(args)
	fs.Visit(func(f *flag.Flag) { cli.set[f.Name] = true })
	return cli
}

// browserOverrides returns the browser section keys given on the command line.
func (c *CLIConfig) browserOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})
	if c.set["engine"] {
		overrides["engine"] = c.Engine
	}
	if c.set["headless"] {
		overrides["headless"] = strconv.FormatBool(c.Headless)
	}
	if c.set["pool-size"] {
		overrides["pool_size"] = c.PoolSize
	}
	return overrides
}

func (c *CLIConfig) validate() error {
	switch {
	case c.Script == "" && c.Task == "":
		return errors.New("one of -script or -task is required")
	case c.Script != "" && c.Task != "":
		return errors.New("-script and -task are mutually exclusive")
	}
	return nil
}

func newLogger(verbose bool) *logging.Logger {
	if verbose {
		l := logging.NewWriterLogger("browsary", os.Stderr)
		l.SetLevel(logging.LevelDebug)
		return l
	}
	// File logging falls back to stderr on error
	l, _ := logging.NewLogger("browsary")
	return l
}

// run executes a script or a pilot task
func run(ctx context.Context, cli *CLIConfig) error {
	if err := cli.validate(); err != nil {
		return err
	}

	logger := newLogger(cli.Verbose)
	defer logger.Close()

	if err := config.Initialize(cli.ConfigFile); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	section := config.GetBrowser()
	if err := section.SetData(cli.browserOverrides()); err != nil {
		return fmt.Errorf("invalid browser flags: %w", err)
	}
	if err := section.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	policy, err := urlpolicy.New(section.NavigationPolicy())
	if err != nil {
		return err
	}

	if cli.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cli.Timeout)
		defer cancel()
	}

	eng, err := startEngine(cli, section, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := eng.Close(); cerr != nil {
			logger.Warnf("engine shutdown failed: %v", cerr)
		}
	}()

	viewport := section.Viewport()
	a := agent.New(
		agent.Config{
			Source:   browser.FromProvider(eng.pool),
			Viewport: &viewport,
		},
		agent.WithLogger(logger.WithComponent("agent")),
		agent.WithNavigationPolicy(policy),
	)

	log.Printf("Starting browsary (engine %s, pool %d)", section.GetEngine(), section.GetPoolSize())

	var output interface{}
	var runErr error
	if cli.Script != "" {
		output, runErr = executeScript(ctx, a, cli.Script)
	} else {
		output, runErr = executeTask(ctx, a, cli, logger)
	}

	if output != nil {
		if err := writeOutput(cli.OutputFile, output); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

func executeScript(ctx context.Context, a *agent.Agent, path string) (interface{}, error) {
	script, err := loadScript(path)
	if err != nil {
		return nil, err
	}

	log.Printf("Running %d steps from %s", len(script.Steps), path)
	results, err := runScript(ctx, a, script)
	if results == nil {
		return nil, err
	}
	return map[string]interface{}{"steps": results}, err
}

// taskResult is the JSON output of a pilot task
type taskResult struct {
	Task   string `json:"task"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func executeTask(ctx context.Context, a *agent.Agent, cli *CLIConfig, logger *logging.Logger) (interface{}, error) {
	llmSection := config.GetLLM()

	provider, err := config.BuildProvider(llmSection, cli.Model, cli.BaseURL, cli.APIKey)
	if err != nil {
		return nil, err
	}

	maxSteps := llmSection.GetMaxSteps()
	if cli.MaxSteps > 0 {
		maxSteps = cli.MaxSteps
	}

	tok, err := tokenizer.New()
	if err != nil {
		logger.Warnf("falling back to approximate token counts: %v", err)
		tok = tokenizer.Approximate()
	}

	evaluation := agent.CreateContext(a, pilot.New, pilot.Config{
		LLM:             provider,
		MaxSteps:        maxSteps,
		Instructions:    cli.Instructions,
		MaxResultTokens: llmSection.GetMaxResultTokens(),
		Tokenizer:       tok,
		Logger:          logger.WithComponent("pilot"),
	})

	log.Printf("Task: %s", cli.Task)
	log.Printf("Model: %s", provider.GetModel())

	result, err := evaluation.Run(ctx, cli.Task)
	out := taskResult{Task: cli.Task, Result: result}
	if err != nil {
		out.Error = err.Error()
	}
	return out, err
}

func writeOutput(path string, v interface{}) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
