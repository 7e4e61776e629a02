// ABOUTME: Entry point for the agentdesk server
// ABOUTME: Subcommands to serve, write a starter config, and probe a running server

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/agentdesk/internal/config"
	"github.com/2389/agentdesk/internal/gateway"
)

// Version is set at build time.
var version = "dev"

const banner = `
                         _       _           _
   __ _  __ _  ___ _ __ | |_ __| | ___  ___| | __
  / _' |/ _' |/ _ \ '_ \| __/ _' |/ _ \/ __| |/ /
 | (_| | (_| |  __/ | | | || (_| |  __/\__ \   <
  \__,_|\__, |\___|_| |_|\__\__,_|\___||___/_|\_\
        |___/
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: agentdesk <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the server")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  health   Check server health")
		fmt.Println("  agents   List configured agents of a running server")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin, os.Stdout)
	case "health":
		err = runHealth(ctx, os.Stdout)
	case "agents":
		err = runAgents(ctx, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.Path()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("LLM:       %s", cfg.LLM.Provider)
	if cfg.LLM.Provider == "openai" {
		gray.Printf(" (%s)", cfg.LLM.Model)
	}
	fmt.Println()
	if cfg.Auth.JWTSecret == "" {
		yellow.Println("    ! auth disabled")
	}
	fmt.Println()

	logger.Info("starting agentdesk",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

// serverURL is the base URL of the configured server. A wildcard listen
// address is reached through loopback.
func serverURL(cfg *config.Config) string {
	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, "0.0.0.0:") {
		addr = "127.0.0.1:" + strings.TrimPrefix(addr, "0.0.0.0:")
	} else if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

// get fetches path from the configured server and returns the status and body.
func get(ctx context.Context, cfg *config.Config, path string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL(cfg)+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	if token := os.Getenv("AGENTDESK_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func runHealth(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return checkHealth(ctx, cfg, out)
}

func checkHealth(ctx context.Context, cfg *config.Config, out io.Writer) error {
	status, body, err := get(ctx, cfg, "/health/ready")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", status, strings.TrimSpace(string(body)))
	}
	fmt.Fprintf(out, "healthy: %s\n", body)
	return nil
}

func runAgents(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return listAgents(ctx, cfg, out)
}

func listAgents(ctx context.Context, cfg *config.Config, out io.Writer) error {
	status, body, err := get(ctx, cfg, "/api/all_agents?limit=1000")
	if err != nil {
		return fmt.Errorf("listing agents failed: %w", err)
	}
	if status != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return fmt.Errorf("listing agents: status %d: %s", status, apiErr.Error)
	}

	var agents []gateway.AgentResponse
	if err := json.Unmarshal(body, &agents); err != nil {
		return fmt.Errorf("decoding agents: %w", err)
	}
	if len(agents) == 0 {
		fmt.Fprintln(out, "no agents configured")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tTEMPERATURE")
	for _, a := range agents {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n", a.ID, a.Name, a.Type, a.Temperature)
	}
	return tw.Flush()
}

// initAnswers are the values runInit collects.
type initAnswers struct {
	HTTPAddr    string
	DBPath      string
	LLMProvider string
	LLMModel    string
	LogLevel    string
	LogFormat   string
}

func runInit(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "agentdesk configuration setup")
	fmt.Fprintln(out, "=============================")
	fmt.Fprintln(out)

	outputFile := prompt(reader, out, "Config file path", config.Path())
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := strings.ToLower(prompt(reader, out, "File exists. Overwrite?", "no"))
		if overwrite != "yes" && overwrite != "y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	answers := initAnswers{}
	fmt.Fprintln(out, "\n--- Server ---")
	answers.HTTPAddr = prompt(reader, out, "HTTP address", "localhost:8080")
	answers.DBPath = prompt(reader, out, "SQLite database path", config.DefaultDBPath())

	fmt.Fprintln(out, "\n--- Language model ---")
	answers.LLMProvider = prompt(reader, out, "Provider (openai/echo)", "openai")
	answers.LLMModel = prompt(reader, out, "Model", "gpt-4o")

	fmt.Fprintln(out, "\n--- Logging ---")
	answers.LogLevel = prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	answers.LogFormat = prompt(reader, out, "Log format (text/json)", "text")

	if err := writeConfigFile(outputFile, renderConfig(answers)); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintln(out, "Secrets are read from AGENTDESK_JWT_SECRET, OPENAI_API_KEY, WEATHER_API_KEY and WINDY_API_KEY.")
	fmt.Fprintln(out, "\nTo start the server:")
	fmt.Fprintln(out, "  agentdesk serve")
	return nil
}

// renderConfig produces a starter YAML config. Secrets are left as
// environment references.
func renderConfig(a initAnswers) string {
	var b strings.Builder
	b.WriteString("# agentdesk configuration\n")
	b.WriteString("# Generated by agentdesk init\n\n")

	fmt.Fprintf(&b, "server:\n  http_addr: %q\n\n", a.HTTPAddr)
	fmt.Fprintf(&b, "database:\n  path: %q\n\n", a.DBPath)
	b.WriteString("auth:\n  jwt_secret: \"${AGENTDESK_JWT_SECRET}\"\n\n")

	b.WriteString("llm:\n")
	fmt.Fprintf(&b, "  provider: %q\n", a.LLMProvider)
	fmt.Fprintf(&b, "  model: %q\n", a.LLMModel)
	b.WriteString("  api_key: \"${OPENAI_API_KEY}\"\n\n")

	b.WriteString("agents:\n  invoke_timeout: \"60s\"\n  workers: 8\n  history_window: 0\n\n")

	b.WriteString("providers:\n")
	b.WriteString("  weather:\n    api_key: \"${WEATHER_API_KEY}\"\n")
	b.WriteString("  windy:\n    api_key: \"${WINDY_API_KEY}\"\n")
	b.WriteString("  opensky:\n    requests_per_second: 1\n")
	b.WriteString("  timeout: \"15s\"\n\n")

	b.WriteString("dedupe:\n  enabled: false\n  ttl: \"5m\"\n\n")

	fmt.Fprintf(&b, "logging:\n  level: %q\n  format: %q\n\n", a.LogLevel, a.LogFormat)
	b.WriteString("metrics:\n  enabled: true\n  path: \"/metrics\"\n")
	return b.String()
}

func writeConfigFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file may hold secrets once edited.
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	if input == "" {
		return defaultVal
	}
	return input
}
