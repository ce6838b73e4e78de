package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/paralela17-sudo/tradepulse-bot/internal/config"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== TradePulse Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit provider order and failover")
		fmt.Println("3) Edit scanner settings")
		fmt.Println("4) Edit prediction settings")
		fmt.Println("5) Save config")
		fmt.Println("6) Launch service")
		fmt.Println("7) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editStream(reader, cfg)
		case "3":
			editScanner(reader, cfg)
		case "4":
			editPredict(reader, cfg)
		case "5":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "6":
			launchService(reader)
		case "7":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Println("Providers:", strings.Join(cfg.Stream.Providers, " -> "), "| fallback:", cfg.Stream.Fallback)
	fmt.Printf("Connect timeout: %s | default symbol: %s\n", cfg.Stream.ConnectTimeout(), cfg.Stream.DefaultSymbol)
	fmt.Printf("Scanner: batch %d every %s, fetch timeout %s, min candles %d\n",
		cfg.Scanner.BatchSize, cfg.Scanner.BatchDelay(), cfg.Scanner.FetchTimeout(), cfg.Scanner.MinCandles)
	fmt.Printf("Scan cadence: first after %s, then every %s | display >= %d%%\n",
		cfg.Scanner.InitialDelay(), cfg.Scanner.Interval(), cfg.Scanner.DisplayThreshold)
	fmt.Printf("Prediction: mode %s, timeout %s, cache %s (ttl %s)\n",
		cfg.Predict.Mode, cfg.Predict.Timeout(), cfg.Predict.Cache, cfg.Predict.CacheTTL())
	fmt.Printf("Assets: %d | kafka enabled: %t\n", len(cfg.Assets), cfg.Kafka.Enabled)
}

func editStream(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Providers ---")
	if list := promptList(reader, "Provider order", cfg.Stream.Providers); list != nil {
		cfg.Stream.Providers = list
	}
	cfg.Stream.Fallback = promptString(reader, "Fallback provider (none to disable)", cfg.Stream.Fallback)
	cfg.Stream.ConnectTimeoutMs = promptInt(reader, "Connect timeout (ms)", cfg.Stream.ConnectTimeoutMs)
	cfg.Stream.DefaultSymbol = promptString(reader, "Default live symbol", cfg.Stream.DefaultSymbol)
}

func editScanner(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Scanner ---")
	cfg.Scanner.BatchSize = promptInt(reader, "Batch size", cfg.Scanner.BatchSize)
	cfg.Scanner.BatchDelayMs = promptInt(reader, "Delay between batches (ms)", cfg.Scanner.BatchDelayMs)
	cfg.Scanner.FetchTimeoutMs = promptInt(reader, "Fetch timeout (ms)", cfg.Scanner.FetchTimeoutMs)
	cfg.Scanner.IntervalMs = promptInt(reader, "Scan interval (ms)", cfg.Scanner.IntervalMs)
	cfg.Scanner.DisplayThreshold = promptInt(reader, "Display threshold (%)", cfg.Scanner.DisplayThreshold)
}

func editPredict(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Prediction ---")
	cfg.Predict.Mode = promptString(reader, "Mode (local|gemini)", cfg.Predict.Mode)
	cfg.Predict.TimeoutMs = promptInt(reader, "Timeout (ms)", cfg.Predict.TimeoutMs)
	cfg.Predict.CacheTTLMs = promptInt(reader, "Cache TTL (ms)", cfg.Predict.CacheTTLMs)
	cfg.Predict.Cache = promptString(reader, "Cache backend (memory|redis)", cfg.Predict.Cache)
}

func launchService(reader *bufio.Reader) {
	fmt.Println("Launching tradepulse (Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/tradepulse", "-config", locateConfig())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start service: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the service and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptString(reader *bufio.Reader, label, current string) string {
	fmt.Printf("%s [%s]: ", label, current)
	line, _ := reader.ReadString('\n')
	if line = strings.TrimSpace(line); line == "" {
		return current
	}
	return strings.ToLower(line)
}

func promptInt(reader *bufio.Reader, label string, current int) int {
	fmt.Printf("%s [%d]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.Atoi(line)
	if err != nil || val <= 0 {
		fmt.Printf("invalid number, keeping %d\n", current)
		return current
	}
	return val
}

// promptList returns nil when the user keeps the current value.
func promptList(reader *bufio.Reader, label string, current []string) []string {
	fmt.Printf("%s [%s] (comma-separated): ", label, strings.Join(current, ","))
	line, _ := reader.ReadString('\n')
	if strings.TrimSpace(line) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(line, ",") {
		if trimmed := strings.ToLower(strings.TrimSpace(p)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

func saveConfig(cfg *config.Config) error {
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	if filepath.IsAbs(defaultConfigPath) {
		return defaultConfigPath
	}
	return filepath.Clean(defaultConfigPath)
}
