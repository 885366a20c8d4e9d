package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/KevoDB/flashkv/pkg/common/log"
	"github.com/KevoDB/flashkv/pkg/config"
	"github.com/KevoDB/flashkv/pkg/flash"
	"github.com/KevoDB/flashkv/pkg/store"
	"github.com/KevoDB/flashkv/pkg/telemetry"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("put"),
	readline.PcItem("puthex"),
	readline.PcItem("get"),
	readline.PcItem("del"),
	readline.PcItem("ls"),
	readline.PcItem("compact"),
	readline.PcItem("format"),
	readline.PcItem("usage"),
	readline.PcItem(".stats"),
	readline.PcItem(".dump",
		readline.PcItem("none"),
		readline.PcItem("zstd"),
		readline.PcItem("snappy"),
	),
	readline.PcItem(".load"),
	readline.PcItem(".exit"),
)

// Config holds the application configuration
type Config struct {
	ServerMode  bool
	ListenAddr  string
	ConfigPath  string
	DataDir     string
	ImagePath   string
	Telemetry   bool
	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string
	TLSCAFile   string
}

func main() {
	appConfig := parseFlags()

	cfg, err := loadConfig(appConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %s\n", err)
		os.Exit(1)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	log.GetDefaultLogger().SetLevel(level)

	telConfig := telemetry.DefaultConfig()
	telConfig.LoadFromEnv()
	if appConfig.Telemetry {
		telConfig.Enabled = true
	}
	tel, err := telemetry.New(telConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting telemetry: %s\n", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tel.Shutdown(ctx)
	}()

	dev, err := openDevice(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening flash image: %s\n", err)
		os.Exit(1)
	}
	defer dev.Close()

	options := []store.Option{
		store.WithTelemetry(tel),
		store.WithFlashTimeout(cfg.FlashTimeout),
	}
	st, err := store.Open(context.Background(), dev, options...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %s\n", err)
		os.Exit(1)
	}

	if appConfig.ServerMode {
		runServer(st, tel, appConfig)
		st.Close()
		return
	}

	shell := NewShell(dev, st, os.Stdout, options...)
	runInteractive(shell, cfg.ImagePath)
	if current := shell.Store(); current != nil {
		current.Close()
	}
}

// parseFlags parses command line flags and returns a Config
func parseFlags() Config {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "flashkv - a record store on simulated NOR flash\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: flashkv [options] [data_dir]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "By default, flashkv runs an interactive shell over a flash image file.\n")
		fmt.Fprintf(flag.CommandLine.Output(), "If -server flag is provided, flashkv serves the store over gRPC.\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nStart flashkv and type help for the shell commands.\n")
	}

	serverMode := flag.Bool("server", false, "Run in server mode, exposing a gRPC API")
	listenAddr := flag.String("address", "localhost:50051", "Address to listen on in server mode")
	configPath := flag.String("config", "", "Configuration file (default DATA_DIR/"+config.DefaultConfigFileName+")")
	imagePath := flag.String("image", "", "Flash image file, overriding the configuration")
	telemetryEnabled := flag.Bool("telemetry", false, "Enable OpenTelemetry export (see FLASHKV_TELEMETRY_*)")

	// TLS options
	tlsEnabled := flag.Bool("tls", false, "Enable TLS for secure connections")
	tlsCertFile := flag.String("cert", "", "TLS certificate file path")
	tlsKeyFile := flag.String("key", "", "TLS private key file path")
	tlsCAFile := flag.String("ca", "", "TLS CA certificate file for client verification")

	flag.Parse()

	dataDir := "."
	if flag.NArg() > 0 {
		dataDir = flag.Arg(0)
	}

	return Config{
		ServerMode:  *serverMode,
		ListenAddr:  *listenAddr,
		ConfigPath:  *configPath,
		DataDir:     dataDir,
		ImagePath:   *imagePath,
		Telemetry:   *telemetryEnabled,
		TLSEnabled:  *tlsEnabled,
		TLSCertFile: *tlsCertFile,
		TLSKeyFile:  *tlsKeyFile,
		TLSCAFile:   *tlsCAFile,
	}
}

// loadConfig reads the configuration file, writing a default one on first
// use, then applies environment and flag overrides.
func loadConfig(app Config) (*config.Config, error) {
	path := app.ConfigPath
	if path == "" {
		path = filepath.Join(app.DataDir, config.DefaultConfigFileName)
	}

	cfg, err := config.LoadConfig(path)
	if errors.Is(err, config.ErrConfigNotFound) {
		cfg = config.NewDefaultConfig(app.DataDir)
		if err := cfg.Save(path); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	cfg.LoadFromEnv()
	if app.ImagePath != "" {
		cfg.Update(func(c *config.Config) {
			c.ImagePath = app.ImagePath
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openDevice opens the flash controller over the configured image file
func openDevice(cfg *config.Config) (*flash.Controller, error) {
	geom := cfg.Geometry()
	if err := os.MkdirAll(filepath.Dir(cfg.ImagePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}

	medium, err := flash.OpenFileMedium(cfg.ImagePath, geom.Size())
	if err != nil {
		return nil, err
	}

	ctrl, err := flash.NewController(medium, geom,
		flash.WithLatency(cfg.FlashLatency),
		flash.WithStrictProgram(cfg.StrictProgram),
	)
	if err != nil {
		medium.Close()
		return nil, err
	}
	return ctrl, nil
}

// runServer serves the store until SIGINT or SIGTERM
func runServer(st *store.Store, tel telemetry.Telemetry, config Config) {
	server := NewServer(st, tel, config)

	if err := server.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
		return
	}

	fmt.Printf("flashkv server started on %s\n", server.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		sig := <-sigChan
		fmt.Printf("\nReceived signal %v, shutting down...\n", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error shutting down server: %v\n", err)
		}
	}()

	// Serve returns once Shutdown stops the gRPC server
	if err := server.Serve(); err != nil {
		fmt.Fprintf(os.Stderr, "Error serving: %v\n", err)
	}
	fmt.Println("Shutdown complete")
}

// runInteractive starts the interactive shell
func runInteractive(shell *Shell, imagePath string) {
	fmt.Println("flashkv shell")
	fmt.Println("Enter help for usage hints.")

	historyFile := filepath.Join(os.TempDir(), ".flashkv_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("flashkv:%s> ", filepath.Base(imagePath)),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		return
	}
	defer rl.Close()

	ctx := context.Background()
	for {
		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		exit, err := shell.Execute(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		if exit {
			fmt.Println("Goodbye!")
			return
		}
	}
}
