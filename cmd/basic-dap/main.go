package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/basiclang/basic-dap/internal/config"
	"github.com/basiclang/basic-dap/internal/dap"
	"github.com/basiclang/basic-dap/internal/interp"
	"github.com/basiclang/basic-dap/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (TOML)")
	interactive := flag.Bool("interactive", false, "Serve the debug protocol over stdio (default)")
	dapOnly := flag.Bool("dap-only", false, "Serve the debug protocol over TCP")
	lspOnly := flag.Bool("lsp-only", false, "Language server mode (not provided by this binary)")
	port := flag.Int("port", 0, "TCP port for dap-only mode")
	logFile := flag.String("log", "", "Write logs to a file instead of stderr")
	logWire := flag.Bool("log-wire", false, "Log every protocol frame")
	verbose := flag.Bool("verbose", false, "Log session lifecycle events")
	showVersion := flag.Bool("version", false, "Show version and exit")
	help := flag.Bool("help", false, "Show help and exit")

	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	if *lspOnly {
		fmt.Fprintln(os.Stderr, "language server mode is provided by the companion basic-lsp binary")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags override the file.
	if *dapOnly {
		cfg.Mode = config.ModeDAPOnly
	} else if *interactive {
		cfg.Mode = config.ModeInteractive
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *logWire {
		cfg.LogWire = true
	}
	if *verbose {
		cfg.Verbose = true
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(f)
	} else if cfg.Mode == config.ModeInteractive {
		// Stdout carries protocol frames; keep logging off it.
		log.SetOutput(os.Stderr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		os.Exit(0)
	}()

	switch cfg.Mode {
	case config.ModeDAPOnly:
		if err := serveTCP(cfg); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	default:
		if err := serveStdio(cfg); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}
}

// serveStdio runs one session over this process's stdin and stdout.
// Program INPUT is unavailable because stdin carries protocol frames.
func serveStdio(cfg *config.Config) error {
	if cfg.Verbose {
		log.Printf("%s serving on stdio", version.Name)
	}
	server := dap.NewServer(dap.NewStdioTransport(), interp.NoInput{}, cfg)
	return server.Serve()
}

// serveTCP accepts one client at a time, serving each connection to
// completion before accepting the next.
func serveTCP(cfg *config.Config) error {
	addr := fmt.Sprintf(":%d", cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer ln.Close()
	log.Printf("%s listening on %s", version.Name, addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}
		server := dap.NewServer(
			dap.NewTCPTransport(conn),
			interp.NewConsoleInput(os.Stdin, os.Stderr),
			cfg,
		)
		if err := server.Serve(); err != nil {
			log.Printf("session ended: %v", err)
		}
	}
}

func printHelp() {
	fmt.Println(`basic-dap: BASIC interpreter with a Debug Adapter Protocol server

Runs BASIC programs line by line under a debugger. Editors and other
DAP clients can set breakpoints, step, inspect and modify variables,
and evaluate expressions against the running program.

USAGE:
    basic-dap [OPTIONS]

OPTIONS:
    -interactive       Serve the debug protocol over stdio (default)
    -dap-only          Serve the debug protocol over TCP
    -lsp-only          Language server mode (points to basic-lsp, exits)
    -port <port>       TCP port for dap-only mode (default: 4711)
    -config <path>     Path to configuration file (TOML)
    -log <path>        Write logs to a file instead of stderr
    -log-wire          Log every protocol frame
    -verbose           Log session lifecycle events
    -version           Show version and exit
    -help              Show this help message

CONFIGURATION:
    Create a TOML configuration file to customize behavior:

    mode = "dap-only"
    port = 4711
    allow_evaluate = true
    allow_modify = true
    verbose = false
    log_wire = false
    log_file = ""

PROTOCOL:
    Standard requests: initialize, launch, attach, setBreakpoints,
    configurationDone, continue, next, stepIn, stepOut, pause,
    stackTrace, scopes, variables, evaluate, setVariable, source,
    threads, loadedSources, restart, disconnect, terminate.

    Custom requests: loadSource replaces the loaded program text
    without launching it.

LAUNCH ARGUMENTS:
    program   Path to a .bas file on disk
    content   Inline program text (wins over program)
    name      Display name for inline programs`)
}
