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
	"time"

	"github.com/chzyer/readline"

	"github.com/Tanzania-AI-Community/twiga/pkg/agent"
	"github.com/Tanzania-AI-Community/twiga/pkg/bus"
	"github.com/Tanzania-AI-Community/twiga/pkg/channels"
	"github.com/Tanzania-AI-Community/twiga/pkg/config"
	"github.com/Tanzania-AI-Community/twiga/pkg/cron"
	"github.com/Tanzania-AI-Community/twiga/pkg/knowledge"
	"github.com/Tanzania-AI-Community/twiga/pkg/logger"
	"github.com/Tanzania-AI-Community/twiga/pkg/providers"
	"github.com/Tanzania-AI-Community/twiga/pkg/store"
	"github.com/Tanzania-AI-Community/twiga/pkg/tools"
)

const version = "0.1.0"
const logo = "🦒"

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "onboard":
		onboard()
	case "agent":
		agentCmd()
	case "serve", "gateway":
		serveCmd()
	case "ingest":
		ingestCmd()
	case "status":
		statusCmd()
	case "version", "--version", "-v":
		fmt.Printf("%s twiga v%s\n", logo, version)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Printf("%s twiga - Teaching assistant for Tanzanian educators v%s\n\n", logo, version)
	fmt.Println("Usage: twiga <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  onboard     Initialize twiga configuration")
	fmt.Println("  agent       Chat with the assistant from the terminal")
	fmt.Println("  serve       Start the WhatsApp gateway")
	fmt.Println("  ingest      Index textbook chunks into the knowledge base")
	fmt.Println("  status      Show configuration status")
	fmt.Println("  version     Show version information")
}

func getConfigPath() string {
	if p := os.Getenv("TWIGA_CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".twiga", "config.json")
}

func loadConfig() (*config.Config, error) {
	if err := loadEnvFile(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return config.LoadConfig(getConfigPath())
}

func onboard() {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists at %s\n", configPath)
		fmt.Print("Overwrite? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" {
			fmt.Println("Aborted.")
			return
		}
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(configPath, cfg); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s twiga is ready!\n", logo)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add your API key to", configPath)
	fmt.Println("  2. Index textbooks: twiga ingest chunks.jsonl")
	fmt.Println("  3. Chat: twiga agent -m \"Hujambo!\"")
}

// buildEngine wires the store, knowledge base, tools and agent engine
// from config. The returned cleanup closes the store.
func buildEngine(cfg *config.Config, msgBus *bus.MessageBus) (*agent.Engine, *store.Store, func(), error) {
	provider, err := providers.CreateProvider(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	storage, err := store.NewStore(cfg.StorePath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	registry := tools.NewToolRegistry()
	registry.Register(tools.NewSolveEquationTool(provider, cfg.Agent.Model))

	if cfg.Providers.OpenAI.APIKey != "" {
		embedder := knowledge.NewEmbedder(
			cfg.Providers.OpenAI.APIBase,
			cfg.Providers.OpenAI.APIKey,
			cfg.Knowledge.EmbeddingModel,
		)
		base, err := knowledge.NewBase(cfg.KnowledgePath(), embedder)
		if err != nil {
			storage.Close()
			return nil, nil, nil, fmt.Errorf("open knowledge base: %w", err)
		}
		registry.Register(tools.NewSearchKnowledgeTool(base))
		registry.Register(tools.NewGenerateExerciseTool(base, provider, cfg.Agent.Model))
	} else {
		logger.WarnC("main", "No OpenAI API key set, knowledge tools disabled")
	}

	engine := agent.NewEngine(cfg, msgBus, provider, storage, registry)

	logger.InfoCF("main", "Engine initialized", map[string]interface{}{
		"model":       cfg.Agent.Model,
		"tools_count": registry.Count(),
	})

	return engine, storage, func() { storage.Close() }, nil
}

func agentCmd() {
	message := ""

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--debug", "-d":
			logger.SetLevel(logger.DEBUG)
		case "-m", "--message":
			if i+1 < len(args) {
				message = args[i+1]
				i++
			}
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	engine, _, cleanup, err := buildEngine(cfg, bus.NewMessageBus())
	if err != nil {
		fmt.Printf("Error initializing engine: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if message != "" {
		response, err := engine.ProcessDirect(context.Background(), message)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\n%s %s\n", logo, response)
		return
	}

	fmt.Printf("%s Interactive mode (Ctrl+C to exit)\n\n", logo)
	interactiveMode(engine)
}

func interactiveMode(engine *agent.Engine) {
	prompt := fmt.Sprintf("%s You: ", logo)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".twiga_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(engine)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nKwaheri!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		if !handleInteractiveLine(engine, line) {
			return
		}
	}
}

func simpleInteractiveMode(engine *agent.Engine) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("%s You: ", logo)
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println("\nKwaheri!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		if !handleInteractiveLine(engine, line) {
			return
		}
	}
}

func handleInteractiveLine(engine *agent.Engine, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}
	if input == "exit" || input == "quit" {
		fmt.Println("Kwaheri!")
		return false
	}

	response, err := engine.ProcessDirect(context.Background(), input)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return true
	}

	fmt.Printf("\n%s %s\n\n", logo, response)
	return true
}

func serveCmd() {
	for _, arg := range os.Args[2:] {
		if arg == "--debug" || arg == "-d" {
			logger.SetLevel(logger.DEBUG)
			break
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	msgBus := bus.NewMessageBus()
	engine, storage, cleanup, err := buildEngine(cfg, msgBus)
	if err != nil {
		fmt.Printf("Error initializing engine: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	channelManager, err := channels.NewManager(cfg, msgBus)
	if err != nil {
		fmt.Printf("Error creating channel manager: %v\n", err)
		os.Exit(1)
	}

	enabledChannels := channelManager.GetEnabledChannels()
	if len(enabledChannels) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", enabledChannels)
	} else {
		fmt.Println("⚠ Warning: no channels enabled, only the web server will run")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cronService *cron.Service
	if cfg.Cron.Enabled {
		cronService, err = cron.NewService(cfg.Cron.MaintenanceExpr, func(ctx context.Context) error {
			pruned, err := storage.PruneRateCounters(ctx)
			if err != nil {
				return err
			}
			logger.InfoCF("main", "Pruned rate counters", map[string]interface{}{
				"rows": pruned,
			})
			return nil
		})
		if err != nil {
			fmt.Printf("Error creating cron service: %v\n", err)
			os.Exit(1)
		}
		if err := cronService.Start(); err != nil {
			fmt.Printf("Error starting cron service: %v\n", err)
		}
	}

	if err := channelManager.StartAll(ctx); err != nil {
		fmt.Printf("Error starting channels: %v\n", err)
	}

	go engine.Run(ctx)

	server := buildGatewayServer(cfg, channelManager)
	go func() {
		logger.InfoCF("main", "Gateway listening", map[string]interface{}{
			"addr": server.Addr,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("main", "Gateway server failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	fmt.Printf("✓ Gateway started on %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	if cronService != nil {
		cronService.Stop()
	}
	engine.Stop()
	channelManager.StopAll(shutdownCtx)
	fmt.Println("✓ Gateway stopped")
}

func buildGatewayServer(cfg *config.Config, manager *channels.Manager) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if ch, ok := manager.GetChannel("whatsapp"); ok {
		if wa, ok := ch.(*channels.WhatsAppChannel); ok {
			mux.Handle("/", wa.Handler())
		}
	}

	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		Handler: mux,
	}
}

// ingestCmd indexes textbook chunks from a JSONL file. Each line is
// one chunk object.
func ingestCmd() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: twiga ingest <chunks.jsonl>")
		os.Exit(1)
	}
	path := os.Args[2]

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Providers.OpenAI.APIKey == "" {
		fmt.Println("Error: an OpenAI-compatible API key is required for embeddings")
		os.Exit(1)
	}

	embedder := knowledge.NewEmbedder(
		cfg.Providers.OpenAI.APIBase,
		cfg.Providers.OpenAI.APIKey,
		cfg.Knowledge.EmbeddingModel,
	)
	base, err := knowledge.NewBase(cfg.KnowledgePath(), embedder)
	if err != nil {
		fmt.Printf("Error opening knowledge base: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Open(path)
	if err != nil {
		fmt.Printf("Error opening %s: %v\n", path, err)
		os.Exit(1)
	}
	defer f.Close()

	type chunkLine struct {
		ID        string `json:"id"`
		Content   string `json:"content"`
		Subject   string `json:"subject"`
		ClassName string `json:"class_name"`
		Chapter   string `json:"chapter"`
		DocType   string `json:"doc_type"`
	}

	ctx := context.Background()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	indexed := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var c chunkLine
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			fmt.Printf("⊘ Skipping line %d: %v\n", lineNo, err)
			continue
		}
		if c.Content == "" {
			fmt.Printf("⊘ Skipping line %d: empty content\n", lineNo)
			continue
		}

		err := base.IndexChunk(ctx, knowledge.Chunk{
			ID:        c.ID,
			Content:   c.Content,
			Subject:   c.Subject,
			ClassName: c.ClassName,
			Chapter:   c.Chapter,
			DocType:   c.DocType,
		})
		if err != nil {
			fmt.Printf("✗ Failed to index line %d: %v\n", lineNo, err)
			continue
		}
		indexed++
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading %s: %v\n", path, err)
		os.Exit(1)
	}

	fmt.Printf("✓ Indexed %d chunks (%d total in base)\n", indexed, base.Count())
}

func statusCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	configPath := getConfigPath()

	fmt.Printf("%s twiga Status\n\n", logo)

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config:", configPath, "✓")
	} else {
		fmt.Println("Config:", configPath, "✗")
	}

	fmt.Printf("Model: %s\n", cfg.Agent.Model)

	status := func(enabled bool) string {
		if enabled {
			return "✓"
		}
		return "not set"
	}
	fmt.Println("OpenAI-compatible API:", status(cfg.Providers.OpenAI.APIKey != ""))
	fmt.Println("Anthropic API:", status(cfg.Providers.Anthropic.APIKey != ""))
	fmt.Println("WhatsApp channel:", status(cfg.Channels.WhatsApp.Enabled))

	if _, err := os.Stat(cfg.StorePath()); err == nil {
		fmt.Println("Store:", cfg.StorePath(), "✓")
	} else {
		fmt.Println("Store:", cfg.StorePath(), "not created yet")
	}
	if _, err := os.Stat(cfg.KnowledgePath()); err == nil {
		fmt.Println("Knowledge base:", cfg.KnowledgePath(), "✓")
	} else {
		fmt.Println("Knowledge base:", cfg.KnowledgePath(), "not created yet")
	}
}
