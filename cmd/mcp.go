/*
Copyright © 2025 Engram Labs
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/graph"
	"github.com/engramlabs/engram/internal/llm"
	"github.com/engramlabs/engram/internal/logger"
	enginemcp "github.com/engramlabs/engram/internal/mcp"
	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/policy"
	"github.com/engramlabs/engram/internal/project"
	"github.com/engramlabs/engram/internal/retrieval"
	"github.com/engramlabs/engram/internal/scoring"
	"github.com/engramlabs/engram/internal/telemetry"
	"github.com/engramlabs/engram/internal/tiers"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"mcp"},
	Short:   "Start the MCP memory server for AI agent integration",
	Long: `Start a Model Context Protocol (MCP) server that gives AI agents like
Claude Code, Cursor, and other assistants a persistent cognitive memory.

The server exposes graph tools (nodes, relationships, traversal, path
finding), memory tools (hybrid search, insight compression, episodes,
working memory, raw dialogue), and read-only memory:// resources.

Example usage with Claude Code:
  engram serve

The server speaks JSON-RPC over stdio and runs until the client
disconnects or the process receives SIGTERM.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Stray arguments usually mean a typoed subcommand. Refuse instead of
		// silently starting a server the caller did not ask for.
		if len(args) > 0 {
			return fmt.Errorf("unknown command %q for %q\nRun '%s --help' for usage", args[0], cmd.CommandPath(), cmd.Root().Name())
		}
		return runMemoryServer(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// mcpJSONResponse wraps a successful tool result as compact JSON. Tool
// results land in an LLM context window, so no indentation.
func mcpJSONResponse(v any) (*mcpsdk.CallToolResultFor[any], error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return &mcpsdk.CallToolResultFor[any]{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, nil
}

// mcpToolError wraps a classified error body with IsError=true. Tool errors
// are returned in the result rather than as protocol errors so the calling
// LLM can see them and self-correct.
func mcpToolError(body *enginemcp.ErrorBody) (*mcpsdk.CallToolResultFor[any], error) {
	return &mcpsdk.CallToolResultFor[any]{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: body.JSON()}},
		IsError: true,
	}, nil
}

// runTool is the shared dispatch path for every registered tool: resolve the
// project scope, stamp it on the context, invoke the handler, classify any
// failure, and record the invocation. Telemetry sees only the tool name,
// duration, and outcome category, never arguments or memory content.
func runTool[R any](ctx context.Context, box *enginemcp.Toolbox, tel telemetry.Client, tool, explicitProject string, fn func(context.Context) (R, error)) (*mcpsdk.CallToolResultFor[any], error) {
	start := time.Now()
	logger.SetLastTool(tool)

	projectID, err := box.ResolveProject(explicitProject)
	if err != nil {
		body := enginemcp.Classify(tool, "", err)
		telemetry.TrackTool(tel, tool, time.Since(start).Milliseconds(), false, body.Error)
		return mcpToolError(body)
	}
	ctx = project.WithProject(ctx, projectID)

	result, err := fn(ctx)
	if err != nil {
		body := enginemcp.Classify(tool, projectID, err)
		telemetry.TrackTool(tel, tool, time.Since(start).Milliseconds(), false, body.Error)
		return mcpToolError(body)
	}

	telemetry.TrackTool(tel, tool, time.Since(start).Milliseconds(), true, "")
	return mcpJSONResponse(result)
}

// policyAdapter bridges the OPA engine into the graph delete path. The graph
// package never sees Rego; it gets an allow/deny verdict plus a reason
// string built from the policy violations.
type policyAdapter struct {
	engine *policy.Engine
}

func (a *policyAdapter) AllowDelete(ctx context.Context, edge memory.Edge, consentGiven bool) (bool, string, error) {
	proj, _ := project.FromContext(ctx)
	decision, err := a.engine.EvaluateDeleteEdge(ctx, &policy.EdgeInput{
		ID:         edge.ID,
		Relation:   edge.Relation,
		EdgeType:   edge.Properties.EdgeType(),
		Properties: edge.Properties,
	}, consentGiven, proj)
	if err != nil {
		return false, "", err
	}
	if decision.IsDenied() {
		return false, strings.Join(decision.Violations, "; "), nil
	}
	return true, "", nil
}

func runMemoryServer(ctx context.Context) error {
	// NOTE: MCP uses stdio transport. stdout MUST be pure JSON-RPC.
	// All status/debug output goes to stderr only.
	defer logger.HandlePanic()
	fmt.Fprintln(os.Stderr, "Engram MCP Server starting...")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// At debug level, session events additionally land in a JSONL file under
	// the logs directory for offline inspection.
	var debugLog *logger.DebugLogger
	if cfg.Log.Level == "debug" {
		if dir, derr := config.LogsDir(); derr == nil {
			if dl, lerr := logger.NewDebugLogger(logger.Options{OutputDir: dir}); lerr != nil {
				fmt.Fprintf(os.Stderr, "⚠  Debug log disabled: %v\n", lerr)
			} else {
				debugLog = dl
				defer func() { _ = debugLog.Close() }()
				fmt.Fprintf(os.Stderr, "✓ Debug log: %s\n", debugLog.LogPath())
			}
		}
	}
	startupDone := func(error) {}
	if debugLog != nil {
		startupDone = debugLog.StartPhase("startup", map[string]any{"version": version})
	}

	store, err := openStore(cfg)
	if err != nil {
		startupDone(err)
		return fmt.Errorf("open memory store: %w", err)
	}
	defer func() { _ = store.Close() }()

	// LLM wiring is best-effort: without an embedder the server still runs,
	// insights are stored vectorless for later backfill, and semantic recall
	// returns empty channels while keyword and graph channels keep working.
	llmCfg, llmErr := config.LoadLLMConfig()
	if llmErr != nil {
		fmt.Fprintf(os.Stderr, "⚠  LLM config warning: %v\n", llmErr)
	}
	embedder, err := llm.NewEmbedder(ctx, llmCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠  Embedding provider unavailable: %v\n", err)
		embedder = nil
	}
	summarizer, err := llm.NewChatModel(ctx, llmCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠  Summarizer unavailable, compression uses extractive fallback: %v\n", err)
		summarizer = nil
	}

	calc := scoring.NewCalculator(nil)
	calc.SetWeights(cfg.Scoring.Weights.Weights())

	engine := graph.NewEngine(store, calc)

	polEngine, err := policy.NewEngine(policy.EngineConfig{PoliciesDir: config.PoliciesDir()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠  Policy engine disabled: %v\n", err)
	} else if polEngine.Enabled() {
		engine.SetDeletePolicy(&policyAdapter{engine: polEngine})
		fmt.Fprintf(os.Stderr, "✓ %d deletion policies loaded\n", polEngine.PolicyCount())
	}

	compressor := tiers.NewCompressor(store, embedder, tiers.CompressorConfig{
		FidelityThreshold: cfg.Insights.FidelityThreshold,
		Summarizer:        summarizer,
	})

	search := retrieval.NewService(store, retrieval.Config{RRFK: cfg.Retrieval.RRFK, ShadowAudit: cfg.Retrieval.ShadowAudit})

	box := &enginemcp.Toolbox{
		Store:      store,
		Graph:      engine,
		Search:     search,
		Compressor: compressor,
		Episodes:   tiers.NewEpisodes(store, embedder),
		Working: tiers.NewWorkingMemory(store, tiers.WorkingConfig{
			Capacity:          cfg.WorkingMemory.Capacity,
			CriticalThreshold: tiers.DefaultWorkingConfig().CriticalThreshold,
		}),
		Dialogue:       tiers.NewDialogue(store),
		Nuance:         scoring.NewNuanceEngine(store),
		Calculator:     calc,
		DefaultProject: cfg.Project.Default,
	}

	tel := telemetry.Init(version, cfg.Telemetry.Enabled)
	defer func() { _ = tel.Close() }()
	tel.Track(telemetry.EventServeStarted, nil)
	defer tel.Track(telemetry.EventServeStopped, nil)

	// Hot-reload the tunables that are safe to swap mid-session: scoring
	// weights, fusion settings, and the fidelity threshold. Everything else
	// requires a restart.
	if cfgPath, perr := config.ConfigFilePath(); perr == nil {
		watcher, werr := config.NewWatcher(cfgPath, func(next config.Config) {
			calc.SetWeights(next.Scoring.Weights.Weights())
			search.SetConfig(retrieval.Config{RRFK: next.Retrieval.RRFK, ShadowAudit: next.Retrieval.ShadowAudit})
			compressor.SetFidelityThreshold(next.Insights.FidelityThreshold)
			fmt.Fprintln(os.Stderr, "✓ Config reloaded (scoring weights, retrieval fusion, fidelity threshold)")
			if debugLog != nil {
				debugLog.Info("config_reload", "runtime tunables reloaded", nil)
			}
		})
		if werr != nil {
			fmt.Fprintf(os.Stderr, "⚠  Config watcher disabled: %v\n", werr)
		} else {
			go watcher.Run(ctx)
		}
	}

	impl := &mcpsdk.Implementation{
		Name:    "engram-mcp",
		Version: version,
	}
	serverOpts := &mcpsdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.InitializedParams) {
			fmt.Fprintf(os.Stderr, "✓ MCP connection established\n")
			if isVerbose() {
				fmt.Fprintf(os.Stderr, "[DEBUG] Client initialized\n")
			}
		},
	}
	server := mcpsdk.NewServer(impl, serverOpts)

	registerGraphTools(server, box, tel)
	registerMemoryTools(server, box, tel)
	if err := enginemcp.RegisterResources(server, box); err != nil {
		startupDone(err)
		return fmt.Errorf("register resources: %w", err)
	}
	startupDone(nil)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// systemd integration is a no-op outside a unit with NOTIFY_SOCKET set.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	if interval, werr := daemon.SdWatchdogEnabled(false); werr == nil && interval > 0 {
		go func() {
			ticker := time.NewTicker(interval / 2)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
				}
			}
		}()
	}
	defer func() { _, _ = daemon.SdNotify(false, daemon.SdNotifyStopping) }()

	fmt.Fprintf(os.Stderr, "Engram MCP Server ready (project %q, db %s)\n", cfg.Project.Default, cfg.Database.Path)
	if err := server.Run(ctx, mcpsdk.NewStdioTransport()); err != nil {
		if errors.Is(err, context.Canceled) {
			if debugLog != nil {
				debugLog.Info("shutdown", "stop signal handled", nil)
			}
			fmt.Fprintln(os.Stderr, "Engram MCP Server stopped")
			return nil
		}
		if debugLog != nil {
			debugLog.ErrorWithErr("shutdown", "server run failed", err, nil)
		}
		return fmt.Errorf("MCP server failed: %w", err)
	}
	if debugLog != nil {
		debugLog.Info("shutdown", "transport closed", nil)
	}
	return nil
}
