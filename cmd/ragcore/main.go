// Command ragcore is the composition root: it wires config, storage, and every
// Cn service into an Orchestrator and serves it over stdin/stdout as a single
// newline-delimited JSON request/response loop. There is no HTTP surface here —
// the orchestrator is a library, and exposing it over gin/REST is left to a
// caller outside this module (spec.md §1).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tas-rag-core/config"
	"github.com/tas-rag-core/internal/casebank"
	"github.com/tas-rag-core/internal/consolidation"
	"github.com/tas-rag-core/internal/dagcache"
	"github.com/tas-rag-core/internal/debate"
	"github.com/tas-rag-core/internal/embedding"
	"github.com/tas-rag-core/internal/orchestrator"
	"github.com/tas-rag-core/internal/reflection"
	"github.com/tas-rag-core/internal/retrieval"
	"github.com/tas-rag-core/internal/store"
	"github.com/tas-rag-core/internal/strategy"
	"github.com/tas-rag-core/internal/tools"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("failed to load configuration: ", err)
	}

	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatal("failed to open database: ", err)
	}
	if err := db.Migrate(); err != nil {
		log.Fatal("failed to migrate database: ", err)
	}

	taxonomyDAO := store.NewTaxonomyDAO(db)
	chunkDAO := store.NewChunkDAO(db)
	caseBankDAO := store.NewCaseBankDAO(db)
	executionDAO := store.NewExecutionDAO(db)
	agentDAO := store.NewAgentDAO(db)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			log.Printf("warning: redis connection failed, dagcache invalidation will stay process-local: %v", err)
			redisClient = nil
		}
	}

	dag := dagcache.New(taxonomyDAO.NodesForVersion, redisClient)

	primaryClient := embedding.NewHTTPPrimaryClient(
		"https://api.voyageai.com", cfg.Embedding.APIKey, time.Duration(cfg.Embedding.BatchTimeout)*time.Second,
	)
	embedService := embedding.NewService(&cfg.Embedding, cfg.Environment.Name, primaryClient)

	lexicalIndex, err := retrieval.NewLexicalIndex()
	if err != nil {
		log.Fatal("failed to open lexical index: ", err)
	}
	vectorIndex := retrieval.NewPGVectorIndex(db.DB())
	retrievalEngine := retrieval.NewEngine(lexicalIndex, vectorIndex, embedService, dag, chunkDAO, chunkDAO, retrieval.NewNoopReranker())

	caseBankService := casebank.NewService(caseBankDAO)
	_ = caseBankService // exercised indirectly through caseBankDAO passed to the orchestrator below

	// The classifier (C5) and coverage meter (C4) are ingestion/admin-side
	// components: they depend on a precomputed taxonomy-node descriptor store
	// and a per-node target-count store respectively, neither of which the
	// query-serving path touches. They're composed in their own package tests;
	// a document-ingestion command would wire them alongside a descriptor/target
	// DAO once that schema exists.

	consolidationPolicy := consolidation.NewPolicy(caseBankDAO, embedService, consolidation.Config{
		MinUsageCount:    cfg.Consolidation.MinUsage,
		QualityThreshold: cfg.Consolidation.QualityThreshold,
		DupSimilarity:    cfg.Consolidation.DupSimilarity,
		InactiveDays:     cfg.Consolidation.InactiveDays,
		HighUsageExclude: cfg.Consolidation.HighUsageExclude,
	})
	runConsolidationLoop(consolidationPolicy)

	reflectionEngine := reflection.NewEngine(executionDAO, caseBankDAO, reflection.DefaultConfig())
	_ = reflectionEngine // consumed by the respond step's quality estimate in a later iteration

	strategySelector := strategy.NewSelector(strategy.DefaultConfig())

	var debater orchestrator.Debater
	var composer orchestrator.Composer
	if cfg.LLM.APIKey != "" {
		anthropicClient := debate.NewAnthropicClient(cfg.LLM.APIKey, anthropic.Model(cfg.LLM.Model))
		debater = debate.NewEngine(anthropicClient, debate.DefaultConfig())
		composer = anthropicClient
	}

	toolRegistry := tools.NewRegistry()
	toolRegistry.Register(tools.NewCalculatorTool())
	toolExecutor := tools.NewExecutor(toolRegistry).
		WithTimeout(time.Duration(cfg.Tools.Timeout) * time.Second).
		WithMaxRetries(tools.DefaultMaxRetries)

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.DebateEnabled = cfg.Features.Debate
	orchCfg.MetaPlanEnabled = cfg.Features.MetaPlan
	orchCfg.ToolsEnabled = cfg.Features.Tools
	orchCfg.AdaptiveEnabled = cfg.Features.AdaptiveStrategy
	orchCfg.DupeThreshold = cfg.Consolidation.DupSimilarity

	orch := orchestrator.NewOrchestrator(
		retrievalEngine, embedService, dag, agentDAO,
		strategySelector, debater, toolExecutor, composer,
		caseBankDAO, executionDAO, embedService, orchCfg,
	)

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Println("shutting down")
		cancel()
	}()

	serveStdio(ctx, orch)
}

// queryRequest is one line of stdin: {"request_id", "query", "agent_id"?, "mode"?}.
type queryRequest struct {
	RequestID string     `json:"request_id"`
	Query     string     `json:"query"`
	AgentID   *uuid.UUID `json:"agent_id,omitempty"`
	Mode      string     `json:"mode,omitempty"`
}

// serveStdio reads one query per line from stdin and writes one Response per
// line to stdout, the way the teacher's handlers layer turns one HTTP request
// into one orchestrate(...) call — minus the HTTP framing (spec.md §1).
func serveStdio(ctx context.Context, orch *orchestrator.Orchestrator) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	encoder := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var req queryRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			encoder.Encode(map[string]string{"error": fmt.Sprintf("invalid request: %v", err)})
			continue
		}
		if req.RequestID == "" {
			req.RequestID = uuid.NewString()
		}

		resp, err := orch.Orchestrate(ctx, req.RequestID, req.Query, req.AgentID, retrieval.SearchMode(req.Mode))
		if err != nil {
			encoder.Encode(map[string]string{"request_id": req.RequestID, "error": err.Error()})
			continue
		}
		encoder.Encode(resp)
	}
}

// runConsolidationLoop runs the C8 sweep on a fixed interval in the
// background; failures are logged, not fatal, since a missed sweep just
// delays pruning until the next tick.
func runConsolidationLoop(policy *consolidation.Policy) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := policy.Run(context.Background(), false); err != nil {
				log.Printf("consolidation sweep failed: %v", err)
			}
		}
	}()
}
