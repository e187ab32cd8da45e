package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"orgfinder/internal/classifier"
	"orgfinder/internal/config"
	"orgfinder/internal/cypher"
	"orgfinder/internal/geocode"
	"orgfinder/internal/graph"
	"orgfinder/internal/handler"
	"orgfinder/internal/llm"
	"orgfinder/internal/logger"
	"orgfinder/internal/model"
	"orgfinder/internal/reference"
	"orgfinder/internal/repository"
	"orgfinder/internal/response"
	"orgfinder/internal/service"
	"orgfinder/internal/spatial"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zlog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zlog.Sync()

	zlog.Info("Organization Finder",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	// Connect to the organization graph
	executor, err := graph.NewFalkorExecutor(
		cfg.Graph.Address,
		cfg.Graph.Password,
		cfg.Graph.GraphName,
		cfg.Graph.QueryTimeout,
		zlog,
	)
	if err != nil {
		zlog.Fatal("Failed to connect to FalkorDB", zap.Error(err))
	}
	defer executor.Close()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	if err := executor.Ping(startupCtx); err != nil {
		zlog.Warn("FalkorDB ping failed", zap.Error(err))
	} else {
		zlog.Info("Connected to FalkorDB", zap.String("graph", cfg.Graph.GraphName), zap.String("address", cfg.Graph.Address))
	}

	// Reference keywords for the specificity heuristic
	keywords := loadKeywords(startupCtx, cfg, executor, zlog)

	// Gazetteer of well-known landmarks
	gazetteer := spatial.DefaultGazetteer
	if cfg.Search.GazetteerFile != "" {
		g, err := spatial.LoadGazetteer(cfg.Search.GazetteerFile)
		if err != nil {
			zlog.Fatal("Failed to load gazetteer", zap.String("file", cfg.Search.GazetteerFile), zap.Error(err))
		}
		gazetteer = g
		zlog.Info("Loaded landmarks", zap.Int("count", len(g)), zap.String("file", cfg.Search.GazetteerFile))
	}

	// Geocoding provider, optionally behind the shared Redis cache
	var geocoder spatial.Geocoder = geocode.NewNominatim(&cfg.Geocoding, zlog)
	if cfg.Redis.Enabled {
		rdb := geocode.NewRedis(&cfg.Redis)
		defer rdb.Close()

		cache := geocode.NewRedisCache(rdb, geocoder, cfg.Redis.GeocodeTTL, cfg.Redis.KeyPrefix, zlog)
		if err := cache.Ping(startupCtx); err != nil {
			zlog.Warn("Redis geocode cache unavailable, lookups go to the provider", zap.Error(err))
		} else {
			zlog.Info("Redis geocode cache enabled", zap.String("address", cfg.Redis.Address))
		}
		geocoder = cache
	}

	spatialOpts := spatial.Options{
		Gazetteer:         gazetteer,
		DefaultThreshold:  cfg.Search.DefaultThresholdMiles,
		ExpandedThreshold: cfg.Search.ExpandedThresholdMiles,
		DefaultLocation: &model.Coordinates{
			Latitude:  cfg.Search.DefaultLatitude,
			Longitude: cfg.Search.DefaultLongitude,
		},
		Locality:  cfg.Geocoding.Locality,
		CacheSize: cfg.Geocoding.CacheSize,
	}

	// Initialize LLM client
	llmClient := llm.NewClient(&cfg.LLM, zlog)
	if llmClient.IsEnabled() {
		zlog.Info("LLM client initialized",
			zap.String("api_base", cfg.LLM.APIBase),
			zap.String("chat_model", cfg.LLM.ChatModel),
			zap.Float64("chat_temperature", cfg.LLM.ChatTemperature),
			zap.Int("chat_max_tokens", cfg.LLM.ChatMaxTokens),
			zap.Bool("classification", cfg.LLM.UseForClassification),
			zap.Bool("query_writing", cfg.LLM.UseForQueries),
		)
	} else {
		zlog.Warn("LLM is disabled, using the heuristic classifier, query templates and plain answers. Set LLM_API_KEY to enable it")
	}

	// Classifier and query builder
	heuristic := classifier.NewHeuristic(spatial.NewResolver(spatialOpts, nil, zlog))
	var cls classifier.Classifier = heuristic
	if llmClient.IsEnabled() && cfg.LLM.UseForClassification {
		cls = classifier.NewLLM(llmClient, heuristic, cfg.Geocoding.Locality, zlog)
	}

	var builder cypher.Builder = cypher.Template{}
	if llmClient.IsEnabled() && cfg.LLM.UseForQueries {
		schema, err := executor.Schema(startupCtx)
		if err != nil {
			zlog.Warn("Failed to read graph schema, prompts will go without it", zap.Error(err))
		}
		builder = cypher.NewLLMBuilder(llmClient, schema, zlog)
	}

	// Initialize services
	orchestrator := service.NewOrchestrator(builder, executor, cfg.Search.ExpandedThresholdMiles, zlog)
	sessions := service.NewSessionManager(service.SessionOptions{
		HistorySize: cfg.Memory.HistorySize,
		TTL:         cfg.Memory.SessionTTL,
		Spatial:     spatialOpts,
		Geocoder:    geocoder,
	}, zlog)

	var generator llm.Generator
	if llmClient.IsEnabled() && cfg.LLM.UseForAnswers {
		generator = llmClient
	}

	components := service.Components{
		Classifier:   cls,
		Finder:       reference.NewFinder(keywords),
		Orchestrator: orchestrator,
		Responder:    response.NewResponder(generator, zlog),
		Sessions:     sessions,
	}

	// Query log database
	if cfg.PostgreSQL.Enabled {
		repo, err := repository.NewPostgresRepository(
			cfg.GetPostgreSQLDSN(),
			cfg.PostgreSQL.MaxConnections,
			cfg.PostgreSQL.MaxIdleConnections,
		)
		if err != nil {
			zlog.Warn("Query logging disabled, failed to connect to database", zap.Error(err))
		} else {
			defer repo.Close()
			if err := repo.Migrate(startupCtx); err != nil {
				zlog.Fatal("Failed to migrate query log schema", zap.Error(err))
			}
			components.Logs = repo
			zlog.Info("Connected to PostgreSQL query log")
		}
	}

	queryService := service.NewQueryService(
		components,
		cfg.Search.SpecificityLimit,
		cfg.Search.MaxResults,
		zlog,
	)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	if cfg.Memory.SessionTTL > 0 {
		go sessions.RunJanitor(janitorCtx, cfg.Memory.SessionTTL/4)
	}

	zlog.Info("Services initialized")

	// Initialize handlers
	queryHandler := handler.NewQueryHandler(queryService)
	sessionHandler := handler.NewSessionHandler(sessions)
	feedbackHandler := handler.NewFeedbackHandler(queryService)

	// Setup Gin router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = splitList(cfg.Server.AllowedOrigins)
	corsConfig.AllowMethods = splitList(cfg.Server.AllowedMethods)
	corsConfig.AllowHeaders = splitList(cfg.Server.AllowedHeaders)
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":     "healthy",
			"service":    "organization-finder",
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	// Version endpoint
	router.GET("/version", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	apiV1 := router.Group("/api/v1")
	{
		// Session endpoints
		apiV1.POST("/sessions", sessionHandler.Create)
		apiV1.GET("/sessions/:id/memory", sessionHandler.Memory)
		apiV1.DELETE("/sessions/:id/memory", sessionHandler.ClearMemory)

		// Query endpoints
		apiV1.POST("/query", queryHandler.Query)
		apiV1.POST("/query/stream", queryHandler.QueryStream) // Streaming query
		apiV1.GET("/queries/:id", queryHandler.Log)

		// Feedback endpoint
		apiV1.POST("/feedback", feedbackHandler.Submit)
	}

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}
	zlog.Info("Starting server", zap.String("address", addr))

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("Shutting down server")
	stopJanitor()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("Server shutdown failed", zap.Error(err))
	}

	// Flush pending query logs before the database closes
	queryService.Wait()
	zlog.Info("Server stopped")
}

// loadKeywords reads reference keywords from the configured file, or from the
// graph when no file is set. A nil result disables the specificity heuristic.
func loadKeywords(ctx context.Context, cfg *config.Config, executor *graph.FalkorExecutor, zlog *zap.Logger) *reference.Keywords {
	var (
		keywords *reference.Keywords
		err      error
		source   string
	)
	if cfg.Search.ReferenceFile != "" {
		keywords, err = reference.LoadFile(cfg.Search.ReferenceFile)
		source = cfg.Search.ReferenceFile
	} else {
		keywords, err = reference.LoadFromGraph(ctx, executor)
		source = "graph"
	}
	if err != nil {
		zlog.Warn("Reference keywords unavailable, specificity check disabled", zap.Error(err))
		return nil
	}

	times, addresses, services := keywords.Size()
	zlog.Info("Loaded reference keywords",
		zap.String("source", source),
		zap.Int("times", times),
		zap.Int("addresses", addresses),
		zap.Int("services", services),
	)
	return keywords
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
