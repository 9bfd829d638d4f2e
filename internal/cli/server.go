package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	infrapg "quiz-attempt-service/internal/infra/postgres"
	infraredis "quiz-attempt-service/internal/infra/redis"
	transport "quiz-attempt-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz attempt server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var catalog app.Catalog
	var store app.AttemptStore
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		catalog = infrapg.NewCatalog(pool)

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()
		store = infrapg.NewAttemptStore(db)
	} else {
		catalog = memory.NewCatalog(sampleQuizzes())
		store = memory.NewAttemptStore()
	}

	var sessions app.SessionResolver
	if redisClient != nil {
		sessions = infraredis.NewSessionResolver(redisClient)
	} else {
		sessions = memory.NewSessionResolver(sampleSessions())
	}

	attempts := app.NewAttemptService(sessions, catalog, store)
	leaderboard := app.NewLeaderboard(store)
	analytics := app.NewAnalytics(store, catalog)

	var quizStandings infraredis.QuizRanker = leaderboard
	if redisClient != nil {
		ttl := config.TTLDuration(cfg.Leaderboard.TTL, 30*time.Second)
		cache := infraredis.NewStandingsCache(redisClient, leaderboard, ttl)
		attempts.AddCompletionListener(cache)
		quizStandings = cache
	}

	feedLimit := cfg.Leaderboard.FeedLimit
	if feedLimit <= 0 {
		feedLimit = 10
	}
	feed := app.NewStandingsFeed(leaderboard, feedLimit)
	attempts.AddCompletionListener(feed)

	handler := transport.NewHandler(attempts, leaderboard, quizStandings, analytics)
	wsHandler := transport.NewWSHandler(feed)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("/ws/leaderboard", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz attempt service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds the in-memory catalog for infrastructure-free demos;
// production reads the authoring subsystem's quizzes table instead.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:           "quiz-1",
			Title:        "Arithmetic Basics",
			PassingScore: 70,
			TimeLimitSec: 300,
			Active:       true,
			Questions: []domain.Question{
				{
					ID:     "q1",
					Type:   domain.QuestionSingle,
					Prompt: "What is 2 + 2?",
					Order:  1,
					Options: []domain.Option{
						{ID: "o1", Text: "3", Order: 1},
						{ID: "o2", Text: "4", Order: 2, Correct: true},
						{ID: "o3", Text: "5", Order: 3},
					},
				},
				{
					ID:     "q2",
					Type:   domain.QuestionMultiple,
					Prompt: "Select the even numbers",
					Order:  2,
					Options: []domain.Option{
						{ID: "o4", Text: "2", Order: 1, Correct: true},
						{ID: "o5", Text: "3", Order: 2},
						{ID: "o6", Text: "4", Order: 3, Correct: true},
					},
				},
			},
		},
	}
}

func sampleSessions() map[string]domain.Session {
	return map[string]domain.Session{
		"demo-token": {
			ID:        "session-demo",
			UserID:    "user-demo",
			UserName:  "Demo User",
			ExpiresAt: time.Now().Add(24 * time.Hour),
		},
		"guest-token": {
			ID:        "session-guest",
			ExpiresAt: time.Now().Add(24 * time.Hour),
		},
	}
}
