package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/postgres"
	pgmigrations "quiz-attempt-service/internal/infra/postgres/migrations"
	infraredis "quiz-attempt-service/internal/infra/redis"
)

func TestAttemptLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, pgURL)
	defer db.Close()
	runMigrations(t, ctx, db)
	seedQuiz(t, ctx, db, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	seedSession(t, ctx, redisClient, "tok-alice", domain.Session{
		ID:        "sess-alice",
		UserID:    "alice",
		UserName:  "Alice",
		ExpiresAt: time.Now().Add(time.Hour),
	})

	catalog := postgres.NewCatalog(pool)
	store := postgres.NewAttemptStore(db)
	sessions := infraredis.NewSessionResolver(redisClient)

	attempts := app.NewAttemptService(sessions, catalog, store)
	leaderboard := app.NewLeaderboard(store)
	standings := infraredis.NewStandingsCache(redisClient, leaderboard, time.Minute)
	attempts.AddCompletionListener(standings)
	analytics := app.NewAnalytics(store, catalog)

	// Start, and resume idempotently.
	attempt, quiz, err := attempts.StartAttempt(ctx, "tok-alice", "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(quiz.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(quiz.Questions))
	}
	resumed, _, err := attempts.StartAttempt(ctx, "tok-alice", "quiz-1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.ID != attempt.ID {
		t.Fatalf("expected resume of %s, got %s", attempt.ID, resumed.ID)
	}

	// Save progress twice; the second save replaces the first.
	if _, err := attempts.SaveProgress(ctx, attempt.ID, domain.ProgressUpdate{
		CurrentQuestionIndex: 0,
		Answers:              []domain.AnswerSelection{{QuestionID: "q1", OptionIDs: []string{"b"}}},
	}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if _, err := attempts.SaveProgress(ctx, attempt.ID, domain.ProgressUpdate{
		CurrentQuestionIndex: 1,
		Answers: []domain.AnswerSelection{
			{QuestionID: "q1", OptionIDs: []string{"a"}},
			{QuestionID: "q2", OptionIDs: []string{"x"}},
		},
	}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	// Submit and verify the grade persisted.
	result, err := attempts.SubmitQuiz(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 75 || !result.Passed || result.CorrectAnswers != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if _, err := attempts.SubmitQuiz(ctx, attempt.ID); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}

	results, err := attempts.GetResults(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if results.Score != 75 || len(results.Questions) != 2 {
		t.Fatalf("unexpected results: %+v", results)
	}

	// Leaderboard through the cache, twice: miss then hit, same answer.
	for i := 0; i < 2; i++ {
		entries, err := standings.QuizStandings(ctx, "quiz-1", 10)
		if err != nil {
			t.Fatalf("standings %d: %v", i, err)
		}
		if len(entries) != 1 || entries[0].Score != 75 || entries[0].UserName != "Alice" {
			t.Fatalf("standings %d: unexpected entries %+v", i, entries)
		}
	}

	history, err := attempts.GetHistory(ctx, "tok-alice")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Status != domain.StatusCompleted || history[0].TotalQuestions != 2 {
		t.Fatalf("unexpected history: %+v", history)
	}

	stats, err := analytics.QuizAnalytics(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if stats.CompletedAttempts != 1 || stats.CompletionRate != 100 || stats.AverageScore != 75 {
		t.Fatalf("unexpected analytics: %+v", stats)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func openBun(t *testing.T, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func runMigrations(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, db *bun.DB, quiz domain.Quiz) {
	t.Helper()
	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data, active) VALUES (?, ?::jsonb, TRUE) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func seedSession(t *testing.T, ctx context.Context, client *goredis.Client, token string, session domain.Session) {
	t.Helper()
	data, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	if err := client.Set(ctx, "session:"+token, data, time.Hour).Err(); err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:           "quiz-1",
		Title:        "Networking Basics",
		PassingScore: 70,
		TimeLimitSec: 600,
		Active:       true,
		Questions: []domain.Question{
			{
				ID:     "q1",
				Type:   domain.QuestionSingle,
				Prompt: "Which port does HTTPS use by default?",
				Order:  1,
				Options: []domain.Option{
					{ID: "a", Text: "443", Order: 1, Correct: true},
					{ID: "b", Text: "80", Order: 2},
					{ID: "c", Text: "22", Order: 3},
				},
			},
			{
				ID:     "q2",
				Type:   domain.QuestionMultiple,
				Prompt: "Which of these are transport protocols?",
				Order:  2,
				Options: []domain.Option{
					{ID: "x", Text: "TCP", Order: 1, Correct: true},
					{ID: "y", Text: "UDP", Order: 2, Correct: true},
					{ID: "z", Text: "ARP", Order: 3},
				},
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
