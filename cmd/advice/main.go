// CLI tool that runs one advice generation for a user and prints the result
// as JSON. It talks to the same database and provider as the API server.
// Usage: go run ./cmd/advice -user 1 [-long] [-strict] [-fresh] [-min-fallback-ms 0]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"lg/nutrition-advice-api/internal/advice"
	"lg/nutrition-advice-api/internal/llm"
	"lg/nutrition-advice-api/internal/platform/envutil"
	"lg/nutrition-advice-api/internal/platform/logger"
	"lg/nutrition-advice-api/internal/store/postgres"
)

func main() {
	userID := flag.Int("user", 0, "user id")
	long := flag.Bool("long", false, "start on the long model")
	strict := flag.Bool("strict", false, "strict mode: doubled timeouts, no wait opt-out")
	fresh := flag.Bool("fresh", false, "drop the cached plan first")
	ensureFull := flag.Bool("ensure-full", false, "retry once if the answer looks truncated")
	minFallbackMs := flag.Int("min-fallback-ms", 0, "minimum wait before a local plan is returned")
	flag.Parse()

	if *userID <= 0 {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}
	_ = godotenv.Load()

	log, err := logger.New(envutil.String("APP_MODE", "dev"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	db, err := postgres.Open(ctx, os.Getenv("DB_URL"), log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	cfg := advice.ConfigFromEnv()

	svc := advice.NewService(advice.Deps{
		Profiles:  db,
		Foods:     db,
		Cache:     db,
		Generator: llm.New(os.Getenv("GEMINI_API_KEY"), envutil.String("GEMINI_BASE_URL", llm.DefaultBaseURL), log),
		Config:    cfg,
		Log:       log,
	})
	defer svc.Close()

	opts := cfg.Resolve(advice.Flags{
		Invalidate:    advice.Flag(*fresh),
		ForceLong:     advice.Flag(*long),
		Strict:        advice.Flag(*strict),
		EnsureFull:    advice.Flag(*ensureFull),
		MinFallbackMs: minFallbackMs,
	})
	resp, err := svc.Get(ctx, *userID, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Generation failed: %v\n", err)
		os.Exit(1)
	}
	if resp.Status != advice.StatusReady {
		fmt.Fprintln(os.Stderr, "Another generation for this user is running; try again shortly.")
		os.Exit(3)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp.Result); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing result: %v\n", err)
		os.Exit(1)
	}
}
