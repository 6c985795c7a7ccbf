package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"poll-engine/internal/config"
	"poll-engine/internal/domain/poll"
	"poll-engine/internal/domain/vote"
	api "poll-engine/internal/http"
	"poll-engine/internal/metrics"
	"poll-engine/internal/platform/clock"
	"poll-engine/internal/platform/database"
	jwtpkg "poll-engine/internal/platform/jwt"
	"poll-engine/internal/repository/postgres"
	"poll-engine/internal/worker"
)

// @title           Post Poll Engine API
// @version         1.0
// @description     Poll voting and tallying for blog posts
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
func main() {
	cfg := config.Load()

	db, err := database.NewPostgres(cfg.DB_DSN)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer db.Close()

	if err := postgres.CreateSchema(db); err != nil {
		log.Fatalf("schema error: %v", err)
	}

	metrics.Register()

	postRepo := postgres.NewPostRepo(db)
	userRepo := postgres.NewUserRepo(db)
	pollRepo := postgres.NewPollRepo(db)
	voteRepo := postgres.NewVoteRepo(db)

	clk := clock.Real()
	pollSvc := poll.NewService(pollRepo, postRepo, clk)
	voteSvc := vote.NewService(voteRepo, pollSvc, postRepo, userRepo, clk, vote.PolicyDefaults{
		MaxChanges:          cfg.DefaultMaxChanges,
		ChangeWindowMinutes: cfg.DefaultChangeWindowMinutes,
	})

	jwtMgr := jwtpkg.NewManager(cfg.JWTSecret, "")

	voteCh := make(chan worker.VoteEvent, 100)
	reconciler := worker.NewReconciler(voteCh, cfg.ReconcileInterval, pollSvc, voteRepo, nil)

	router := api.NewRouter(pollSvc, voteSvc, jwtMgr, voteCh, db)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reconciler.Run(ctx)

	go func() {
		log.Printf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	<-stop
	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server shutdown error: %v", err)
	}

	log.Println("server stopped")
}
