package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"TG_group_guardian/internal/api"
	"TG_group_guardian/internal/bot"
	"TG_group_guardian/internal/locale"
	"TG_group_guardian/internal/repository"
	"TG_group_guardian/internal/service"
	"TG_group_guardian/pkg/auth"
	"TG_group_guardian/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	err = logger.Initialize(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zapLogger := logger.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.New(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to initialize repository", zap.Error(err))
	}
	defer repo.Close()

	catalog, err := locale.Load()
	if err != nil {
		zapLogger.Fatal("Failed to load language catalog", zap.Error(err))
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		zapLogger.Fatal("Failed to initialize telegram bot", zap.Error(err))
	}

	transport := bot.NewTransport(botAPI, repo, catalog, cfg.Telegram.GroupChatID)

	memberService := service.NewMemberService(repo)
	invitationService := service.NewInvitationService(repo, repo, transport, cfg.Ranking.PageSize)
	rankingService := service.NewRankingService(repo, cfg.Ranking.PageSize)
	verificationService := service.NewVerificationService(
		repo, repo, invitationService, transport, service.NewCaptcha(),
		service.VerificationConfig{
			ChallengeTimeout: cfg.Verification.ChallengeTimeout(),
			MaxAttempts:      cfg.Verification.MaxChallengeAttempts,
		},
	)

	sweeper := service.NewSweeper(verificationService, cfg.Verification.SweepInterval())
	go sweeper.Run(ctx)

	b := bot.New(botAPI, verificationService, invitationService, rankingService, memberService, catalog, bot.Config{
		GroupChatID: cfg.Telegram.GroupChatID,
		AdminIDs:    cfg.Telegram.AdminIDs,
	})
	go b.Run(ctx)

	telegramAuth := auth.NewTelegramAuth(cfg.Telegram.BotToken, cfg.Telegram.DebugMode)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{http.MethodHead, http.MethodGet}
	corsConfig.AllowHeaders = []string{"*"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	a := router.Group("/api/v1")
	api.NewStatsRoutes(a, invitationService, rankingService, telegramAuth)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("Failed to shut down server", zap.Error(err))
		}
	}()

	zapLogger.Info("Starting server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zapLogger.Fatal("Failed to start server", zap.Error(err))
	}
}
