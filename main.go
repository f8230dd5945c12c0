package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuroedu/kuro-backend/internal/backup"
	"github.com/kuroedu/kuro-backend/internal/config"
	"github.com/kuroedu/kuro-backend/internal/database"
	"github.com/kuroedu/kuro-backend/internal/mail"
	"github.com/kuroedu/kuro-backend/internal/notify"
	"github.com/kuroedu/kuro-backend/internal/reminder"
	"github.com/kuroedu/kuro-backend/internal/server"
	"github.com/kuroedu/kuro-backend/internal/signature"
	"github.com/kuroedu/kuro-backend/internal/store"
	"github.com/kuroedu/kuro-backend/internal/twilio"
	"github.com/kuroedu/kuro-backend/internal/workflow"
)

func main() {
	logger := log.New(os.Stdout, "[kuro] ", log.LstdFlags|log.Lshortfile)
	cfg := config.Load()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("database init failed: %v", err)
	}
	st := store.New(db)

	var mailer notify.Mailer
	if cfg.SMTP.Configured() {
		mailer = mail.New(cfg.SMTP)
	} else {
		logger.Printf("SMTP not configured; email channel disabled")
	}

	var messenger notify.Messenger
	if cfg.Twilio.Configured() {
		messenger = twilio.New(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken,
			cfg.Twilio.MessagingServiceSID, cfg.Twilio.WhatsAppFrom)
	} else {
		logger.Printf("Twilio not configured; SMS/WhatsApp channels disabled")
	}

	dispatcher := notify.New(mailer, messenger, logger)
	sweeper := reminder.NewSweeper(st, dispatcher, cfg.ReminderWindowDays, cfg.LocalTimezone, logger)

	backupService := backup.New(cfg.AWS, database.DefaultSQLitePath, logger)
	scheduler := reminder.NewScheduler(sweeper, backupService.Run, cfg.LocalTimezone, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatalf("scheduler start: %v", err)
	}

	// One sweep on boot so a restart never pushes a due reminder past its day.
	go func() {
		if _, err := sweeper.ProcessWindow(context.Background()); err != nil {
			logger.Printf("initial reminder sweep failed: %v", err)
		}
	}()

	srv := server.New(cfg, st, dispatcher, sweeper,
		signature.New(cfg.DocuSign), workflow.New(cfg.Trello), logger)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Router(),
	}

	go func() {
		logger.Printf("server starting on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	waitForShutdown(httpServer, scheduler, logger)
}

func waitForShutdown(httpServer *http.Server, scheduler *reminder.Scheduler, logger *log.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Printf("server shutdown error: %v", err)
	}
	scheduler.Stop()
}
