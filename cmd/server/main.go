package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tokokasir/terminal/internal/config"
	"tokokasir/terminal/internal/domain"
	"tokokasir/terminal/internal/httpapi"
	"tokokasir/terminal/internal/kv"
	"tokokasir/terminal/internal/printing"
	"tokokasir/terminal/internal/scan"
	"tokokasir/terminal/internal/service"
	"tokokasir/terminal/internal/store"
	"tokokasir/terminal/internal/store/memory"
	pgstore "tokokasir/terminal/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("catalog: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("catalog: in-memory")
	}

	var kvstore kv.Store = kv.NewMemoryStore()
	switch {
	case cfg.ProfileDBPath != "":
		bs, err := kv.NewBadgerStore(cfg.ProfileDBPath)
		if err != nil {
			log.Fatalf("badger unavailable (%v) and PROFILE_DB_PATH is set; refusing to start without profile persistence", err)
		}
		kvstore = bs
		closers = append(closers, bs.Close)
		log.Println("profiles: badger")
	case cfg.RedisAddr != "":
		rs := kv.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rs.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), profiles held in memory", err)
		} else {
			kvstore = rs
			closers = append(closers, rs.Close)
			log.Println("profiles: redis")
		}
	default:
		log.Println("profiles: in-memory")
	}

	operator := domain.Operator{Branch: cfg.BranchID, Cashier: cfg.CashierID, Role: domain.RoleCashier}
	svc := service.New(repo, kvstore, printing.LogPrinter{}, service.Config{
		ProfileCount: cfg.ProfileCount,
		Operator:     operator,
		Scan: scan.Config{
			DecayWindow: time.Duration(cfg.ScanDecayMS) * time.Millisecond,
			MinLength:   cfg.ScanMinLength,
			Cooldown:    time.Duration(cfg.ScanCooldownMS) * time.Millisecond,
			Scope:       cfg.ScanScope,
			TargetID:    cfg.ScanTargetID,
		},
		CustomerLimit: cfg.CustomerSearchLimit,
	})
	if err := svc.RefreshCatalog(ctx); err != nil {
		log.Printf("initial catalog refresh failed (%v); terminal starts with an empty snapshot", err)
	}

	refreshCtx, refreshCancel := context.WithCancel(context.Background())
	defer refreshCancel()
	go svc.RunCatalogRefresh(refreshCtx, time.Duration(cfg.CatalogRefreshSeconds)*time.Second)

	api := httpapi.New(svc, []byte(cfg.TerminalSecret), operator, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("terminal listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	refreshCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	svc.Close()
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("terminal stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.TerminalSecret) < 32 {
		return fmt.Errorf("TERMINAL_SECRET must be set and at least 32 characters")
	}
	if err := validateSecretStrength(cfg.TerminalSecret); err != nil {
		return fmt.Errorf("TERMINAL_SECRET is too weak: %w", err)
	}
	return nil
}

// validateSecretStrength rejects secrets that are one repeated character or
// copied straight from the deployment examples.
func validateSecretStrength(secret string) error {
	known := map[string]bool{
		"00000000000000000000000000000000": true,
		"change-me-change-me-change-me-ok": true,
		"terminal-secret-terminal-secret!": true,
	}
	if known[secret] {
		return fmt.Errorf("example secret not allowed")
	}

	allSame := true
	for i := 1; i < len(secret); i++ {
		if secret[i] != secret[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("repeated-character secret not allowed")
	}

	return nil
}
