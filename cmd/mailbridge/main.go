package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailbridge/internal/admin"
	"mailbridge/internal/api"
	"mailbridge/internal/botworker"
	"mailbridge/internal/config"
	"mailbridge/internal/dnscheck"
	"mailbridge/internal/dnsprovider"
	"mailbridge/internal/ingest"
	"mailbridge/internal/notify"
	"mailbridge/internal/redisstore"
	"mailbridge/internal/routing"
	"mailbridge/internal/smtpserver"

	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load configuration: %v", err)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	store, err := redisstore.New(cfg.RedisURL, cfg.TTLSeconds, log)
	if err != nil {
		log.Fatalf("connect to Redis: %v", err)
	}
	defer store.Close()

	resolver := dnscheck.NewResolver(dnscheck.ResolverConfig{
		Nameservers: cfg.DNSNameservers,
		Timeout:     time.Duration(cfg.DNSTimeoutSecs) * time.Second,
	})
	validator := dnscheck.NewValidator(resolver, log)

	var (
		providerClient *dnsprovider.Client
		manager        *dnsprovider.Manager
		provisioner    ingest.Provisioner
	)
	if cfg.CloudflareToken != "" && cfg.CloudflareZoneID != "" && cfg.CloudflareDomain != "" {
		providerClient = dnsprovider.NewClient(dnsprovider.ClientConfig{
			Token:  cfg.CloudflareToken,
			ZoneID: cfg.CloudflareZoneID,
			Domain: cfg.CloudflareDomain,
		})
		manager = dnsprovider.NewManager(providerClient, cfg.ManagedSuffix, log)
		provisioner = manager
	} else {
		log.Warn("DNS provider not configured, automatic record provisioning disabled")
	}

	messenger, err := notify.NewTelegram(cfg.TelegramToken, cfg.OwnerChatID, log)
	if err != nil {
		log.Fatalf("connect to Telegram: %v", err)
	}

	routes := routing.NewConfig()
	pipeline := ingest.New(store, validator, routes, messenger, provisioner, log)

	smtpSrv := smtpserver.New(cfg, pipeline, log)
	go func() {
		log.WithField("addr", cfg.SMTPAddr()).Info("SMTP server starting")
		if err := smtpSrv.ListenAndServe(); err != nil {
			log.WithError(err).Error("SMTP server stopped")
		}
	}()

	botCtx, stopBot := context.WithCancel(context.Background())
	worker := botworker.New(messenger.Bot(), messenger.OwnerChatID(), store, routes,
		validator, manager, providerClient, pipeline, log)
	go worker.Start(botCtx)

	auth, err := admin.NewAuthService(cfg.AdminPassword, cfg.JWTSecret)
	if err != nil {
		log.Fatalf("initialize admin auth: %v", err)
	}
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.New(store, routes, auth, log).Router(),
	}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP API starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP API stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}
	stopBot()
	if err := smtpSrv.Close(); err != nil {
		log.WithError(err).Warn("SMTP close failed")
	}
	pipeline.Drain(shutdownTimeout)
	log.Info("stopped")
}
