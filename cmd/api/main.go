package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"

	"akwaba.app/internal/audit"
	"akwaba.app/internal/auth"
	"akwaba.app/internal/capture"
	"akwaba.app/internal/config"
	"akwaba.app/internal/events"
	"akwaba.app/internal/httpapi"
	"akwaba.app/internal/jobs"
	"akwaba.app/internal/kyc"
	"akwaba.app/internal/obs"
	"akwaba.app/internal/sealer"
	"akwaba.app/internal/store/pg"
)

func main() {
	// .env is optional; real environment wins.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.SetBuildInfo(cfg.Version, cfg.Commit)

	var (
		store kyc.Store
		probe httpapi.ReadyProbe
		pgs   *pg.Store
	)
	if cfg.PGDSN != "" {
		s, err := sealer.New(cfg.SealKey)
		if err != nil {
			log.Fatalf("seal key: %v", err)
		}
		pgs, err = pg.Open(cfg.PGDSN, s)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgs
		probe = httpapi.ReadyProbe{DB: pgs.DB()}
	} else {
		obs.Warn("AKWABA_PG_DSN not set, using in-memory store", nil)
		store = kyc.NewInMemory()
	}

	opts := []kyc.ServiceOption{kyc.WithNotifier(audit.CaseLogger{})}
	var publisher *events.Publisher
	if cfg.AMQPURL != "" {
		publisher, err = events.Dial(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("amqp: %v", err)
		}
		opts = append(opts, kyc.WithNotifier(publisher))
	}
	svc, err := kyc.NewService(store, opts...)
	if err != nil {
		log.Fatalf("kyc service: %v", err)
	}

	issuer, err := auth.NewIssuer(cfg.AuthSecret)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	apiOpts := httpapi.Options{
		Version:      cfg.Version,
		DevTokens:    cfg.DevTokens,
		TokenTTL:     cfg.TokenTTL,
		RateBurst:    cfg.RateBurst,
		RatePerSec:   cfg.RatePerSec,
		CORSOrigins:  cfg.AllowedOrigins(),
		MaxBodyBytes: cfg.MaxBodyBytes,
	}
	if cfg.S3Bucket != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		uploads, err := capture.NewS3(ctx, capture.Options{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			PublicBaseURL: cfg.S3PublicBaseURL,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			TTL:           cfg.UploadTTL,
		})
		cancel()
		if err != nil {
			log.Fatalf("s3: %v", err)
		}
		apiOpts.Uploads = uploads
	}

	api, err := httpapi.New(svc, issuer, probe, apiOpts)
	if err != nil {
		log.Fatalf("httpapi: %v", err)
	}

	scheduler := jobs.NewScheduler(svc)
	if err := scheduler.Start(cfg.BacklogSchedule); err != nil {
		log.Fatalf("jobs: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	health := httpapi.NewGRPCServer(probe)
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go health.Watch(ctx, 10*time.Second)

	go func() {
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatalf("grpc serve: %v", err)
		}
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	obs.Info("akwaba kyc api started", map[string]any{
		"version": cfg.Version,
		"http":    cfg.HTTPAddr,
		"grpc":    cfg.GRPCAddr,
	})

	<-ctx.Done()
	obs.Info("shutting down", nil)
	health.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	<-scheduler.Stop().Done()
	if publisher != nil {
		_ = publisher.Close()
	}
	if pgs != nil {
		_ = pgs.Close()
	}
	obs.Info("stopped", nil)
}
