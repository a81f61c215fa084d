package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/media-dl-go/api"
	"github.com/yourusername/media-dl-go/api/handlers"
	"github.com/yourusername/media-dl-go/internal/app"
	"github.com/yourusername/media-dl-go/internal/domain"
	"github.com/yourusername/media-dl-go/internal/infrastructure"
	"github.com/yourusername/media-dl-go/pkg/logger"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	daemon     = flag.Bool("daemon", false, "Run the server in the background")
)

func main() {
	flag.Parse()

	if *daemon {
		startAsDaemon()
		return
	}

	runServer()
}

// startAsDaemon re-executes the binary detached from the terminal
func startAsDaemon() {
	execPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	var args []string
	if *configPath != "" {
		args = append(args, "-config", *configPath)
	}
	cmd := exec.Command(execPath, args...)
	cmd.Dir = cwd
	cmd.Env = os.Environ()
	detach(cmd)

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", os.DevNull, err)
		os.Exit(1)
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server started as daemon (PID: %d)\n", cmd.Process.Pid)
	os.Exit(0)
}

func runServer() {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Category logs: job lifecycle and errors
	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Logging.LogsDir,
	})
	if err != nil {
		log.Fatal("Failed to initialize category logs", zap.Error(err))
	}
	defer multiLog.Close()

	log.Info("Starting media download server",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("response_mode", config.Server.ResponseMode),
		zap.String("root_dir", config.Download.RootDir),
		zap.Duration("retention", config.Artifacts.Retention))

	processLog := infrastructure.NewProcessLog(config.Logging.LogsDir)

	workspaces, err := infrastructure.NewWorkspaceManager(config.Download.RootDir, log)
	if err != nil {
		log.Fatal("Failed to initialize workspaces", zap.Error(err))
	}
	if err := os.MkdirAll(config.Download.RootDir, 0755); err != nil {
		log.Fatal("Failed to create download root", zap.String("dir", config.Download.RootDir), zap.Error(err))
	}

	streamClient, err := infrastructure.NewHTTPClient(config.Download.FetchTimeout, config.Download.ProxyAddr)
	if err != nil {
		log.Fatal("Failed to initialize HTTP client", zap.Error(err))
	}
	streamer := infrastructure.NewHTTPStreamer(streamClient, config.Download.UserAgent, config.Download.FetchTimeout, log)

	fetcher := app.NewFetcher(buildResolvers(config, processLog, log), streamer, log)
	transcoder := infrastructure.NewFFmpegTranscoder(&config.Transcoder, processLog, log)

	registry, err := app.NewArtifactRegistry(workspaces, config.Artifacts.Retention, log)
	if err != nil {
		log.Fatal("Failed to initialize artifact registry", zap.Error(err))
	}

	orchestrator, err := app.NewOrchestrator(fetcher, transcoder, workspaces, registry, config, log, multiLog)
	if err != nil {
		log.Fatal("Failed to initialize orchestrator", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reaper := app.NewReaper(registry, workspaces, &config.Artifacts, multiLog, log)
	if err := reaper.Start(ctx); err != nil {
		log.Fatal("Failed to start reaper", zap.Error(err))
	}

	router := api.SetupRouter(orchestrator, registry, reaper, &config.Server, log)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Abort jobs still running after the grace period
	cancel()

	if err := reaper.Stop(); err != nil {
		log.Debug("Reaper already stopped", zap.Error(err))
	}
	if n := registry.Purge(); n > 0 {
		log.Info("Discarded unclaimed artifacts", zap.Int("count", n))
	}

	log.Info("Server exited")
}

// buildResolvers lists the resolvers per platform, primary first
func buildResolvers(config *domain.Config, processLog *infrastructure.ProcessLog, log *zap.Logger) map[domain.Platform][]domain.Resolver {
	ytdlp := infrastructure.NewYTDLPResolver(&config.YouTube, config.Download.UserAgent, config.Download.ProxyAddr, processLog, log)

	var instagram []domain.Resolver
	if config.Instagram.ResolverEndpoint != "" {
		client, err := infrastructure.NewHTTPClient(config.Instagram.ResolverTimeout, config.Download.ProxyAddr)
		if err != nil {
			log.Fatal("Failed to initialize resolver client", zap.Error(err))
		}
		instagram = append(instagram, infrastructure.NewInstagramAPIResolver(&config.Instagram, client, config.Download.UserAgent, log))
	}
	if config.Instagram.YTDLPFallback || len(instagram) == 0 {
		instagram = append(instagram, ytdlp)
	}

	return map[domain.Platform][]domain.Resolver{
		domain.PlatformYouTube:   {ytdlp},
		domain.PlatformInstagram: instagram,
	}
}
