package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/savaki/jonbot/pkg/bedrock"
	appconfig "github.com/savaki/jonbot/pkg/config"
	"github.com/savaki/jonbot/pkg/handler"
	"github.com/savaki/jonbot/pkg/imagegen"
	"github.com/savaki/jonbot/pkg/reve"
	jslack "github.com/savaki/jonbot/pkg/slack"
	"github.com/savaki/jonbot/pkg/tenant"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Slack webhook server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()

	var awsCfg aws.Config
	if cfg.UsesAWS() {
		if awsCfg, err = loadAWSConfig(ctx, cfg.AWSRegion); err != nil {
			return err
		}
	}

	store, err := openStore(cfg, awsCfg)
	if err != nil {
		return err
	}

	resolver := tenant.NewResolver(store, cfg.SlackFallbackToken, cfg.StrictCredentials)
	platform := jslack.NewClient(resolver, cfg.SlackAPIURL, &http.Client{Timeout: cfg.HTTPTimeout})

	generator, err := newGenerator(cfg, awsCfg)
	if err != nil {
		return err
	}

	orchestrator := imagegen.NewOrchestrator(generator, platform)
	bot := handler.NewBot(store, platform, orchestrator)

	tasks := handler.NewTasks(context.Background())
	router := handler.NewRouter(bot.Registry(), cfg.SlackVerificationToken, tasks, cfg.RoutePrefix())

	mountOAuth(router, cfg, platform, store)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Println(color.GreenString("jonbot listening on %s%s (provider=%s, store=%s)",
		cfg.ListenAddr, cfg.RoutePrefix(), cfg.ImageProvider, cfg.ConfigStore))

	return handleGracefulShutdown(server, tasks, cfg.GenerationTimeout+cfg.HTTPTimeout)
}

// mountOAuth adds the installation callback when a client id and secret are
// configured. Without them the route is absent and answers 404.
func mountOAuth(router *handler.Router, cfg *appconfig.Config, installer handler.Installer, store tenant.Store) {
	if !cfg.OAuthConfigured() {
		log.Printf("SLACK_CLIENT_ID/SLACK_CLIENT_SECRET not set, /oauth/callback disabled")
		return
	}
	oauth := handler.NewOAuthHandler(installer, store, cfg.SlackClientID, cfg.SlackClientSecret, cfg.SlackRedirectURL)
	router.HandleFunc("/oauth/callback", oauth.ServeHTTP)
}

// newGenerator builds the image provider selected by IMAGE_PROVIDER
func newGenerator(cfg *appconfig.Config, awsCfg aws.Config) (imagegen.Generator, error) {
	switch cfg.ImageProvider {
	case appconfig.ProviderBedrock:
		return bedrock.NewClient(awsCfg, cfg.BedrockImageModelID, cfg.GenerationTimeout), nil
	case appconfig.ProviderReve:
		return reve.NewClient(cfg.ReveAPIURL, cfg.GenerationTimeout), nil
	default:
		return nil, fmt.Errorf("unknown image provider %q", cfg.ImageProvider)
	}
}

// handleGracefulShutdown serves until SIGINT or SIGTERM, then stops accepting
// requests and waits up to drain for in-flight background work.
func handleGracefulShutdown(server *http.Server, tasks *handler.Tasks, drain time.Duration) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("listen: %w", err)
	case <-stop:
	}

	log.Printf("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("ERROR: server shutdown: %v", err)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), drain)
	defer drainCancel()
	if err := tasks.Wait(drainCtx); err != nil {
		log.Printf("Warning: background tasks still running at exit: %v", err)
	}

	log.Printf("Server stopped")
	return nil
}
