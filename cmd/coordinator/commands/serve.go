package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/coordinator/internal/config"
	"github.com/dyluth/coordinator/internal/mirror"
	"github.com/dyluth/coordinator/internal/printer"
	"github.com/dyluth/coordinator/internal/router"
	"github.com/dyluth/coordinator/internal/server"
	"github.com/dyluth/coordinator/internal/session"
	"github.com/spf13/cobra"
)

var (
	serveHost              string
	servePort              int
	serveSessionID         string
	serveRedisURL          string
	serveLeaveOnDisconnect bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordination hub",
	Long: `Run the coordination hub in the foreground.

The hub holds one session in memory. Agents connect over WebSocket, either
directly or through "coordinator mcp". Stop it with Ctrl+C; connected
clients are told the server is going away.

Settings are read from coordinator.yml, then HOST, PORT,
COORDINATOR_SESSION_ID and REDIS_URL, then flags.

With a Redis URL every roster, context and question change is also
published on Redis Pub/Sub for "coordinator watch --redis".

Examples:
  # Defaults: ws://localhost:3030
  coordinator serve

  # Listen on all interfaces with a fixed session
  coordinator serve --host 0.0.0.0 --session-id 7c9e6679-7425-40de-944b-e07fc1f90ae7

  # Mirror events to Redis
  coordinator serve --redis-url redis://localhost:6379`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Interface to listen on (default localhost)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default 3030)")
	serveCmd.Flags().StringVar(&serveSessionID, "session-id", "", "Session UUID (generated if omitted)")
	serveCmd.Flags().StringVar(&serveRedisURL, "redis-url", "", "Publish session events to this Redis")
	serveCmd.Flags().BoolVar(&serveLeaveOnDisconnect, "leave-on-disconnect", false, "Remove an agent when its connection drops")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return printer.Error("invalid flags", err.Error(), nil)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var storeOpts []session.Option
	if id := cfg.SessionID(); id != "" {
		storeOpts = append(storeOpts, session.WithSessionID(id))
	}
	store := session.New(storeOpts...)
	r := router.New(store, router.WithLeaveOnDisconnect(cfg.Server.LeaveOnDisconnect))

	serverOpts := []server.Option{
		server.WithKeepalive(cfg.Server.PingInterval, cfg.Server.PongWait),
		server.WithSendBuffer(cfg.Server.SendBuffer),
	}

	if cfg.Redis != nil {
		pub, closeRedis, err := startMirror(ctx, cfg, store)
		if err != nil {
			return err
		}
		defer closeRedis()
		serverOpts = append(serverOpts, server.WithRedis(pub))
	}

	srv := server.New(r, serverOpts...)
	log.Printf("[Coordinator] Session %s listening on %s", store.SessionID(), cfg.URL())

	if err := srv.ListenAndServe(ctx, cfg.Addr()); err != nil {
		return printer.ErrorWithContext(
			"server failed",
			err.Error(),
			map[string]string{"Address": cfg.Addr()},
			[]string{
				"Check nothing else is listening on the port",
				"Pick another port:\n  coordinator serve --port 3031",
			},
		)
	}

	log.Printf("[Coordinator] Stopped")
	return nil
}

// applyServeFlags lets explicitly set flags win over file and environment.
func applyServeFlags(cmd *cobra.Command, cfg *config.CoordinatorConfig) error {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = serveHost
	}
	if flags.Changed("port") {
		cfg.Server.Port = servePort
	}
	if flags.Changed("session-id") {
		cfg.Session = &config.SessionConfig{ID: serveSessionID}
	}
	if flags.Changed("redis-url") {
		if cfg.Redis == nil {
			cfg.Redis = &config.RedisConfig{}
		}
		cfg.Redis.URL = serveRedisURL
	}
	if flags.Changed("leave-on-disconnect") {
		cfg.Server.LeaveOnDisconnect = serveLeaveOnDisconnect
	}
	return cfg.Validate()
}

// startMirror connects to Redis and starts republishing store events. The
// returned func stops the mirror and closes the connection.
func startMirror(ctx context.Context, cfg *config.CoordinatorConfig, store *session.Store) (*mirror.Publisher, func(), error) {
	rdb, err := mirror.NewClient(cfg.Redis.URL)
	if err != nil {
		return nil, nil, printer.Error("invalid Redis URL", err.Error(), nil)
	}

	printer.Step("Connecting to Redis at %s...\n", cfg.Redis.URL)
	pub := mirror.NewPublisher(rdb, cfg.Redis.ChannelPrefix, store, mirror.WithQueueSize(cfg.Redis.QueueSize))
	if err := pub.Ping(ctx); err != nil {
		rdb.Close()
		return nil, nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", cfg.Redis.URL),
			map[string]string{"Error": err.Error()},
			[]string{"Start Redis, or run without --redis-url"},
		)
	}

	pub.Attach()
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pub.Run(runCtx)
	}()
	printer.Success("Mirroring events to Redis (prefix %q)\n", cfg.Redis.ChannelPrefix)

	return pub, func() {
		pub.Detach()
		cancel()
		<-done
		rdb.Close()
	}, nil
}
