package main

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	wsClient "github.com/openmuni/pulse-backend/internal/adapters/secondary/websocket"
	"github.com/openmuni/pulse-backend/internal/config"
	"github.com/openmuni/pulse-backend/internal/core/domain"
	"github.com/openmuni/pulse-backend/internal/core/services"
	"github.com/openmuni/pulse-backend/internal/infrastructure/logging"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if cfg.Client.Token == "" {
		slog.Error("GATEWAY_TOKEN is required")
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stderr,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	endpoint, err := buildEndpoint(cfg.Client.GatewayURL, cfg.Client.Token)
	if err != nil {
		logger.Error("invalid gateway URL", "error", err)
		os.Exit(1)
	}

	// 3. Wire the notification center
	transport := wsClient.NewConnManager(wsClient.Config{
		URL:         endpoint,
		BackoffBase: cfg.Client.BackoffBase,
		BackoffCap:  cfg.Client.BackoffCap,
		DialTimeout: cfg.Client.DialTimeout,
	}, logger)

	stamper := services.NewStamper()
	decoder := services.NewDecoder(stamper, logger)
	store := services.NewNotificationStore(cfg.Client.StoreBound)
	center := services.NewNotificationCenter(transport, decoder, store, logger)

	states, cancel := center.Subscribe()
	defer cancel()

	center.Start()
	logger.Info("watching for notifications", "gateway", cfg.Client.GatewayURL)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var lastSeen int64
	connected := false

	for {
		select {
		case state, ok := <-states:
			if !ok {
				return
			}

			if state.IsConnected != connected {
				connected = state.IsConnected
				if connected {
					fmt.Println("-- live --")
				} else {
					fmt.Println("-- offline, retrying --")
				}
			}

			for _, n := range state.Notifications {
				if n.Timestamp <= lastSeen {
					continue
				}
				lastSeen = n.Timestamp
				if n.Type == domain.EventAlert {
					fmt.Printf("[%s/%s] %s: %s (unread: %d)\n",
						n.Type, n.Severity, n.Title, n.Message, state.UnreadCount)
				} else {
					fmt.Printf("[%s] %s: %s (unread: %d)\n",
						n.Type, n.Title, n.Message, state.UnreadCount)
				}
			}

		case sig := <-quit:
			logger.Info("shutdown signal received", "signal", sig.String())
			center.Stop()
			return
		}
	}
}

// buildEndpoint appends the auth token to the gateway websocket URL.
func buildEndpoint(gatewayURL, token string) (string, error) {
	u, err := url.Parse(gatewayURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
