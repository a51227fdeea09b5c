package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dyluth/coordinator/internal/config"
	"github.com/dyluth/coordinator/internal/printer"
	"github.com/dyluth/coordinator/internal/resolver"
	"github.com/dyluth/coordinator/pkg/client"
	"github.com/dyluth/coordinator/pkg/coordination"
)

const dialTimeout = 5 * time.Second

// loadConfig reads --config (or ./coordinator.yml) and applies the
// environment on top.
func loadConfig() (*config.CoordinatorConfig, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"invalid configuration",
			err.Error(),
			map[string]string{"Config": configFileName()},
			[]string{"Fix the file, or remove it to use the defaults"},
		)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, printer.Error(
			"invalid environment",
			err.Error(),
			[]string{"Check HOST, PORT, COORDINATOR_SESSION_ID and REDIS_URL"},
		)
	}
	return cfg, nil
}

func configFileName() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath
}

// resolveURL picks the hub URL: --url, then the configured address.
func resolveURL() (string, error) {
	if hubURL != "" {
		return hubURL, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.URL(), nil
}

// connect dials the hub, rendering a friendly error if it is not running.
func connect(ctx context.Context) (*client.Client, error) {
	url, err := resolveURL()
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	c, err := client.Dial(dialCtx, url)
	if err != nil {
		return nil, printer.HubUnreachable(url, err)
	}
	return c, nil
}

// requestFailed renders an error returned by the hub.
func requestFailed(what string, err error) error {
	return printer.Error(
		fmt.Sprintf("failed to %s", what),
		err.Error(),
		nil,
	)
}

// resolveAgent expands an agent ID prefix against the current roster.
// Empty stays empty.
func resolveAgent(ctx context.Context, c *client.Client, value string) (string, error) {
	if value == "" {
		return "", nil
	}

	agents, err := c.ListAgents(ctx)
	if err != nil {
		return "", requestFailed("list agents", err)
	}

	id, err := resolver.Resolve(value, resolver.AgentIDs(agents))
	if err == nil {
		return id, nil
	}

	var ambiguous *resolver.AmbiguousError
	if errors.As(err, &ambiguous) {
		return "", printer.Error(
			fmt.Sprintf("ambiguous agent ID '%s'", value),
			resolver.FormatAmbiguousError(ambiguous),
			nil,
		)
	}

	var notFound *resolver.NotFoundError
	if errors.As(err, &notFound) && coordination.IsValidID(value) {
		// A departed agent can still own entries and questions.
		return value, nil
	}

	return "", printer.Error(
		fmt.Sprintf("agent '%s' not found", value),
		err.Error(),
		[]string{"List connected agents:\n  coordinator agents"},
	)
}
