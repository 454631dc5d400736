// The taskgate-client binary exercises a running gateway: it creates a user,
// a project, and a task, then lists the tasks, printing every response.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/drblury/taskgate/internal/client"
	"github.com/drblury/taskgate/internal/config"
	"github.com/drblury/taskgate/internal/jsoncodec"
	"github.com/drblury/taskgate/internal/logging"
	"github.com/drblury/taskgate/internal/protocol"

	_ "github.com/drblury/taskgate/internal/transport/channel"
	_ "github.com/drblury/taskgate/internal/transport/kafka"
	_ "github.com/drblury/taskgate/internal/transport/nats"
	_ "github.com/drblury/taskgate/internal/transport/rabbitmq"
)

func main() {
	ctx := context.Background()
	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	logger := logging.NewSlogServiceLogger(baseLogger)

	conf, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", err, nil)
		os.Exit(1)
	}

	c, err := client.New(ctx, conf, logger, client.Dependencies{})
	if err != nil {
		logger.Error("Failed to connect", err, nil)
		os.Exit(1)
	}
	defer c.Close()

	calls := []struct {
		version string
		action  string
		data    map[string]any
	}{
		{"v1", "create_user", map[string]any{"name": "Ada Lovelace", "email": "ada@example.com"}},
		{"v1", "create_project", map[string]any{"name": "Engine", "description": "analytical engine"}},
		{"v2", "create_task", map[string]any{"project_id": 1, "title": "design gears", "priority": 3, "user_id": 1}},
		{"v2", "list_tasks", map[string]any{"project_id": 1}},
	}

	for _, call := range calls {
		resp, err := c.Call(ctx, call.version, call.action, call.data)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				logger.Error("Call timed out", err, logging.LogFields{"action": call.action})
			} else {
				logger.Error("Call failed", err, logging.LogFields{"action": call.action})
			}
			os.Exit(1)
		}
		printResponse(logger, call.version, call.action, resp)
	}
}

func printResponse(logger logging.ServiceLogger, version, action string, resp *protocol.Response) {
	encoded, err := jsoncodec.Marshal(resp.Data)
	if err != nil {
		encoded = []byte("<unencodable>")
	}

	if resp.Status == protocol.StatusOK {
		logger.Info("Call succeeded", logging.LogFields{
			"version": version,
			"action":  action,
			"data":    string(encoded),
		})
	} else {
		logger.Info("Call returned error", logging.LogFields{
			"version": version,
			"action":  action,
			"error":   resp.Error,
		})
	}
}
