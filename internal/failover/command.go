package failover

import (
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// CommandController drives the primary and secondary through operator-supplied
// shell commands (systemctl units, cloud CLI calls, promotion scripts). The
// commands run under the step timeout the orchestrator imposes.
type CommandController struct {
	stopCmd    string
	promoteCmd string
	logger     *zap.Logger
}

// NewCommandController creates a command-backed service controller.
func NewCommandController(stopCmd, promoteCmd string, logger *zap.Logger) *CommandController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandController{
		stopCmd:    stopCmd,
		promoteCmd: promoteCmd,
		logger:     logger,
	}
}

func (c *CommandController) StopPrimary(ctx context.Context) error {
	return runCommand(ctx, "stop_primary", c.stopCmd, c.logger)
}

func (c *CommandController) PromoteSecondary(ctx context.Context) error {
	return runCommand(ctx, "promote_secondary", c.promoteCmd, c.logger)
}

// CommandRouter switches traffic through an operator-supplied command
// (load-balancer API call, DNS update script).
type CommandRouter struct {
	routeCmd string
	logger   *zap.Logger
}

// NewCommandRouter creates a command-backed traffic router.
func NewCommandRouter(routeCmd string, logger *zap.Logger) *CommandRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandRouter{routeCmd: routeCmd, logger: logger}
}

func (r *CommandRouter) RouteToSecondary(ctx context.Context) error {
	return runCommand(ctx, "update_routing", r.routeCmd, r.logger)
}

func runCommand(ctx context.Context, name, command string, logger *zap.Logger) error {
	if command == "" {
		return fmt.Errorf("%s: no command configured", name)
	}

	logger.Info("running failover command",
		zap.String("step", name),
		zap.String("command", command))

	cmd := exec.CommandContext(ctx, "sh", "-c", command) // #nosec G204 - operator-supplied config
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (output: %s)", name, err, string(output))
	}

	logger.Debug("failover command succeeded",
		zap.String("step", name),
		zap.ByteString("output", output))
	return nil
}
