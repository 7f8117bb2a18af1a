// Package router decides which execution backend handles a job.
package router

import (
	"log/slog"

	"github.com/sidekick-bot/sidekick/internal/logging"
	"github.com/sidekick-bot/sidekick/internal/mention"
)

// Mode is the configured execution mode.
type Mode string

const (
	// ModeBackgroundAgent forces the remote agent service for every job.
	ModeBackgroundAgent Mode = "background-agent"
	// ModeLocalExecution forces in-process execution for every job.
	ModeLocalExecution Mode = "local-execution"
	// ModeAuto routes complex commands to the agent service when it is
	// available and everything else locally.
	ModeAuto Mode = "auto"
)

// Backend identifies an execution backend.
type Backend string

const (
	BackendAgent Backend = "background-agent"
	BackendLocal Backend = "local"
)

// complexCommands benefit from execution isolation and are routed to the
// agent service in auto mode.
var complexCommands = map[mention.Command]bool{
	mention.CommandAdd:      true,
	mention.CommandRefactor: true,
	mention.CommandTest:     true,
	mention.CommandSecurity: true,
}

// Router picks a backend per job. Agent availability is probed once at
// startup; a negative probe disables agent routing for the process lifetime.
type Router struct {
	mode           Mode
	agentAvailable bool
	log            *slog.Logger
}

// New creates a router for the given mode. agentAvailable is the result of
// the startup probe against the agent service.
func New(mode Mode, agentAvailable bool) *Router {
	if mode == "" {
		mode = ModeAuto
	}
	return &Router{
		mode:           mode,
		agentAvailable: agentAvailable,
		log:            logging.WithComponent("router"),
	}
}

// Route returns the backend for the given canonical command.
func (r *Router) Route(cmd mention.Command) Backend {
	switch r.mode {
	case ModeBackgroundAgent:
		return BackendAgent
	case ModeLocalExecution:
		return BackendLocal
	}

	if r.agentAvailable && complexCommands[cmd] {
		return BackendAgent
	}
	return BackendLocal
}

// AgentAvailable reports the startup probe result.
func (r *Router) AgentAvailable() bool {
	return r.agentAvailable
}
