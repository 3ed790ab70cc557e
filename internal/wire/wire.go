// Package wire provides dependency injection for the stagetrack application.
// Every command builds its own object graph from an explicit config path.
package wire

import (
	"fmt"
	"io"

	cliadapter "github.com/example/stagetrack/internal/adapters/cli"
	"github.com/example/stagetrack/internal/adapters/insightly"
	"github.com/example/stagetrack/internal/app"
	"github.com/example/stagetrack/internal/config"
	"github.com/example/stagetrack/internal/logger"
	"github.com/example/stagetrack/internal/ports/primary"
)

// Services holds the wired application for one command invocation.
type Services struct {
	Config   *config.Config
	Log      *logger.Logger
	Tracking primary.StageTrackingService
}

// NewServices loads configuration from configPath and wires the logger,
// the Insightly client and the tracking service.
func NewServices(configPath string) (*Services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Create the CRM adapter (secondary ports)
	crm := insightly.New(cfg, log.With("component", "insightly"))

	// Create services (primary ports implementation)
	tracking := app.NewStageTrackingService(crm, crm, crm, log, nil)

	return &Services{
		Config:   cfg,
		Log:      log,
		Tracking: tracking,
	}, nil
}

// Close flushes buffered log entries and releases the log file.
func (s *Services) Close() error {
	return s.Log.Close()
}

// TrackAdapterWithOutput returns a new TrackAdapter writing to the given output.
// This variant allows testing or alternate output destinations.
func (s *Services) TrackAdapterWithOutput(out io.Writer) *cliadapter.TrackAdapter {
	return cliadapter.NewTrackAdapter(s.Tracking, out)
}
