package app

import (
	"context"

	"github.com/chainsight-labs/chainsight/internal/app/events"
	auditsvc "github.com/chainsight-labs/chainsight/internal/app/services/audit"
	insightsvc "github.com/chainsight-labs/chainsight/internal/app/services/insights"
	lifecyclesvc "github.com/chainsight-labs/chainsight/internal/app/services/lifecycle"
	"github.com/chainsight-labs/chainsight/internal/app/storage"
	"github.com/chainsight-labs/chainsight/internal/app/storage/memory"
	"github.com/chainsight-labs/chainsight/internal/app/system"
	"github.com/chainsight-labs/chainsight/pkg/logger"
)

// Stores encapsulates persistence dependencies. A nil store defaults to the
// in-memory implementation.
type Stores struct {
	Shipments storage.ShipmentStore
}

// Ledger is the full ledger client surface used across the application.
type Ledger interface {
	lifecyclesvc.Recorder
	auditsvc.LedgerReader
}

// Options carries the optional external integrations.
type Options struct {
	// Ledger records shipments on chain. Nil disables ledger writes and
	// the ledger-backed endpoints.
	Ledger Ledger

	// Provider computes shipment insights. Nil serves local fallbacks.
	Provider insightsvc.Provider

	// Cache stores provider results between requests.
	Cache insightsvc.Cache

	// AuditSchedule is the cron schedule of the integrity sweep. Empty
	// disables the sweep.
	AuditSchedule string
}

// Application ties the domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger
	ledger  Ledger

	Shipments *lifecyclesvc.Service
	Insights  *insightsvc.Service
	Audit     *auditsvc.Service
	Events    *events.Hub
}

// New builds a fully initialised application.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if stores.Shipments == nil {
		stores.Shipments = memory.New()
	}

	manager := system.NewManager(log)
	hub := events.NewHub(log)

	var recorder lifecyclesvc.Recorder
	var reader auditsvc.LedgerReader
	if opts.Ledger != nil {
		recorder = opts.Ledger
		reader = opts.Ledger
	}

	shipmentService := lifecyclesvc.NewService(stores.Shipments, recorder, hub, log)
	insightService := insightsvc.NewService(stores.Shipments, opts.Provider, opts.Cache, log)
	auditService := auditsvc.NewService(stores.Shipments, reader, log)

	manager.Register(auditsvc.NewSweeper(auditService, opts.AuditSchedule, log))

	return &Application{
		manager:   manager,
		log:       log,
		ledger:    opts.Ledger,
		Shipments: shipmentService,
		Insights:  insightService,
		Audit:     auditService,
		Events:    hub,
	}, nil
}

// LedgerEnabled reports whether a configured ledger client is attached.
func (a *Application) LedgerEnabled() bool {
	return a.ledger != nil && a.ledger.Enabled()
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(service system.Service) {
	a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services and disconnects event subscribers.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	a.Events.Close()
	return err
}
