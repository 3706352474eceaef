package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"YieldVault/internal/event"
	"YieldVault/internal/observability"
	"YieldVault/internal/service"
)

// YieldReporter periodically records a YieldObserved event through the
// ledger loop. The observation captures total assets, outstanding debt,
// and the liquidatable balance at that sequence, giving liquidation
// agents and dashboards an auditable yield trail without polling the
// read model.
type YieldReporter struct {
	cron     *cron.Cron
	commands chan<- service.Command
	spec     string
	logger   zerolog.Logger
}

func NewYieldReporter(commands chan<- service.Command, spec string) *YieldReporter {
	return &YieldReporter{
		cron:     cron.New(cron.WithSeconds()),
		commands: commands,
		spec:     spec,
		logger:   observability.NewLogger("watch"),
	}
}

// Start registers the observation task and starts the scheduler.
func (r *YieldReporter) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.spec, func() { r.observe(ctx) }); err != nil {
		return fmt.Errorf("register yield observation: %w", err)
	}
	r.cron.Start()
	r.logger.Info().Str("cron", r.spec).Msg("yield reporter started")
	return nil
}

// Stop stops the scheduler and waits for a running observation to finish.
func (r *YieldReporter) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info().Msg("yield reporter stopped")
}

// RunNow takes one observation immediately, outside the schedule.
func (r *YieldReporter) RunNow(ctx context.Context) {
	r.observe(ctx)
}

func (r *YieldReporter) observe(ctx context.Context) {
	// UnixNano keeps observation sequences monotonic across restarts
	// without the reporter holding durable state.
	obs := &event.YieldObserved{
		ObservationID: uuid.New(),
		Sequence:      time.Now().UnixNano(),
	}

	reply := make(chan service.CommandResult, 1)
	select {
	case r.commands <- service.Command{Event: obs, Reply: reply}:
	case <-ctx.Done():
		return
	}

	select {
	case res := <-reply:
		if res.Err != nil {
			r.logger.Warn().Err(res.Err).Msg("yield observation rejected")
			return
		}
		r.logger.Info().
			Uint64("total_assets", obs.TotalAssets).
			Uint64("total_debt", obs.TotalDebt).
			Uint64("total_yield", obs.TotalYield).
			Uint64("available_yield", obs.AvailableYield).
			Uint64("fee_balance", obs.FeeBalance).
			Msg("yield observed")
	case <-ctx.Done():
	}
}
