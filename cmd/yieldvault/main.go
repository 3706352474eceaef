package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"YieldVault/internal/config"
	"YieldVault/internal/event"
	"YieldVault/internal/observability"
	"YieldVault/internal/persistence"
	"YieldVault/internal/publish"
	"YieldVault/internal/query"
	"YieldVault/internal/registry"
	"YieldVault/internal/server"
	"YieldVault/internal/service"
	"YieldVault/internal/store"
	"YieldVault/internal/token"
	"YieldVault/internal/vault"
	"YieldVault/internal/watch"
)

func main() {
	logger := observability.NewLogger("main")
	logger.Info().Msg("YieldVault starting")

	configPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Database.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("postgres ping")
	}
	logger.Info().Msg("Postgres connected")

	// --- Run SQL migrations ---
	migrator := persistence.NewMigrator(db, cfg.Database.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}
	logger.Info().Msg("migrations applied")

	snapMgr := persistence.NewSnapshotManager(db)

	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load snapshot")
	}

	// --- Vault collaborators ---
	// The registry, yield store, and asset ledger are in-process, so
	// recovery always replays the full event log; snapshots serve as
	// integrity checkpoints and speed up dedup warmup, not state skips.
	v, ys, asset, err := buildVault(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build vault")
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Channels ---
	// The persist channel blocks (backpressure), the publish channel drops.
	svcPersistChan := make(chan service.Output, cfg.Channels.PersistChanSize)
	svcPublishChan := make(chan service.Output, cfg.Channels.PublishChanSize)

	// Bridge channels for the workers (avoids import cycles)
	persistRecordChan := make(chan persistence.Record, cfg.Channels.PersistChanSize)
	publishEventChan := make(chan publish.PublishableEvent, cfg.Channels.PublishChanSize)

	dbChecker := persistence.NewPostgresIdempotencyChecker(db)

	svc := service.New(v, 0, cfg.IdempotencyLRUCapacity, svcPersistChan, svcPublishChan, dbChecker, metrics)
	svc.SetStoreAdjuster(ys)
	svc.SetTokenSeeder(asset)

	// --- NATS ---
	nc, js, err := publish.ConnectNATS(cfg.NATS.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	logger.Info().Msg("NATS connected")

	if err := publish.EnsureOutboundStream(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure outbound stream")
	}

	outboundPublisher := publish.NewOutboundPublisher(js, publishEventChan, metrics)

	// --- Start workers ---
	errChan := make(chan error, 10)

	persistWorker := persistence.NewPersistenceWorker(db, persistRecordChan, cfg.Persistence.BatchSize, cfg.FlushTimeout(), metrics)
	go func() {
		errChan <- persistWorker.Run(ctx)
	}()

	go func() {
		errChan <- outboundPublisher.Run(ctx)
	}()

	go bridgeOutputs(ctx, svcPersistChan, svcPublishChan, persistRecordChan, publishEventChan)

	// --- Event replay ---
	replayCount, err := replayEventsFromLog(ctx, snapMgr, svc, metrics, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("event replay failed")
	}
	if replayCount > 0 {
		logger.Info().
			Int64("events", replayCount).
			Int64("sequence", svc.GetSequence()).
			Msg("event log replayed")
	}

	// --- State hash verification ---
	// When the replay head lands exactly on the snapshot, the rebuilt
	// chain tip must match the recorded one.
	if snap != nil && svc.GetSequence()-1 == snap.Sequence {
		var expected [32]byte
		copy(expected[:], snap.StateHash)
		if actual := svc.GetStateHash(); actual != expected {
			logger.Fatal().
				Hex("expected", expected[:]).
				Hex("actual", actual[:]).
				Msg("state hash mismatch after replay")
		}
		logger.Info().Int64("sequence", snap.Sequence).Msg("state hash verified against snapshot")
	}

	// --- Service loop ---
	commandChan := make(chan service.Command, cfg.Channels.CommandChanSize)
	go svc.Run(ctx, commandChan)

	// --- Servers ---
	queryService := query.NewQueryService(db)

	httpServer := server.NewHTTPServer(cfg.Server.HTTPAddr, commandChan, queryService, healthChecker, metrics)
	go func() {
		errChan <- httpServer.Start(ctx)
	}()

	grpcServer := server.NewGRPCServer(cfg.Server.GRPCAddr)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	// --- Yield reporter ---
	reporter := watch.NewYieldReporter(commandChan, cfg.Watch.YieldCron)
	if err := reporter.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start yield reporter")
	}
	// Baseline observation so the recovered position is on record
	reporter.RunNow(ctx)

	// --- Periodic snapshots ---
	go runPeriodicSnapshots(ctx, commandChan, snapMgr, cfg.Persistence.SnapshotEvents, metrics, logger)

	// --- Channel gauges ---
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.SetChannelMetrics("commands", len(commandChan), cap(commandChan))
				metrics.SetChannelMetrics("persist", len(svcPersistChan), cap(svcPersistChan))
				metrics.SetChannelMetrics("publish", len(svcPublishChan), cap(svcPublishChan))
			}
		}
	}()

	// --- Prometheus metrics server ---
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:    cfg.Server.MetricsAddr,
			Handler: metricsMux,
		}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		logger.Info().Str("addr", cfg.Server.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	healthChecker.SetReady(true)
	grpcServer.SetServing(true)

	logger.Info().
		Int64("sequence", svc.GetSequence()).
		Str("http", cfg.Server.HTTPAddr).
		Str("grpc", cfg.Server.GRPCAddr).
		Str("metrics", cfg.Server.MetricsAddr).
		Msg("YieldVault ready")

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	// --- Graceful shutdown ---
	reporter.Stop()

	// Capture the final snapshot state while the loop is still running.
	finalSnap := requestSnapshot(commandChan, 10*time.Second)

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	close(persistRecordChan)
	close(publishEventChan)

	if finalSnap != nil && finalSnap.Sequence >= 0 {
		if err := saveSnapshot(shutdownCtx, snapMgr, finalSnap, metrics); err != nil {
			logger.Error().Err(err).Msg("final snapshot failed")
		} else {
			logger.Info().Int64("sequence", finalSnap.Sequence).Msg("final snapshot saved")
		}
	}

	logger.Info().Msg("YieldVault shutdown complete")
}

// buildVault wires the in-process collaborators and role configuration.
// The asset ledger is returned so the service can credit depositor
// accounts from logged TokenSeeded events.
func buildVault(cfg *config.Config, logger zerolog.Logger) (*vault.Vault, *store.MemoryStore, *token.MemoryToken, error) {
	asset := token.NewMemoryToken()
	ys := store.NewMemoryStore(asset)
	reg := registry.NewMemoryRegistry(0)
	sink := token.NewMemoryPool()

	owner, err := config.AddressOf(cfg.Vault.Owner)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("vault.owner: %w", err)
	}
	feeRecipient, err := config.AddressOf(cfg.Vault.FeeRecipient)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("vault.fee_recipient: %w", err)
	}
	liqAgent, err := config.AddressOf(cfg.Vault.LiquidationAgent)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("vault.liquidation_agent: %w", err)
	}
	claimAgent, err := config.AddressOf(cfg.Vault.ClaimAgent)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("vault.claim_agent: %w", err)
	}
	prizeToken, err := config.AddressOf(cfg.Vault.PrizeToken)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("vault.prize_token: %w", err)
	}
	if prizeToken == uuid.Nil {
		prizeToken = uuid.New()
		logger.Warn().Str("prize_token", prizeToken.String()).
			Msg("vault.prize_token not configured, generated one for this run")
	}

	v, err := vault.New(asset, ys, reg, sink, vault.Config{
		Owner:            owner,
		YieldBuffer:      cfg.Vault.YieldBuffer,
		FeePercentage:    cfg.Vault.FeePercentage,
		FeeRecipient:     feeRecipient,
		LiquidationAgent: liqAgent,
		ClaimAgent:       claimAgent,
		PrizeTokenID:     prizeToken,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return v, ys, asset, nil
}

// bridgeOutputs converts service.Output into the worker-facing formats.
func bridgeOutputs(
	ctx context.Context,
	persistIn <-chan service.Output,
	publishIn <-chan service.Output,
	persistOut chan<- persistence.Record,
	publishOut chan<- publish.PublishableEvent,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case output, ok := <-persistIn:
			if !ok {
				return
			}
			persistOut <- persistence.Record{
				EventRow:     eventRowFor(output.Envelope),
				OperationRow: operationRowFor(output),
			}

		case output, ok := <-publishIn:
			if !ok {
				return
			}
			select {
			case publishOut <- publish.PublishableEvent{
				Sequence:       output.Envelope.Sequence,
				EventType:      output.Envelope.EventType.String(),
				IdempotencyKey: output.Envelope.IdempotencyKey,
				Payload:        output.Envelope.Payload,
				StateHash:      output.Envelope.StateHash[:],
				PrevHash:       output.Envelope.PrevHash[:],
				Timestamp:      output.Envelope.Timestamp,
			}:
			default:
				// Drop if the publish channel is full
			}
		}
	}
}

func eventRowFor(env *event.EventEnvelope) persistence.EventRow {
	return persistence.EventRow{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Payload:        env.Payload,
		StateHash:      env.StateHash[:],
		PrevHash:       env.PrevHash[:],
		Timestamp:      env.Timestamp,
		SourceSequence: env.SourceSequence,
	}
}

// operationRowFor derives the read-model row from the envelope payload.
// Observations carry no actor and get no row.
func operationRowFor(output service.Output) *persistence.OperationRow {
	env := output.Envelope

	evt, err := event.Parse(env.EventType.String(), env.Payload)
	if err != nil {
		return nil
	}

	row := &persistence.OperationRow{
		Sequence:  env.Sequence,
		OpType:    env.EventType.String(),
		Assets:    int64(output.Result.Assets),
		Shares:    int64(output.Result.Shares),
		Fee:       int64(output.Result.Fee),
		Timestamp: env.Timestamp,
	}

	switch e := evt.(type) {
	case *event.Deposit:
		row.Actor, row.Receiver = e.Caller.String(), e.Receiver.String()
	case *event.Mint:
		row.Actor, row.Receiver = e.Caller.String(), e.Receiver.String()
	case *event.Sponsor:
		row.Actor, row.Receiver = e.Caller.String(), e.Caller.String()
	case *event.Withdraw:
		row.Actor, row.Receiver = e.Caller.String(), e.Receiver.String()
	case *event.Redeem:
		row.Actor, row.Receiver = e.Caller.String(), e.Receiver.String()
	case *event.YieldExtracted:
		row.Actor, row.Receiver = e.Agent.String(), e.Recipient.String()
	case *event.ContributionVerified:
		row.Actor, row.Receiver = e.Agent.String(), e.Agent.String()
	case *event.FeeClaimed:
		row.Actor, row.Receiver = e.Recipient.String(), e.Recipient.String()
	case *event.ParamUpdated:
		row.Actor, row.Receiver = e.Owner.String(), e.Owner.String()
	case *event.StoreAdjusted:
		// External adjustments have no acting party
		row.Actor, row.Receiver = uuid.Nil.String(), uuid.Nil.String()
	case *event.TokenSeeded:
		row.Actor, row.Receiver = uuid.Nil.String(), e.Account.String()
	default:
		return nil
	}

	return row
}

// replayEventsFromLog replays the whole event log through the service.
// The collaborator state (registry balances, store shares) lives in
// memory only, so every restart is a cold replay from sequence 0.
func replayEventsFromLog(
	ctx context.Context,
	snapMgr *persistence.SnapshotManager,
	svc *service.Service,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) (int64, error) {
	const batchSize = 1000
	var totalReplayed int64
	fromSequence := int64(0)

	head, err := snapMgr.GetLatestSequence(ctx)
	if err != nil {
		return 0, fmt.Errorf("event log head: %w", err)
	}
	if head > 0 {
		logger.Info().Int64("head", head).Msg("replaying event log")
	}

	for {
		events, err := snapMgr.LoadEventsFrom(ctx, fromSequence, batchSize)
		if err != nil {
			return totalReplayed, fmt.Errorf("load events from seq %d: %w", fromSequence, err)
		}
		if len(events) == 0 {
			break
		}

		for _, row := range events {
			typedEvt, err := event.Parse(row.EventType, row.Payload)
			if err != nil {
				logger.Warn().
					Int64("sequence", row.Sequence).
					Str("event_type", row.EventType).
					Err(err).
					Msg("skip unparseable event during replay")
				continue
			}

			if err := svc.Replay(typedEvt); err != nil {
				logger.Warn().Int64("sequence", row.Sequence).Err(err).Msg("replay skip")
			}

			totalReplayed++
			if metrics != nil {
				metrics.ReplayEventsTotal.Inc()
			}
		}

		fromSequence = events[len(events)-1].Sequence + 1
	}

	return totalReplayed, nil
}

// requestSnapshot asks the service loop for its snapshot state.
func requestSnapshot(commands chan<- service.Command, timeout time.Duration) *service.SnapshotState {
	reply := make(chan *service.SnapshotState, 1)
	select {
	case commands <- service.Command{SnapshotReply: reply}:
	case <-time.After(timeout):
		return nil
	}
	select {
	case snap := <-reply:
		return snap
	case <-time.After(timeout):
		return nil
	}
}

func saveSnapshot(
	ctx context.Context,
	snapMgr *persistence.SnapshotManager,
	snap *service.SnapshotState,
	metrics *observability.Metrics,
) error {
	start := time.Now()

	data := &persistence.SnapshotData{
		Sequence:        snap.Sequence,
		StateHash:       snap.StateHash[:],
		FeeBalance:      snap.FeeBalance,
		SequenceState:   snap.SequenceState,
		IdempotencyKeys: snap.IdempotencyKeys,
		CreatedAt:       time.Now(),
	}

	if err := snapMgr.SaveSnapshot(ctx, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	// Just captured from live state, so verified by construction
	if err := snapMgr.MarkVerified(ctx, data.Sequence); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotLastSeq.Set(float64(data.Sequence))
	}

	return nil
}

// runPeriodicSnapshots takes a snapshot every N applied events.
func runPeriodicSnapshots(
	ctx context.Context,
	commands chan<- service.Command,
	snapMgr *persistence.SnapshotManager,
	interval int64,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) {
	if interval <= 0 {
		interval = 100_000
	}

	var lastSnapshotSeq int64 = -1
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := requestSnapshot(commands, 5*time.Second)
			if snap == nil || snap.Sequence < 0 {
				continue
			}
			if snap.Sequence-lastSnapshotSeq < interval {
				continue
			}
			if err := saveSnapshot(ctx, snapMgr, snap, metrics); err != nil {
				logger.Warn().Err(err).Msg("periodic snapshot failed")
				continue
			}
			lastSnapshotSeq = snap.Sequence
			logger.Info().Int64("sequence", snap.Sequence).Msg("periodic snapshot saved")
		}
	}
}
