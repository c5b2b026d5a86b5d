// Command aion runs the orchestration core server: it wires every component
// (Token Ledger, LLM Gateway, Test Generator, Scorer, Custody Engine, the
// four Agent Runners, Proposal Manager, Learning Loop, Scheduler, and the
// HTTP/WS Surface) and serves until told to stop.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aion-systems/aion-core/pkg/agentrunner"
	"github.com/aion-systems/aion-core/pkg/api"
	"github.com/aion-systems/aion-core/pkg/clock"
	"github.com/aion-systems/aion-core/pkg/collaborators"
	"github.com/aion-systems/aion-core/pkg/config"
	"github.com/aion-systems/aion-core/pkg/custody"
	"github.com/aion-systems/aion-core/pkg/gateway"
	"github.com/aion-systems/aion-core/pkg/knowledge"
	"github.com/aion-systems/aion-core/pkg/learning"
	"github.com/aion-systems/aion-core/pkg/ledger"
	"github.com/aion-systems/aion-core/pkg/llmprovider"
	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/proposal"
	"github.com/aion-systems/aion-core/pkg/scheduler"
	"github.com/aion-systems/aion-core/pkg/scorer"
	"github.com/aion-systems/aion-core/pkg/slack"
	"github.com/aion-systems/aion-core/pkg/sources"
	"github.com/aion-systems/aion-core/pkg/store"
	"github.com/aion-systems/aion-core/pkg/store/memstore"
	"github.com/aion-systems/aion-core/pkg/store/pgstore"
	"github.com/aion-systems/aion-core/pkg/testgen"
)

func main() {
	log := slog.Default()

	// Load a local .env file if present (teacher's cmd/tarsy bootstrap idiom);
	// a missing file is not an error, real deployments set env vars directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("load .env", "error", err)
	}

	cfg, err := config.Initialize()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}
	cfgMgr := config.NewManager(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	clk := clock.New()
	led := ledger.New(st, cfgMgr, clk)

	primary := llmprovider.New(os.Getenv("AION_PRIMARY_URL"), os.Getenv("AION_PRIMARY_API_KEY"), &http.Client{})
	secondary := llmprovider.New(os.Getenv("AION_SECONDARY_URL"), os.Getenv("AION_SECONDARY_API_KEY"), &http.Client{})
	gw := gateway.New(led, cfgMgr, clk, primary, secondary,
		envOr("AION_PRIMARY_MODEL", "primary-default"), envOr("AION_SECONDARY_MODEL", "secondary-default"))

	reg := sources.New(st, sources.DefaultFactory(os.Getenv("AION_GITHUB_TOKEN")))
	if err := reg.Hydrate(ctx); err != nil {
		log.Error("hydrate source registry", "error", err)
		os.Exit(1)
	}

	gen := testgen.New(st, clk)
	scr := scorer.New(cfgMgr)

	bus := learning.NewBus()
	loop := learning.NewLoop(st, cfgMgr, clk, bus)
	loop.Start()
	defer loop.Stop()

	hub := api.NewHub(clk)

	slackSvc := slack.NewService(slack.ServiceConfig{
		Token:        os.Getenv("AION_SLACK_TOKEN"),
		Channel:      os.Getenv("AION_SLACK_CHANNEL"),
		DashboardURL: os.Getenv("AION_DASHBOARD_URL"),
	})
	notifier := fanOutNotifier{hub, slackSvc}

	executor := collaborators.NewAllowListExecutor()
	proposals := proposal.New(st, executor, notifier, clk)

	probe := collaborators.NewHostHealthProbe(cfgMgr, cfg.CodebaseRoot)
	snapshotter := collaborators.NewFSCodebaseSnapshotter(cfg.CodebaseRoot)

	sandbox := agentrunner.NewSandbox(gw, clk, gen, scr, st)
	conquest := agentrunner.NewConquest(gw, clk, gen, scr, st)
	guardian := agentrunner.NewGuardian(gw, clk, probe, proposals, reg)
	imperium := agentrunner.NewImperium(gw, clk, snapshotter)

	custodyRunners := map[model.AgentKind]custody.Runner{
		model.Sandbox:  sandbox,
		model.Conquest: conquest,
		model.Guardian: guardian,
		model.Imperium: imperium,
	}
	ce := custody.New(st, custodyRunners, gen, scr, cfgMgr, clk)
	ce.SetScoreSink(learning.NewScoreSinkAdapter(bus))

	domainRunners := map[model.AgentKind]scheduler.DomainRunner{
		model.Sandbox:  sandbox,
		model.Conquest: conquest,
		model.Guardian: guardian,
		model.Imperium: imperium,
	}
	gate := scheduler.NewSystemGate(cfgMgr, clk)
	sched := scheduler.New(st, ce, gate, cfgMgr, clk, domainRunners)
	sched.SetEventSink(hub)
	sched.Start()
	defer sched.Stop()

	kn := knowledge.New(st)
	server := api.New(cfgMgr, st, ce, proposals, led, reg, sched, kn, hub)

	go runTokenPressurePoller(ctx, led, hub, clk)
	go runTransferJobTicker(ctx, loop, cfgMgr, log)

	serverErrCh := make(chan error, 1)
	go func() {
		log.Info("http/ws surface listening", "addr", cfg.HTTP.Addr)
		if err := server.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serverErrCh:
		if err != nil {
			log.Error("http server", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown http server", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// openStore selects Postgres (production) or an in-process store (local
// development, AION_STORE=memory) without any business logic caring which
// one backs it.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if os.Getenv("AION_STORE") == "memory" {
		return memstore.New(), func() {}, nil
	}

	st, err := pgstore.Open(ctx, pgstore.Config{
		Host: cfg.DB.Host, Port: cfg.DB.Port, User: cfg.DB.User,
		Password: cfg.DB.Password, Database: cfg.DB.Database,
		SSLMode: cfg.DB.SSLMode, MaxConns: cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("pgstore: open: %w", err)
	}
	return st, func() { _ = st.Close() }, nil
}

// fanOutNotifier delivers a Proposal-created notification to both the WS
// Hub (always) and Slack (if configured), matching proposal.ApprovalNotifier
// with a single combined implementation since Manager accepts only one.
type fanOutNotifier struct {
	hub   *api.Hub
	slack *slack.Service
}

func (n fanOutNotifier) NotifyProposalCreated(ctx context.Context, p model.Proposal) {
	n.hub.NotifyProposalCreated(ctx, p)
	n.slack.NotifyProposalCreated(ctx, p)
}

// runTokenPressurePoller periodically pushes each (agent, provider)'s
// monthly usage fraction to the WS Hub (spec §6.2 token.pressure), which
// itself only broadcasts once usage crosses its own threshold.
func runTokenPressurePoller(ctx context.Context, led *ledger.Ledger, hub *api.Hub, clk clock.Clock) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			month := clk.Now().UTC().Format("2006-01")
			for _, kind := range model.AllAgentKinds {
				for _, provider := range []model.Provider{model.Primary, model.Secondary} {
					pct, err := led.UsagePct(ctx, kind, provider, month)
					if err != nil {
						continue
					}
					hub.TokenPressure(kind, provider, pct)
				}
			}
		}
	}
}

// runTransferJobTicker runs the Cross-AI transfer job on its configured
// cadence (spec §4.10).
func runTransferJobTicker(ctx context.Context, loop *learning.Loop, cfg *config.Manager, log *slog.Logger) {
	ticker := time.NewTicker(cfg.Get().Learning.TransferInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := loop.RunTransferJob(ctx); err != nil {
				log.Error("transfer job", "error", err)
			}
		}
	}
}
