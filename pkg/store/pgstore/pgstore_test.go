package pgstore_test

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" for database/sql

	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/store"
	"github.com/aion-systems/aion-core/pkg/store/pgstore"
)

// Shared across the package's tests, grounded on the teacher's
// test/util/database.go "start once per package" idiom — except here each
// test gets its own freshly created, randomly named database rather than a
// schema, since pgstore's SQL has no search_path dependency to thread
// through.
var (
	containerOnce sync.Once
	containerErr  error
	container     *postgres.PostgresContainer
	baseHost      string
	basePort      int
)

func requireContainer(t *testing.T) (host string, port int) {
	t.Helper()
	containerOnce.Do(func() {
		ctx := context.Background()
		c, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("postgres"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("start postgres container: %w", err)
			return
		}
		container = c
		h, err := c.Host(ctx)
		if err != nil {
			containerErr = fmt.Errorf("container host: %w", err)
			return
		}
		mappedPort, err := c.MappedPort(ctx, "5432/tcp")
		if err != nil {
			containerErr = fmt.Errorf("container port: %w", err)
			return
		}
		baseHost = h
		basePort = mappedPort.Int()
	})
	require.NoError(t, containerErr, "failed to start shared postgres testcontainer")
	return baseHost, basePort
}

// newStore creates a fresh database on the shared container for this test
// and opens a pgstore.Store against it, so tests never see each other's
// rows — the per-test-database analogue of the teacher's per-test schema.
func newStore(t *testing.T) *pgstore.Store {
	t.Helper()
	host, port := requireContainer(t)

	adminDSN := fmt.Sprintf("postgres://test:test@%s:%d/postgres?sslmode=disable", host, port)
	admin, err := stdsql.Open("pgx", adminDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })

	dbName := "t" + uuid.NewString()[:8]
	_, err = admin.ExecContext(context.Background(), fmt.Sprintf("CREATE DATABASE %s", dbName))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.ExecContext(context.Background(), fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName))
	})

	st, err := pgstore.Open(context.Background(), pgstore.Config{
		Host: host, Port: port, User: "test", Password: "test",
		Database: dbName, SSLMode: "disable",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestMetricsGetCreatesDefaultRowOnFirstUse(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	m, err := st.MetricsGet(ctx, model.Imperium)
	require.NoError(t, err)
	require.Equal(t, model.Imperium, m.Kind)
	require.Equal(t, 1, m.Level)
	require.Equal(t, int64(0), m.XP)
	require.Equal(t, model.StatusIdle, m.Status)
}

func TestMetricsUpdateIsAtomicPerKind(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	_, err := st.MetricsGet(ctx, model.Guardian)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.MetricsUpdate(ctx, model.Guardian, store.MetricsDelta{
				XPDelta: 5, TotalCyclesDelta: 1,
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	m, err := st.MetricsGet(ctx, model.Guardian)
	require.NoError(t, err)
	require.Equal(t, int64(100), m.XP)
	require.Equal(t, int64(20), m.TotalCycles)
}

func TestTokenAppendAndAggregate(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, st.TokenAppend(ctx, model.TokenLedgerEntry{
			ID: uuid.NewString(), AgentKind: model.Sandbox, Provider: model.Primary,
			Month: "2026-07", TokensIn: 100, TokensOut: 50, ModelID: "m",
			Kind: model.TokenKindChat, OK: true, At: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		}))
	}

	agg, err := st.TokenAggregate(ctx, model.Sandbox, model.Primary, "2026-07")
	require.NoError(t, err)
	require.Equal(t, int64(450), agg.TokensTotal)
	require.Equal(t, int64(3), agg.RequestCount)
}

func TestScenarioInsertRejectsDuplicateFingerprint(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	sc := model.Scenario{
		ID: uuid.NewString(), AgentKind: model.Conquest, Category: model.CategoryPerformance,
		Complexity: model.Advanced, Prompt: "optimize the hot path", Fingerprint: "fp-1",
		CriteriaWeights: map[string]float64{"correctness": 100}, TimeLimitS: 900,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.ScenarioInsert(ctx, sc))

	sc2 := sc
	sc2.ID = uuid.NewString()
	err := st.ScenarioInsert(ctx, sc2)
	require.ErrorIs(t, err, store.ErrDuplicateFingerprint)
}

func TestProposalLifecycleTransitions(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	p := model.Proposal{
		ID: uuid.NewString(), Kind: "system_healing", Title: "rotate logs",
		Description: "disk pressure", Risk: model.RiskMedium, Status: model.ProposalPending,
		Actions:   []model.ProposalAction{{Name: "rotate_logs"}},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.ProposalInsert(ctx, p))

	approved, err := st.ProposalTransition(ctx, p.ID, model.ProposalPending, model.ProposalApproved, "alice", time.Now().UTC(), "")
	require.NoError(t, err)
	require.Equal(t, model.ProposalApproved, approved.Status)

	_, err = st.ProposalTransition(ctx, p.ID, model.ProposalPending, model.ProposalApproved, "alice", time.Now().UTC(), "")
	require.ErrorIs(t, err, store.ErrInvalidStateTransition)

	executed, err := st.ProposalTransition(ctx, p.ID, model.ProposalApproved, model.ProposalExecuted, "alice", time.Now().UTC(), "ok")
	require.NoError(t, err)
	require.Equal(t, model.ProposalExecuted, executed.Status)

	_, err = st.ProposalTransition(ctx, p.ID, model.ProposalApproved, model.ProposalExecuted, "alice", time.Now().UTC(), "ok")
	require.ErrorIs(t, err, store.ErrAlreadyExecuted)
}

func TestCycleRecentOrdersByMostRecentFirst(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, st.CycleInsert(ctx, model.CycleRecord{
			ID: uuid.NewString(), AgentKind: model.Imperium,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			EndedAt:   base.Add(time.Duration(i)*time.Hour + time.Minute),
			Outcome:   model.OutcomeOK, XPDelta: int64(i),
		}))
	}

	recent, err := st.CycleRecent(ctx, model.Imperium, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, int64(2), recent[0].XPDelta)
	require.Equal(t, int64(0), recent[2].XPDelta)
}
