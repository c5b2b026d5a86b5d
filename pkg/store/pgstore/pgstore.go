// Package pgstore is the Postgres-backed store.Store implementation. It
// follows the teacher's pkg/database/client.go shape (pgx driver, embedded
// golang-migrate migrations applied idempotently at startup) but talks to
// Postgres directly through hand-written SQL instead of through ent, since
// the teacher's generated ent client is not present in this module (see
// DESIGN.md).
package pgstore

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" for database/sql, used by golang-migrate

	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/store"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds Postgres connection parameters (grounded on the teacher's
// pkg/database.Config shape).
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxConns int32
}

func (c Config) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// Store is the Postgres-backed store.Store implementation.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres, applies embedded migrations, and returns a
// ready Store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}

	if err := runMigrations(ctx, cfg); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// runMigrations applies embedded SQL migrations using golang-migrate, the
// way the teacher's pkg/database/client.go does: open a plain database/sql
// connection via the registered "pgx" driver, hand it to the postgres
// migration driver, and run migrations from an embedded iofs source.
func runMigrations(ctx context.Context, cfg Config) error {
	db, err := stdsql.Open("pgx", cfg.dsn())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping migration connection: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, cfg.Database, driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return sourceDriver.Close()
}

// HasEmbeddedMigrations reports whether migration SQL files are embedded in
// the binary, mirroring the teacher's startup sanity check.
func HasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

// --- Metrics ---

func (s *Store) MetricsGet(ctx context.Context, kind model.AgentKind) (model.AgentMetrics, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO agent_metrics (agent_kind, level, status)
		VALUES ($1, 1, 'idle')
		ON CONFLICT (agent_kind) DO UPDATE SET agent_kind = EXCLUDED.agent_kind
		RETURNING agent_kind, level, xp, prestige, learning_score, success_rate, total_cycles, last_cycle_at, status, updated_at
	`, string(kind))
	return scanMetrics(row)
}

func scanMetrics(row pgx.Row) (model.AgentMetrics, error) {
	var m model.AgentMetrics
	var kindStr, statusStr string
	if err := row.Scan(&kindStr, &m.Level, &m.XP, &m.Prestige, &m.LearningScore, &m.SuccessRate, &m.TotalCycles, &m.LastCycleAt, &statusStr, &m.UpdatedAt); err != nil {
		return model.AgentMetrics{}, wrapErr(err)
	}
	m.Kind = model.AgentKind(kindStr)
	m.Status = model.AgentStatus(statusStr)
	return m, nil
}

func (s *Store) MetricsUpdate(ctx context.Context, kind model.AgentKind, delta store.MetricsDelta) (model.AgentMetrics, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.AgentMetrics{}, wrapErr(err)
	}
	defer tx.Rollback(ctx)

	var m model.AgentMetrics
	row := tx.QueryRow(ctx, `
		INSERT INTO agent_metrics (agent_kind, level, status)
		VALUES ($1, 1, 'idle')
		ON CONFLICT (agent_kind) DO UPDATE SET agent_kind = EXCLUDED.agent_kind
		RETURNING agent_kind, level, xp, prestige, learning_score, success_rate, total_cycles, last_cycle_at, status, updated_at
	`, string(kind))
	if m, err = scanMetrics(row); err != nil {
		return model.AgentMetrics{}, err
	}

	m.XP += delta.XPDelta
	if delta.LevelSet != nil {
		m.Level = *delta.LevelSet
	}
	m.Prestige += delta.PrestigeDelta
	if delta.LearningScoreSet != nil {
		m.LearningScore = *delta.LearningScoreSet
	}
	if delta.SuccessRateSet != nil {
		m.SuccessRate = *delta.SuccessRateSet
	}
	m.TotalCycles += delta.TotalCyclesDelta
	if delta.LastCycleAt != nil {
		m.LastCycleAt = delta.LastCycleAt
	}
	if delta.StatusSet != nil {
		m.Status = *delta.StatusSet
	}

	_, err = tx.Exec(ctx, `
		UPDATE agent_metrics SET level=$2, xp=$3, prestige=$4, learning_score=$5,
			success_rate=$6, total_cycles=$7, last_cycle_at=$8, status=$9, updated_at=now()
		WHERE agent_kind=$1
	`, string(kind), m.Level, m.XP, m.Prestige, m.LearningScore, m.SuccessRate, m.TotalCycles, m.LastCycleAt, string(m.Status))
	if err != nil {
		return model.AgentMetrics{}, wrapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.AgentMetrics{}, wrapErr(err)
	}
	return m, nil
}

func (s *Store) MetricsResetAdmin(ctx context.Context, kind model.AgentKind) (model.AgentMetrics, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO agent_metrics (agent_kind, level, xp, prestige, learning_score, success_rate, status, updated_at)
		VALUES ($1, 1, 0, 0, 0, 0, 'idle', now())
		ON CONFLICT (agent_kind) DO UPDATE SET level=1, xp=0, prestige=0, learning_score=0, success_rate=0, updated_at=now()
		RETURNING agent_kind, level, xp, prestige, learning_score, success_rate, total_cycles, last_cycle_at, status, updated_at
	`, string(kind))
	return scanMetrics(row)
}

// --- Token ledger ---

func (s *Store) TokenAppend(ctx context.Context, entry model.TokenLedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO token_ledger (id, agent_kind, provider, month, tokens_in, tokens_out, request_id, model_id, kind, ok, err, at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, entry.ID, string(entry.AgentKind), string(entry.Provider), entry.Month, entry.TokensIn, entry.TokensOut,
		nullIfEmpty(entry.RequestID), entry.ModelID, string(entry.Kind), entry.OK, nullIfEmpty(entry.Err), entry.At)
	return wrapErr(err)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) TokenAggregate(ctx context.Context, kind model.AgentKind, provider model.Provider, month string) (model.TokenUsage, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(tokens_in + tokens_out), 0), COUNT(*)
		FROM token_ledger WHERE agent_kind=$1 AND provider=$2 AND month=$3 AND ok=true
	`, string(kind), string(provider), month)
	var usage model.TokenUsage
	usage.AgentKind, usage.Provider, usage.Month = kind, provider, month
	if err := row.Scan(&usage.TokensTotal, &usage.RequestCount); err != nil {
		return model.TokenUsage{}, wrapErr(err)
	}
	return usage, nil
}

func (s *Store) TokenArchiveMonth(ctx context.Context, keepMonth string) error {
	// Rollover is lazy per spec §4.3: aggregates key off `month` directly, so
	// "archiving" simply relabels prior months rather than deleting them —
	// keeping history while ensuring current-month aggregates start clean.
	_, err := s.pool.Exec(ctx, `
		UPDATE token_ledger SET month = month || '-archived'
		WHERE month <> $1 AND month NOT LIKE '%-archived'
	`, keepMonth)
	return wrapErr(err)
}

// --- Scenarios ---

func (s *Store) ScenarioInsert(ctx context.Context, sc model.Scenario) error {
	weights, err := json.Marshal(sc.CriteriaWeights)
	if err != nil {
		return fmt.Errorf("pgstore: marshal criteria weights: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO scenarios (id, agent_kind, category, complexity, prompt, criteria_weights, time_limit_s, created_at, fingerprint)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, sc.ID, string(sc.AgentKind), string(sc.Category), string(sc.Complexity), sc.Prompt, weights, sc.TimeLimitS, sc.CreatedAt, sc.Fingerprint)
	if err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			return store.ErrDuplicateFingerprint
		}
		return wrapErr(err)
	}
	return nil
}

func (s *Store) ScenarioRecentFingerprints(ctx context.Context, kind model.AgentKind, n int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT fingerprint FROM scenarios WHERE agent_kind=$1 ORDER BY created_at DESC LIMIT $2
	`, string(kind), n)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

// --- Responses & scores ---

func (s *Store) ResponseInsert(ctx context.Context, r model.Response) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO responses (id, scenario_id, agent_kind, text, duration_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, r.ID, r.ScenarioID, string(r.AgentKind), r.Text, r.DurationMS, r.CreatedAt)
	return wrapErr(err)
}

func (s *Store) ScoreInsert(ctx context.Context, sc model.Score) error {
	breakdown, _ := json.Marshal(sc.CriterionBreakdown)
	strengths, _ := json.Marshal(sc.Strengths)
	weaknesses, _ := json.Marshal(sc.Weaknesses)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scores (response_id, overall, passed, criterion_breakdown, feedback_text, strengths, weaknesses, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sc.ResponseID, sc.Overall, sc.Passed, breakdown, sc.FeedbackText, strengths, weaknesses, sc.CreatedAt)
	return wrapErr(err)
}

func (s *Store) ScoreRecent(ctx context.Context, kind model.AgentKind, limit int) ([]model.Score, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sc.response_id, sc.overall, sc.passed, sc.criterion_breakdown, sc.feedback_text, sc.strengths, sc.weaknesses, sc.created_at
		FROM scores sc JOIN responses r ON r.id = sc.response_id
		WHERE r.agent_kind = $1
		ORDER BY sc.created_at DESC LIMIT $2
	`, string(kind), limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []model.Score
	for rows.Next() {
		var sc model.Score
		var breakdown, strengths, weaknesses []byte
		if err := rows.Scan(&sc.ResponseID, &sc.Overall, &sc.Passed, &breakdown, &sc.FeedbackText, &strengths, &weaknesses, &sc.CreatedAt); err != nil {
			return nil, wrapErr(err)
		}
		_ = json.Unmarshal(breakdown, &sc.CriterionBreakdown)
		_ = json.Unmarshal(strengths, &sc.Strengths)
		_ = json.Unmarshal(weaknesses, &sc.Weaknesses)
		out = append(out, sc)
	}
	return out, rows.Err()
}

// --- Knowledge ---

func (s *Store) KnowledgeInsert(ctx context.Context, p model.KnowledgePattern) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("pgstore: marshal features: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO knowledge_patterns (id, owner_kind, label, features, effectiveness, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, p.ID, string(p.OwnerKind), string(p.Label), features, p.Effectiveness, p.CreatedAt)
	return wrapErr(err)
}

func (s *Store) KnowledgeQuery(ctx context.Context, owner *model.AgentKind, label *model.PatternLabel, limit int) ([]model.KnowledgePattern, error) {
	query := `SELECT id, owner_kind, label, features, effectiveness, created_at FROM knowledge_patterns WHERE 1=1`
	args := []any{}
	if owner != nil {
		args = append(args, string(*owner))
		query += fmt.Sprintf(" AND owner_kind=$%d", len(args))
	}
	if label != nil {
		args = append(args, string(*label))
		query += fmt.Sprintf(" AND label=$%d", len(args))
	}
	query += " ORDER BY effectiveness DESC, created_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []model.KnowledgePattern
	for rows.Next() {
		var p model.KnowledgePattern
		var ownerStr, labelStr string
		var features []byte
		if err := rows.Scan(&p.ID, &ownerStr, &labelStr, &features, &p.Effectiveness, &p.CreatedAt); err != nil {
			return nil, wrapErr(err)
		}
		p.OwnerKind = model.AgentKind(ownerStr)
		p.Label = model.PatternLabel(labelStr)
		_ = json.Unmarshal(features, &p.Features)
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Proposals ---

func (s *Store) ProposalInsert(ctx context.Context, p model.Proposal) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	actions, err := json.Marshal(p.Actions)
	if err != nil {
		return fmt.Errorf("pgstore: marshal actions: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO proposals (id, kind, title, description, actions, risk, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, p.ID, p.Kind, p.Title, p.Description, actions, string(p.Risk), string(p.Status), p.CreatedAt)
	return wrapErr(err)
}

func scanProposal(row pgx.Row) (model.Proposal, error) {
	var p model.Proposal
	var riskStr, statusStr string
	var actions []byte
	var decidedBy, executionResult *string
	if err := row.Scan(&p.ID, &p.Kind, &p.Title, &p.Description, &actions, &riskStr, &statusStr,
		&p.CreatedAt, &p.DecidedAt, &decidedBy, &executionResult); err != nil {
		return model.Proposal{}, wrapErr(err)
	}
	if decidedBy != nil {
		p.DecidedBy = *decidedBy
	}
	if executionResult != nil {
		p.ExecutionResult = *executionResult
	}
	p.Risk = model.RiskLevel(riskStr)
	p.Status = model.ProposalStatus(statusStr)
	_ = json.Unmarshal(actions, &p.Actions)
	return p, nil
}

const proposalCols = `id, kind, title, description, actions, risk, status, created_at, decided_at, decided_by, execution_result`

func (s *Store) ProposalGet(ctx context.Context, id string) (model.Proposal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+proposalCols+` FROM proposals WHERE id=$1`, id)
	return scanProposal(row)
}

func (s *Store) ProposalTransition(ctx context.Context, id string, from, to model.ProposalStatus, decidedBy string, at time.Time, executionResult string) (model.Proposal, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Proposal{}, wrapErr(err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+proposalCols+` FROM proposals WHERE id=$1 FOR UPDATE`, id)
	current, err := scanProposal(row)
	if err != nil {
		return model.Proposal{}, err
	}
	if current.Status != from {
		if from == model.ProposalApproved && to == model.ProposalExecuted && current.Status == model.ProposalExecuted {
			return model.Proposal{}, store.ErrAlreadyExecuted
		}
		return model.Proposal{}, store.ErrInvalidStateTransition
	}

	result := current.ExecutionResult
	if executionResult != "" {
		result = executionResult
	}
	_, err = tx.Exec(ctx, `
		UPDATE proposals SET status=$2, decided_at=$3, decided_by=$4, execution_result=$5 WHERE id=$1
	`, id, string(to), at, decidedBy, result)
	if err != nil {
		return model.Proposal{}, wrapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Proposal{}, wrapErr(err)
	}

	current.Status = to
	current.DecidedAt = &at
	current.DecidedBy = decidedBy
	current.ExecutionResult = result
	return current, nil
}

func (s *Store) ProposalList(ctx context.Context, status *model.ProposalStatus) ([]model.Proposal, error) {
	query := `SELECT ` + proposalCols + ` FROM proposals`
	var args []any
	if status != nil {
		query += ` WHERE status=$1`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []model.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Cycles ---

func (s *Store) CycleInsert(ctx context.Context, c model.CycleRecord) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	var scenarioID any
	if c.ScenarioID != "" {
		scenarioID = c.ScenarioID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cycle_records (id, agent_kind, scenario_id, started_at, ended_at, outcome, xp_delta, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, c.ID, string(c.AgentKind), scenarioID, c.StartedAt, c.EndedAt, string(c.Outcome), c.XPDelta, c.Notes)
	return wrapErr(err)
}

func (s *Store) CycleRecent(ctx context.Context, kind model.AgentKind, limit int) ([]model.CycleRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_kind, scenario_id, started_at, ended_at, outcome, xp_delta, notes
		FROM cycle_records WHERE agent_kind=$1 ORDER BY started_at DESC LIMIT $2
	`, string(kind), limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []model.CycleRecord
	for rows.Next() {
		var c model.CycleRecord
		var kindStr, outcomeStr string
		var scenarioID *string
		if err := rows.Scan(&c.ID, &kindStr, &scenarioID, &c.StartedAt, &c.EndedAt, &outcomeStr, &c.XPDelta, &c.Notes); err != nil {
			return nil, wrapErr(err)
		}
		c.AgentKind = model.AgentKind(kindStr)
		c.Outcome = model.CycleOutcome(outcomeStr)
		if scenarioID != nil {
			c.ScenarioID = *scenarioID
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Sources ---

func (s *Store) SourceAdd(ctx context.Context, url string, trusted bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sources (url, trusted) VALUES ($1,$2)
		ON CONFLICT (url) DO UPDATE SET trusted = EXCLUDED.trusted
	`, url, trusted)
	return wrapErr(err)
}

func (s *Store) SourceRemove(ctx context.Context, url string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sources WHERE url=$1`, url)
	return wrapErr(err)
}

func (s *Store) SourceList(ctx context.Context) ([]store.SourceRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT url, trusted FROM sources ORDER BY url`)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []store.SourceRecord
	for rows.Next() {
		var r store.SourceRecord
		if err := rows.Scan(&r.URL, &r.Trusted); err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ store.Store = (*Store)(nil)
