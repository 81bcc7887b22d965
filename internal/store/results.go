package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/examrun/internal/module"
	"github.com/abhisek/examrun/internal/session"
)

var (
	// ErrNotFound is returned when a requested attempt does not exist.
	ErrNotFound = errors.New("result not found")
	// ErrDuplicateSession is returned when an attempt is saved twice.
	ErrDuplicateSession = errors.New("result for session already saved")
)

// QueryOpts configures history queries.
type QueryOpts struct {
	Limit    int    // max results (0 = unlimited)
	ModuleID string // only attempts of this module when set
}

// ResultSummary is one row of attempt history.
type ResultSummary struct {
	Sequence          int64
	SessionID         string
	ModuleID          string
	ModuleName        string
	SectionKind       module.SectionKind
	TotalQuestions    int
	AnsweredQuestions int
	CorrectAnswers    int
	TimedOut          bool
	Aborted           bool
	TimeSpentSecs     int
	CompletedAt       time.Time
}

// RetakeSummary is one stored retake pass.
type RetakeSummary struct {
	Sequence  int64
	SessionID string
	ModuleID  string
	Items     int
	Retaken   int
	Improved  int
	CreatedAt time.Time
}

// ResultRepo persists module attempts and retake passes.
type ResultRepo interface {
	// Save stores a finished attempt and returns its sequence number.
	Save(ctx context.Context, res session.ModuleResult) (int64, error)

	// Latest returns the most recent attempt of moduleID, or nil if none exist.
	Latest(ctx context.Context, moduleID string) (*session.ModuleResult, error)

	// Get returns the attempt with sessionID.
	Get(ctx context.Context, sessionID string) (*session.ModuleResult, error)

	// List returns attempt summaries, newest first.
	List(ctx context.Context, opts QueryOpts) ([]ResultSummary, error)

	// SaveRetake stores a retake pass. The attempt it reviews must be saved.
	SaveRetake(ctx context.Context, res session.RetakeResult) (int64, error)

	// Retakes returns the retake passes of sessionID, newest first.
	Retakes(ctx context.Context, sessionID string) ([]RetakeSummary, error)

	// Prune deletes all but the keep most recent attempts, with their retakes.
	Prune(ctx context.Context, keep int) error
}

type resultRepo struct {
	db    *sql.DB
	seq   *sequenceCounter
	clock func() time.Time
}

func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}

func (r *resultRepo) Save(ctx context.Context, res session.ModuleResult) (int64, error) {
	if res.SessionID == "" || res.ModuleID == "" {
		return 0, fmt.Errorf("save result: session and module id are required")
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return 0, fmt.Errorf("marshal result: %w", err)
	}
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return 0, err
	}

	q, args := builder().Insert(tableModuleResults).
		Columns("sequence", "session_id", "module_id", "module_name", "section_kind",
			"total_questions", "answered_questions", "correct_answers", "timed_out",
			"aborted", "time_spent_secs", "completed_at", "payload").
		Values(seqNum, res.SessionID, res.ModuleID, res.ModuleName, string(res.SectionKind),
			res.TotalQuestions, res.AnsweredQuestions, res.CorrectCount(), res.TimedOut,
			res.Aborted, res.TimeSpentSeconds, res.CompletedAtEpochMs, string(payload)).
		Query()
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("save result %s: %w", res.SessionID, ErrDuplicateSession)
		}
		return 0, fmt.Errorf("save result: %w", err)
	}
	return seqNum, nil
}

func (r *resultRepo) Latest(ctx context.Context, moduleID string) (*session.ModuleResult, error) {
	q, args := builder().Select("payload").
		From(entsql.Table(tableModuleResults)).
		Where(entsql.EQ("module_id", moduleID)).
		OrderBy(entsql.Desc("sequence")).
		Limit(1).
		Query()

	res, err := r.scanPayload(ctx, q, args)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest result: %w", err)
	}
	return res, nil
}

func (r *resultRepo) Get(ctx context.Context, sessionID string) (*session.ModuleResult, error) {
	q, args := builder().Select("payload").
		From(entsql.Table(tableModuleResults)).
		Where(entsql.EQ("session_id", sessionID)).
		Query()

	res, err := r.scanPayload(ctx, q, args)
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", sessionID, err)
	}
	return res, nil
}

func (r *resultRepo) scanPayload(ctx context.Context, q string, args []any) (*session.ModuleResult, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var res session.ModuleResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &res, nil
}

func (r *resultRepo) List(ctx context.Context, opts QueryOpts) ([]ResultSummary, error) {
	sel := builder().Select("sequence", "session_id", "module_id", "module_name", "section_kind",
		"total_questions", "answered_questions", "correct_answers", "timed_out", "aborted",
		"time_spent_secs", "completed_at").
		From(entsql.Table(tableModuleResults)).
		OrderBy(entsql.Desc("sequence"))
	if opts.ModuleID != "" {
		sel = sel.Where(entsql.EQ("module_id", opts.ModuleID))
	}
	if opts.Limit > 0 {
		sel = sel.Limit(opts.Limit)
	}
	q, args := sel.Query()

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []ResultSummary
	for rows.Next() {
		var (
			s           ResultSummary
			kind        string
			completedMs int64
		)
		if err := rows.Scan(&s.Sequence, &s.SessionID, &s.ModuleID, &s.ModuleName, &kind,
			&s.TotalQuestions, &s.AnsweredQuestions, &s.CorrectAnswers, &s.TimedOut, &s.Aborted,
			&s.TimeSpentSecs, &completedMs); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		s.SectionKind = module.SectionKind(kind)
		s.CompletedAt = time.UnixMilli(completedMs).UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return out, nil
}

func (r *resultRepo) SaveRetake(ctx context.Context, res session.RetakeResult) (int64, error) {
	payload, err := json.Marshal(res)
	if err != nil {
		return 0, fmt.Errorf("marshal retake: %w", err)
	}
	retaken := 0
	for _, o := range res.Outcomes {
		if o.Retaken {
			retaken++
		}
	}
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return 0, err
	}

	q, args := builder().Insert(tableRetakeResults).
		Columns("sequence", "session_id", "module_id", "items", "retaken", "improved", "created_at", "payload").
		Values(seqNum, res.SessionID, res.ModuleID, len(res.Outcomes), retaken, res.Improved(),
			r.clock().UnixMilli(), string(payload)).
		Query()
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return 0, fmt.Errorf("save retake for %s: %w", res.SessionID, err)
	}
	return seqNum, nil
}

func (r *resultRepo) Retakes(ctx context.Context, sessionID string) ([]RetakeSummary, error) {
	q, args := builder().Select("sequence", "session_id", "module_id", "items", "retaken", "improved", "created_at").
		From(entsql.Table(tableRetakeResults)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy(entsql.Desc("sequence")).
		Query()

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list retakes: %w", err)
	}
	defer rows.Close()

	var out []RetakeSummary
	for rows.Next() {
		var (
			s         RetakeSummary
			createdMs int64
		)
		if err := rows.Scan(&s.Sequence, &s.SessionID, &s.ModuleID, &s.Items, &s.Retaken, &s.Improved, &createdMs); err != nil {
			return nil, fmt.Errorf("scan retake: %w", err)
		}
		s.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *resultRepo) Prune(ctx context.Context, keep int) error {
	// Find the threshold: the sequence of the first attempt not kept.
	q, args := builder().Select("sequence").
		From(entsql.Table(tableModuleResults)).
		OrderBy(entsql.Desc("sequence")).
		Limit(1).
		Offset(keep).
		Query()

	var threshold int64
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&threshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil // fewer than keep attempts exist
	}
	if err != nil {
		return fmt.Errorf("query results for prune: %w", err)
	}

	q, args = builder().Delete(tableModuleResults).
		Where(entsql.LTE("sequence", threshold)).
		Query()
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("prune results: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
