package store

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

const (
	tableModuleResults = "module_results"
	tableRetakeResults = "retake_results"
)

// migrate creates the result tables and their indexes if they are missing.
func migrate(ctx context.Context, drv *entsql.Driver) error {
	b := entsql.Dialect(dialect.SQLite)

	moduleResults := b.CreateTable(tableModuleResults).IfNotExists().Columns(
		entsql.Column("id").Type("INTEGER").Attr("PRIMARY KEY AUTOINCREMENT"),
		entsql.Column("sequence").Type("INTEGER").Attr("NOT NULL"),
		entsql.Column("session_id").Type("TEXT").Attr("NOT NULL UNIQUE"),
		entsql.Column("module_id").Type("TEXT").Attr("NOT NULL"),
		entsql.Column("module_name").Type("TEXT").Attr("NOT NULL DEFAULT ''"),
		entsql.Column("section_kind").Type("TEXT").Attr("NOT NULL"),
		entsql.Column("total_questions").Type("INTEGER").Attr("NOT NULL"),
		entsql.Column("answered_questions").Type("INTEGER").Attr("NOT NULL"),
		entsql.Column("correct_answers").Type("INTEGER").Attr("NOT NULL"),
		entsql.Column("timed_out").Type("BOOLEAN").Attr("NOT NULL"),
		entsql.Column("aborted").Type("BOOLEAN").Attr("NOT NULL"),
		entsql.Column("time_spent_secs").Type("INTEGER").Attr("NOT NULL"),
		entsql.Column("completed_at").Type("INTEGER").Attr("NOT NULL"),
		entsql.Column("payload").Type("TEXT").Attr("NOT NULL"),
	)

	retakeResults := b.CreateTable(tableRetakeResults).IfNotExists().Columns(
		entsql.Column("id").Type("INTEGER").Attr("PRIMARY KEY AUTOINCREMENT"),
		entsql.Column("sequence").Type("INTEGER").Attr("NOT NULL"),
		entsql.Column("session_id").Type("TEXT").
			Attr("NOT NULL REFERENCES " + tableModuleResults + "(session_id) ON DELETE CASCADE"),
		entsql.Column("module_id").Type("TEXT").Attr("NOT NULL"),
		entsql.Column("items").Type("INTEGER").Attr("NOT NULL"),
		entsql.Column("retaken").Type("INTEGER").Attr("NOT NULL"),
		entsql.Column("improved").Type("INTEGER").Attr("NOT NULL"),
		entsql.Column("created_at").Type("INTEGER").Attr("NOT NULL"),
		entsql.Column("payload").Type("TEXT").Attr("NOT NULL"),
	)

	stmts := []entsql.Querier{moduleResults, retakeResults}
	for _, st := range stmts {
		q, args := st.Query()
		if _, err := drv.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS module_results_module_seq ON module_results (module_id, sequence)`,
		`CREATE INDEX IF NOT EXISTS retake_results_session ON retake_results (session_id)`,
	}
	for _, q := range indexes {
		if _, err := drv.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
