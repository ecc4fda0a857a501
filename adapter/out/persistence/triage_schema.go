// Package persistence provides PostgreSQL adapters implementing the triage
// collaborator ports.
package persistence

import (
	"context"

	"github.com/jmoiron/sqlx"

	"triage_server/pkg/apperr"
)

// Schema is the DDL for every table used by this package. Statements are
// idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS triage_goals (
	id          TEXT        NOT NULL,
	user_id     TEXT        NOT NULL,
	title       TEXT        NOT NULL,
	description TEXT        NOT NULL DEFAULT '',
	category    TEXT        NOT NULL,
	priority    TEXT        NOT NULL,
	keywords    TEXT[]      NOT NULL DEFAULT '{}',
	deadline    TIMESTAMPTZ,
	progress    INTEGER     NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS triage_feedback (
	id              BIGSERIAL   PRIMARY KEY,
	user_id         TEXT        NOT NULL,
	email_id        TEXT        NOT NULL,
	action          TEXT        NOT NULL,
	reclassified_to TEXT,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_triage_feedback_user ON triage_feedback (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS triage_analyses (
	user_id             TEXT        NOT NULL,
	email_id            TEXT        NOT NULL,
	priority_score      INTEGER     NOT NULL,
	confidence_score    INTEGER     NOT NULL,
	factors             JSONB       NOT NULL,
	decision            TEXT        NOT NULL,
	reasoning           TEXT        NOT NULL,
	reevaluation_reason TEXT        NOT NULL DEFAULT '',
	analyzed_at         TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, email_id)
);

CREATE TABLE IF NOT EXISTS triage_emails (
	id              TEXT        NOT NULL,
	user_id         TEXT        NOT NULL,
	thread_id       TEXT        NOT NULL DEFAULT '',
	sender_name     TEXT        NOT NULL DEFAULT '',
	sender_email    TEXT        NOT NULL,
	subject         TEXT        NOT NULL DEFAULT '',
	snippet         TEXT        NOT NULL DEFAULT '',
	body            TEXT        NOT NULL DEFAULT '',
	received_at     TIMESTAMPTZ NOT NULL,
	labels          TEXT[]      NOT NULL DEFAULT '{}',
	is_read         BOOLEAN     NOT NULL DEFAULT FALSE,
	has_attachments BOOLEAN     NOT NULL DEFAULT FALSE,
	PRIMARY KEY (user_id, id)
);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return apperr.DatabaseError("migrate", err)
	}
	return nil
}
