package repository

// schema is applied on every Open. Timestamps are unix milliseconds.
const schema = `
CREATE TABLE IF NOT EXISTS brokers (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	email       TEXT NOT NULL DEFAULT '',
	broker_type TEXT,
	on_call     INTEGER NOT NULL DEFAULT 0,
	active      INTEGER NOT NULL DEFAULT 1,
	score_level INTEGER NOT NULL DEFAULT 0,
	score_xp    INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS broker_areas (
	broker_id TEXT NOT NULL REFERENCES brokers(id) ON DELETE CASCADE,
	state     TEXT NOT NULL,
	city      TEXT NOT NULL,
	PRIMARY KEY (broker_id, state, city)
);
CREATE INDEX IF NOT EXISTS idx_broker_areas_location ON broker_areas(state, city);

CREATE TABLE IF NOT EXISTS clients (
	id    TEXT PRIMARY KEY,
	name  TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS properties (
	id              INTEGER PRIMARY KEY,
	code            TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	state           TEXT NOT NULL DEFAULT '',
	city            TEXT NOT NULL DEFAULT '',
	owner_broker_id TEXT REFERENCES brokers(id)
);

CREATE TABLE IF NOT EXISTS prospects (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	property_id        INTEGER NOT NULL REFERENCES properties(id),
	client_id          TEXT NOT NULL REFERENCES clients(id),
	message            TEXT NOT NULL DEFAULT '',
	contact_preference TEXT NOT NULL DEFAULT '',
	created_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS assignments (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	prospect_id INTEGER NOT NULL REFERENCES prospects(id),
	broker_id   TEXT NOT NULL REFERENCES brokers(id),
	status      TEXT NOT NULL,
	motive      TEXT,
	expires_at  INTEGER,
	accepted_at INTEGER,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_assignments_active
	ON assignments(prospect_id) WHERE status IN ('assigned', 'accepted');
CREATE INDEX IF NOT EXISTS idx_assignments_deadline ON assignments(status, expires_at);
CREATE INDEX IF NOT EXISTS idx_assignments_broker ON assignments(broker_id, created_at);
CREATE INDEX IF NOT EXISTS idx_assignments_prospect ON assignments(prospect_id, created_at);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value INTEGER
);

CREATE TABLE IF NOT EXISTS audit_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	action        TEXT NOT NULL,
	prospect_id   INTEGER,
	assignment_id INTEGER,
	broker_id     TEXT,
	detail        TEXT,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_prospect ON audit_log(prospect_id, created_at);
`
