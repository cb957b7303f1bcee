package pgstore

// schema is applied by New on every startup (CREATE TABLE IF NOT
// EXISTS / CREATE INDEX IF NOT EXISTS throughout), so no migration tool is
// involved. Job/trigger/calendar full state lives in a JSONB payload
// column (serialized via trigger.Snapshot / calendar.Snapshot); the plain
// columns alongside it exist purely so AcquireNextTriggers and the pause
// bookkeeping can filter/sort/lock in SQL without deserializing every row.
const schema = `
CREATE TABLE IF NOT EXISTS scheduler_jobs (
	job_group                      TEXT NOT NULL,
	job_name                       TEXT NOT NULL,
	job_class                      TEXT NOT NULL,
	description                    TEXT NOT NULL DEFAULT '',
	durable                        BOOLEAN NOT NULL DEFAULT FALSE,
	requests_recovery              BOOLEAN NOT NULL DEFAULT FALSE,
	persist_data_after_execution   BOOLEAN NOT NULL DEFAULT FALSE,
	disallow_concurrent_execution  BOOLEAN NOT NULL DEFAULT FALSE,
	job_data                       JSONB NOT NULL DEFAULT '{}',
	PRIMARY KEY (job_group, job_name)
);

CREATE TABLE IF NOT EXISTS scheduler_triggers (
	trigger_group   TEXT NOT NULL,
	trigger_name    TEXT NOT NULL,
	job_group       TEXT NOT NULL,
	job_name        TEXT NOT NULL,
	state           TEXT NOT NULL,
	next_fire_time  TIMESTAMPTZ,
	priority        INT NOT NULL DEFAULT 5,
	calendar_name   TEXT NOT NULL DEFAULT '',
	payload         JSONB NOT NULL,
	PRIMARY KEY (trigger_group, trigger_name),
	FOREIGN KEY (job_group, job_name) REFERENCES scheduler_jobs (job_group, job_name)
);

CREATE INDEX IF NOT EXISTS scheduler_triggers_acquire_idx
	ON scheduler_triggers (state, next_fire_time);

CREATE INDEX IF NOT EXISTS scheduler_triggers_job_idx
	ON scheduler_triggers (job_group, job_name);

CREATE TABLE IF NOT EXISTS scheduler_calendars (
	name    TEXT PRIMARY KEY,
	payload JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS scheduler_paused_trigger_groups (
	group_name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS scheduler_paused_job_groups (
	group_name TEXT PRIMARY KEY
);
`
