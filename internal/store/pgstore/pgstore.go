// Package pgstore is the clustered, crash-durable store.JobStore
// implementation (spec.md §4.3/§6.4): every job/trigger/calendar is
// persisted as a JSONB payload (trigger.Snapshot / calendar.Snapshot)
// alongside the handful of plain columns the firing protocol needs to
// filter, order, and row-lock in SQL, grounded on
// internal/infrastructure/postgres's pgxpool setup (db.go) and its
// FOR UPDATE SKIP LOCKED claim query (job_repo.go's Claim) generalized
// from a single jobs table to the full job/trigger/calendar state
// machine. Safe for multiple scheduler instances against one database —
// IsClustered reports true.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cug2104518294/quartz-explained/internal/calendar"
	"github.com/cug2104518294/quartz-explained/internal/domain"
	"github.com/cug2104518294/quartz-explained/internal/store"
	"github.com/cug2104518294/quartz-explained/internal/trigger"
)

// RecoveryDataJobKey/RecoveryDataTriggerKey/RecoveryDataFireTime mirror
// memstore's well-known recovery data-map keys so a job factory that
// checks for them behaves identically regardless of which store backs the
// scheduler.
const (
	RecoveryDataJobKey     = "PG_RECOVERING_JOB_KEY"
	RecoveryDataTriggerKey = "PG_RECOVERING_TRIGGER_KEY"
	RecoveryDataFireTime   = "PG_RECOVERING_FIRE_TIME_IN_MILLISECONDS"
)

// Store is a pgx/v5-backed JobStore.
type Store struct {
	pool             *pgxpool.Pool
	misfireThreshold time.Duration
}

// New constructs a Store and applies the schema (CREATE TABLE IF NOT
// EXISTS throughout — no migration framework, matching this module's
// infrastructure/postgres package).
func New(ctx context.Context, pool *pgxpool.Pool, misfireThreshold time.Duration) (*Store, error) {
	if misfireThreshold <= 0 {
		misfireThreshold = 60 * time.Second
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("pgstore: apply schema: %w", err)
	}
	return &Store{pool: pool, misfireThreshold: misfireThreshold}, nil
}

func (s *Store) SupportsPersistence() bool { return true }
func (s *Store) IsClustered() bool         { return true }

func (s *Store) GetAcquireRetryDelay(failureCount int) time.Duration {
	return store.ClampRetryDelay(time.Duration(failureCount) * 200 * time.Millisecond)
}

// Initialize performs crash recovery across the whole cluster: any
// trigger left ACQUIRED/EXECUTING by a process that died mid-fire is
// reset to WAITING, and jobs that requested recovery get a synthesized
// one-shot recovery fire (spec.md §4.3 "Recovery").
func (s *Store) Initialize(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT t.trigger_group, t.trigger_name, t.job_group, t.job_name, t.payload,
		       j.requests_recovery
		FROM scheduler_triggers t
		JOIN scheduler_jobs j ON j.job_group = t.job_group AND j.job_name = t.job_name
		WHERE t.state IN ('ACQUIRED', 'EXECUTING')
		FOR UPDATE OF t`)
	if err != nil {
		return fmt.Errorf("pgstore: query orphaned triggers: %w", err)
	}

	type orphan struct {
		trg              trigger.Trigger
		jobKey           domain.Key
		requestsRecovery bool
	}
	var orphans []orphan
	for rows.Next() {
		var tg, tn, jg, jn string
		var payload []byte
		var requestsRecovery bool
		if err := rows.Scan(&tg, &tn, &jg, &jn, &payload, &requestsRecovery); err != nil {
			rows.Close()
			return err
		}
		trg, err := unmarshalTrigger(payload)
		if err != nil {
			rows.Close()
			return err
		}
		orphans = append(orphans, orphan{trg: trg, jobKey: domain.NewKey(jg, jn), requestsRecovery: requestsRecovery})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, o := range orphans {
		if o.requestsRecovery {
			if err := s.enqueueRecoveryFire(ctx, tx, o.jobKey, o.trg); err != nil {
				return err
			}
		}
		o.trg.SetState(domain.StateWaiting)
		if err := s.updateTriggerRow(ctx, tx, o.trg); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) enqueueRecoveryFire(ctx context.Context, tx pgx.Tx, jobKey domain.Key, orig trigger.Trigger) error {
	data := domain.DataMap{
		RecoveryDataJobKey:     jobKey.String(),
		RecoveryDataTriggerKey: orig.Key().String(),
		RecoveryDataFireTime:   time.Now().UnixMilli(),
	}
	recoveryKey := domain.NewKey("RECOVERY", orig.Key().String()+"-"+time.Now().Format(time.RFC3339Nano))
	recTrigger := trigger.NewSimpleTrigger(recoveryKey, jobKey, time.Now(), nil, 0, 0, data)
	recTrigger.ComputeFirstFireTime(nil)
	return s.insertTriggerRow(ctx, tx, recTrigger)
}

// --- Mutation ---

func (s *Store) StoreJob(ctx context.Context, job domain.JobDetail, replaceExisting bool) error {
	return s.storeJobTx(ctx, s.pool, job, replaceExisting)
}

func (s *Store) storeJobTx(ctx context.Context, q queryer, job domain.JobDetail, replaceExisting bool) error {
	jobData, err := json.Marshal(job.JobData)
	if err != nil {
		return err
	}
	if replaceExisting {
		_, err = q.Exec(ctx, `
			INSERT INTO scheduler_jobs (job_group, job_name, job_class, description, durable,
				requests_recovery, persist_data_after_execution, disallow_concurrent_execution, job_data)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (job_group, job_name) DO UPDATE SET
				job_class = EXCLUDED.job_class,
				description = EXCLUDED.description,
				durable = EXCLUDED.durable,
				requests_recovery = EXCLUDED.requests_recovery,
				persist_data_after_execution = EXCLUDED.persist_data_after_execution,
				disallow_concurrent_execution = EXCLUDED.disallow_concurrent_execution,
				job_data = EXCLUDED.job_data`,
			job.Key.Group, job.Key.Name, job.JobClass, job.Description, job.Durable,
			job.RequestsRecovery, job.PersistDataAfterExecution, job.DisallowConcurrentExecution, jobData)
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO scheduler_jobs (job_group, job_name, job_class, description, durable,
			requests_recovery, persist_data_after_execution, disallow_concurrent_execution, job_data)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		job.Key.Group, job.Key.Name, job.JobClass, job.Description, job.Durable,
		job.RequestsRecovery, job.PersistDataAfterExecution, job.DisallowConcurrentExecution, jobData)
	if isUniqueViolation(err) {
		return domain.ErrJobAlreadyExists
	}
	return err
}

func (s *Store) StoreTrigger(ctx context.Context, trg trigger.Trigger, replaceExisting bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := s.storeTriggerTx(ctx, tx, trg, replaceExisting); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) storeTriggerTx(ctx context.Context, tx pgx.Tx, trg trigger.Trigger, replaceExisting bool) error {
	var jobExists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM scheduler_jobs WHERE job_group=$1 AND job_name=$2)`,
		trg.JobKey().Group, trg.JobKey().Name).Scan(&jobExists); err != nil {
		return err
	}
	if !jobExists {
		return domain.ErrJobNotFound
	}
	if trg.CalendarName() != "" {
		var calExists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM scheduler_calendars WHERE name=$1)`, trg.CalendarName()).Scan(&calExists); err != nil {
			return err
		}
		if !calExists {
			return domain.ErrCalendarNotFound
		}
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM scheduler_triggers WHERE trigger_group=$1 AND trigger_name=$2)`,
		trg.Key().Group, trg.Key().Name).Scan(&exists); err != nil {
		return err
	}
	if exists && !replaceExisting {
		return domain.ErrTriggerAlreadyExists
	}
	if exists {
		return s.updateTriggerRow(ctx, tx, trg)
	}
	return s.insertTriggerRow(ctx, tx, trg)
}

func (s *Store) StoreJobAndTrigger(ctx context.Context, job domain.JobDetail, trg trigger.Trigger, replaceExisting bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := s.storeJobTx(ctx, tx, job, replaceExisting); err != nil {
		return err
	}
	if err := s.storeTriggerTx(ctx, tx, trg, replaceExisting); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) insertTriggerRow(ctx context.Context, q queryer, trg trigger.Trigger) error {
	payload, err := json.Marshal(trigger.ToSnapshot(trg))
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO scheduler_triggers (trigger_group, trigger_name, job_group, job_name,
			state, next_fire_time, priority, calendar_name, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		trg.Key().Group, trg.Key().Name, trg.JobKey().Group, trg.JobKey().Name,
		string(trg.State()), trg.NextFireTime(), trg.Priority(), trg.CalendarName(), payload)
	return err
}

func (s *Store) updateTriggerRow(ctx context.Context, q queryer, trg trigger.Trigger) error {
	payload, err := json.Marshal(trigger.ToSnapshot(trg))
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		UPDATE scheduler_triggers SET
			job_group=$3, job_name=$4, state=$5, next_fire_time=$6, priority=$7, calendar_name=$8, payload=$9
		WHERE trigger_group=$1 AND trigger_name=$2`,
		trg.Key().Group, trg.Key().Name, trg.JobKey().Group, trg.JobKey().Name,
		string(trg.State()), trg.NextFireTime(), trg.Priority(), trg.CalendarName(), payload)
	return err
}

func (s *Store) RemoveJob(ctx context.Context, key domain.Key) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM scheduler_triggers WHERE job_group=$1 AND job_name=$2`, key.Group, key.Name); err != nil {
		return false, err
	}
	cmd, err := tx.Exec(ctx, `DELETE FROM scheduler_jobs WHERE job_group=$1 AND job_name=$2`, key.Group, key.Name)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 0 {
		return false, nil
	}
	return true, tx.Commit(ctx)
}

func (s *Store) RemoveTrigger(ctx context.Context, key domain.Key) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)
	ok, err := s.removeTriggerTx(ctx, tx, key)
	if err != nil {
		return false, err
	}
	return ok, tx.Commit(ctx)
}

func (s *Store) removeTriggerTx(ctx context.Context, tx pgx.Tx, key domain.Key) (bool, error) {
	var jg, jn string
	err := tx.QueryRow(ctx, `SELECT job_group, job_name FROM scheduler_triggers WHERE trigger_group=$1 AND trigger_name=$2`,
		key.Group, key.Name).Scan(&jg, &jn)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM scheduler_triggers WHERE trigger_group=$1 AND trigger_name=$2`, key.Group, key.Name); err != nil {
		return false, err
	}
	if err := s.deleteJobIfOrphaned(ctx, tx, domain.NewKey(jg, jn)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) deleteJobIfOrphaned(ctx context.Context, tx pgx.Tx, jobKey domain.Key) error {
	var durable bool
	err := tx.QueryRow(ctx, `SELECT durable FROM scheduler_jobs WHERE job_group=$1 AND job_name=$2`, jobKey.Group, jobKey.Name).Scan(&durable)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil || durable {
		return err
	}
	var remaining int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM scheduler_triggers WHERE job_group=$1 AND job_name=$2`, jobKey.Group, jobKey.Name).Scan(&remaining); err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	_, err = tx.Exec(ctx, `DELETE FROM scheduler_jobs WHERE job_group=$1 AND job_name=$2`, jobKey.Group, jobKey.Name)
	return err
}

func (s *Store) ReplaceTrigger(ctx context.Context, key domain.Key, newTrigger trigger.Trigger) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM scheduler_triggers WHERE trigger_group=$1 AND trigger_name=$2)`,
		key.Group, key.Name).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	var jobExists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM scheduler_jobs WHERE job_group=$1 AND job_name=$2)`,
		newTrigger.JobKey().Group, newTrigger.JobKey().Name).Scan(&jobExists); err != nil {
		return false, err
	}
	if !jobExists {
		return false, domain.ErrJobNotFound
	}

	if newTrigger.Key() != key {
		if _, err := tx.Exec(ctx, `DELETE FROM scheduler_triggers WHERE trigger_group=$1 AND trigger_name=$2`, key.Group, key.Name); err != nil {
			return false, err
		}
		if err := s.insertTriggerRow(ctx, tx, newTrigger); err != nil {
			return false, err
		}
	} else if err := s.updateTriggerRow(ctx, tx, newTrigger); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (s *Store) PauseTrigger(ctx context.Context, key domain.Key) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	trg, ok, err := s.retrieveTriggerTx(ctx, tx, key)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrTriggerNotFound
	}
	pauseTriggerInPlace(trg)
	if err := s.updateTriggerRow(ctx, tx, trg); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func pauseTriggerInPlace(trg trigger.Trigger) {
	switch trg.State() {
	case domain.StateBlocked:
		trg.SetState(domain.StatePausedBlocked)
	case domain.StateComplete, domain.StateError:
	default:
		trg.SetState(domain.StatePaused)
	}
}

func resumeTriggerInPlace(trg trigger.Trigger) {
	switch trg.State() {
	case domain.StatePausedBlocked:
		trg.SetState(domain.StateBlocked)
	case domain.StatePaused:
		trg.SetState(domain.StateWaiting)
	}
}

func (s *Store) PauseTriggerGroup(ctx context.Context, m store.Matcher) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	groups, err := s.eachMatchingTrigger(ctx, tx, m, pauseTriggerInPlace)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if _, err := tx.Exec(ctx, `INSERT INTO scheduler_paused_trigger_groups (group_name) VALUES ($1) ON CONFLICT DO NOTHING`, g); err != nil {
			return nil, err
		}
	}
	return groups, tx.Commit(ctx)
}

func (s *Store) eachMatchingTrigger(ctx context.Context, tx pgx.Tx, m store.Matcher, mutate func(trigger.Trigger)) ([]string, error) {
	where, args := matcherClause("trigger_group", m)
	rows, err := tx.Query(ctx, `SELECT trigger_group, trigger_name, payload FROM scheduler_triggers WHERE `+where+` FOR UPDATE`, args...)
	if err != nil {
		return nil, err
	}
	type row struct {
		group, name string
		trg         trigger.Trigger
	}
	var matched []row
	for rows.Next() {
		var tg, tn string
		var payload []byte
		if err := rows.Scan(&tg, &tn, &payload); err != nil {
			rows.Close()
			return nil, err
		}
		trg, err := unmarshalTrigger(payload)
		if err != nil {
			rows.Close()
			return nil, err
		}
		matched = append(matched, row{group: tg, name: tn, trg: trg})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	groupSet := map[string]bool{}
	for _, r := range matched {
		mutate(r.trg)
		if err := s.updateTriggerRow(ctx, tx, r.trg); err != nil {
			return nil, err
		}
		groupSet[r.group] = true
	}
	return sortedSet(groupSet), nil
}

func (s *Store) PauseJob(ctx context.Context, key domain.Key) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := s.mutateJobTriggers(ctx, tx, key, pauseTriggerInPlace); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) mutateJobTriggers(ctx context.Context, tx pgx.Tx, jobKey domain.Key, mutate func(trigger.Trigger)) error {
	var jobExists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM scheduler_jobs WHERE job_group=$1 AND job_name=$2)`,
		jobKey.Group, jobKey.Name).Scan(&jobExists); err != nil {
		return err
	}
	if !jobExists {
		return domain.ErrJobNotFound
	}
	rows, err := tx.Query(ctx, `SELECT trigger_group, trigger_name, payload FROM scheduler_triggers WHERE job_group=$1 AND job_name=$2 FOR UPDATE`,
		jobKey.Group, jobKey.Name)
	if err != nil {
		return err
	}
	var triggers []trigger.Trigger
	for rows.Next() {
		var payload []byte
		var tg, tn string
		if err := rows.Scan(&tg, &tn, &payload); err != nil {
			rows.Close()
			return err
		}
		trg, err := unmarshalTrigger(payload)
		if err != nil {
			rows.Close()
			return err
		}
		triggers = append(triggers, trg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, trg := range triggers {
		mutate(trg)
		if err := s.updateTriggerRow(ctx, tx, trg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) PauseJobGroup(ctx context.Context, m store.Matcher) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	groups, err := s.mutateJobGroupTriggers(ctx, tx, m, pauseTriggerInPlace)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if _, err := tx.Exec(ctx, `INSERT INTO scheduler_paused_job_groups (group_name) VALUES ($1) ON CONFLICT DO NOTHING`, g); err != nil {
			return nil, err
		}
	}
	return groups, tx.Commit(ctx)
}

func (s *Store) mutateJobGroupTriggers(ctx context.Context, tx pgx.Tx, m store.Matcher, mutate func(trigger.Trigger)) ([]string, error) {
	where, args := matcherClause("job_group", m)
	rows, err := tx.Query(ctx, `SELECT DISTINCT job_group, job_name FROM scheduler_jobs WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	var keys []domain.Key
	for rows.Next() {
		var jg, jn string
		if err := rows.Scan(&jg, &jn); err != nil {
			rows.Close()
			return nil, err
		}
		keys = append(keys, domain.NewKey(jg, jn))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	groupSet := map[string]bool{}
	for _, k := range keys {
		groupSet[k.Group] = true
		if err := s.mutateJobTriggers(ctx, tx, k, mutate); err != nil {
			return nil, err
		}
	}
	return sortedSet(groupSet), nil
}

func (s *Store) ResumeTrigger(ctx context.Context, key domain.Key) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	trg, ok, err := s.retrieveTriggerTx(ctx, tx, key)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrTriggerNotFound
	}
	resumeTriggerInPlace(trg)
	if err := s.updateTriggerRow(ctx, tx, trg); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ResumeTriggerGroup(ctx context.Context, m store.Matcher) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	groups, err := s.eachMatchingTrigger(ctx, tx, m, resumeTriggerInPlace)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if _, err := tx.Exec(ctx, `DELETE FROM scheduler_paused_trigger_groups WHERE group_name=$1`, g); err != nil {
			return nil, err
		}
	}
	return groups, tx.Commit(ctx)
}

func (s *Store) ResumeJob(ctx context.Context, key domain.Key) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := s.mutateJobTriggers(ctx, tx, key, resumeTriggerInPlace); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ResumeJobGroup(ctx context.Context, m store.Matcher) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	groups, err := s.mutateJobGroupTriggers(ctx, tx, m, resumeTriggerInPlace)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if _, err := tx.Exec(ctx, `DELETE FROM scheduler_paused_job_groups WHERE group_name=$1`, g); err != nil {
			return nil, err
		}
	}
	return groups, tx.Commit(ctx)
}

func (s *Store) PauseAll(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := s.eachMatchingTrigger(ctx, tx, store.MatchAnyGroup(), pauseTriggerInPlace); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ResumeAll(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM scheduler_paused_trigger_groups`); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM scheduler_paused_job_groups`); err != nil {
		return err
	}
	if _, err := s.eachMatchingTrigger(ctx, tx, store.MatchAnyGroup(), resumeTriggerInPlace); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) StoreCalendar(ctx context.Context, name string, cal domain.Calendar, replaceExisting, updateTriggers bool) error {
	snap, err := calendar.ToSnapshot(cal)
	if err != nil {
		return fmt.Errorf("pgstore: %w", err)
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if replaceExisting {
		if _, err := tx.Exec(ctx, `
			INSERT INTO scheduler_calendars (name, payload) VALUES ($1,$2)
			ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload`, name, payload); err != nil {
			return err
		}
	} else {
		if _, err := tx.Exec(ctx, `INSERT INTO scheduler_calendars (name, payload) VALUES ($1,$2)`, name, payload); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrJobAlreadyExists
			}
			return err
		}
	}

	if updateTriggers {
		rows, err := tx.Query(ctx, `SELECT trigger_group, trigger_name, payload FROM scheduler_triggers WHERE calendar_name=$1 FOR UPDATE`, name)
		if err != nil {
			return err
		}
		var triggers []trigger.Trigger
		for rows.Next() {
			var tg, tn string
			var p []byte
			if err := rows.Scan(&tg, &tn, &p); err != nil {
				rows.Close()
				return err
			}
			trg, err := unmarshalTrigger(p)
			if err != nil {
				rows.Close()
				return err
			}
			triggers = append(triggers, trg)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, trg := range triggers {
			trg.ComputeFirstFireTime(cal)
			if err := s.updateTriggerRow(ctx, tx, trg); err != nil {
				return err
			}
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) RemoveCalendar(ctx context.Context, name string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var inUse bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM scheduler_triggers WHERE calendar_name=$1)`, name).Scan(&inUse); err != nil {
		return false, err
	}
	if inUse {
		return false, domain.ErrCalendarInUse
	}
	cmd, err := tx.Exec(ctx, `DELETE FROM scheduler_calendars WHERE name=$1`, name)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 0 {
		return false, nil
	}
	return true, tx.Commit(ctx)
}

func (s *Store) ClearAllSchedulingData(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	for _, stmt := range []string{
		`DELETE FROM scheduler_triggers`,
		`DELETE FROM scheduler_jobs`,
		`DELETE FROM scheduler_calendars`,
		`DELETE FROM scheduler_paused_trigger_groups`,
		`DELETE FROM scheduler_paused_job_groups`,
	} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ResetTriggerFromErrorState(ctx context.Context, key domain.Key) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	trg, ok, err := s.retrieveTriggerTx(ctx, tx, key)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrTriggerNotFound
	}
	if trg.State() != domain.StateError {
		return nil
	}

	var jobGroupPaused, triggerGroupPaused bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM scheduler_paused_trigger_groups WHERE group_name=$1)`, key.Group).Scan(&triggerGroupPaused); err != nil {
		return err
	}
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM scheduler_paused_job_groups WHERE group_name=$1)`, trg.JobKey().Group).Scan(&jobGroupPaused); err != nil {
		return err
	}
	if triggerGroupPaused || jobGroupPaused {
		trg.SetState(domain.StatePaused)
	} else {
		trg.SetState(domain.StateWaiting)
	}
	if err := s.updateTriggerRow(ctx, tx, trg); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- Query ---

func (s *Store) RetrieveJob(ctx context.Context, key domain.Key) (domain.JobDetail, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT job_group, job_name, job_class, description, durable, requests_recovery,
		       persist_data_after_execution, disallow_concurrent_execution, job_data
		FROM scheduler_jobs WHERE job_group=$1 AND job_name=$2`, key.Group, key.Name)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.JobDetail{}, false, nil
	}
	if err != nil {
		return domain.JobDetail{}, false, err
	}
	return job, true, nil
}

func (s *Store) RetrieveTrigger(ctx context.Context, key domain.Key) (trigger.Trigger, bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM scheduler_triggers WHERE trigger_group=$1 AND trigger_name=$2`, key.Group, key.Name).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	trg, err := unmarshalTrigger(payload)
	if err != nil {
		return nil, false, err
	}
	return trg, true, nil
}

func (s *Store) retrieveTriggerTx(ctx context.Context, tx pgx.Tx, key domain.Key) (trigger.Trigger, bool, error) {
	var payload []byte
	err := tx.QueryRow(ctx, `SELECT payload FROM scheduler_triggers WHERE trigger_group=$1 AND trigger_name=$2 FOR UPDATE`, key.Group, key.Name).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	trg, err := unmarshalTrigger(payload)
	if err != nil {
		return nil, false, err
	}
	return trg, true, nil
}

func (s *Store) CheckJobExists(ctx context.Context, key domain.Key) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM scheduler_jobs WHERE job_group=$1 AND job_name=$2)`, key.Group, key.Name).Scan(&exists)
	return exists, err
}

func (s *Store) CheckTriggerExists(ctx context.Context, key domain.Key) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM scheduler_triggers WHERE trigger_group=$1 AND trigger_name=$2)`, key.Group, key.Name).Scan(&exists)
	return exists, err
}

func (s *Store) GetJobKeys(ctx context.Context, m store.Matcher) ([]domain.Key, error) {
	where, args := matcherClause("job_group", m)
	rows, err := s.pool.Query(ctx, `SELECT job_group, job_name FROM scheduler_jobs WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Key
	for rows.Next() {
		var g, n string
		if err := rows.Scan(&g, &n); err != nil {
			return nil, err
		}
		out = append(out, domain.NewKey(g, n))
	}
	sortKeys(out)
	return out, rows.Err()
}

func (s *Store) GetTriggerKeys(ctx context.Context, m store.Matcher) ([]domain.Key, error) {
	where, args := matcherClause("trigger_group", m)
	rows, err := s.pool.Query(ctx, `SELECT trigger_group, trigger_name FROM scheduler_triggers WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Key
	for rows.Next() {
		var g, n string
		if err := rows.Scan(&g, &n); err != nil {
			return nil, err
		}
		out = append(out, domain.NewKey(g, n))
	}
	sortKeys(out)
	return out, rows.Err()
}

func (s *Store) GetJobGroupNames(ctx context.Context) ([]string, error) {
	return s.distinctGroups(ctx, "scheduler_jobs", "job_group")
}

func (s *Store) GetTriggerGroupNames(ctx context.Context) ([]string, error) {
	return s.distinctGroups(ctx, "scheduler_triggers", "trigger_group")
}

func (s *Store) distinctGroups(ctx context.Context, table, column string) ([]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT DISTINCT %s FROM %s ORDER BY %s`, column, table, column))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) GetTriggersForJob(ctx context.Context, jobKey domain.Key) ([]trigger.Trigger, error) {
	rows, err := s.pool.Query(ctx, `SELECT payload FROM scheduler_triggers WHERE job_group=$1 AND job_name=$2`, jobKey.Group, jobKey.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []trigger.Trigger
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		trg, err := unmarshalTrigger(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, trg)
	}
	return out, rows.Err()
}

func (s *Store) GetTriggerState(ctx context.Context, key domain.Key) (domain.TriggerState, error) {
	var state string
	err := s.pool.QueryRow(ctx, `SELECT state FROM scheduler_triggers WHERE trigger_group=$1 AND trigger_name=$2`, key.Group, key.Name).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StateNone, nil
	}
	if err != nil {
		return "", err
	}
	return domain.TriggerState(state), nil
}

func (s *Store) GetCalendar(ctx context.Context, name string) (domain.Calendar, bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM scheduler_calendars WHERE name=$1`, name).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var snap calendar.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, false, err
	}
	cal, err := calendar.FromSnapshot(snap)
	if err != nil {
		return nil, false, err
	}
	return cal, true, nil
}

func (s *Store) GetCalendarNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM scheduler_calendars ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) GetPausedTriggerGroups(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT group_name FROM scheduler_paused_trigger_groups ORDER BY group_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) GetNumberOfJobs(ctx context.Context) (int, error) {
	return s.count(ctx, "scheduler_jobs")
}

func (s *Store) GetNumberOfTriggers(ctx context.Context) (int, error) {
	return s.count(ctx, "scheduler_triggers")
}

func (s *Store) GetNumberOfCalendars(ctx context.Context) (int, error) {
	return s.count(ctx, "scheduler_calendars")
}

func (s *Store) count(ctx context.Context, table string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, table)).Scan(&n)
	return n, err
}

// --- Firing protocol ---

// AcquireNextTriggers implements spec.md §4.3.1 against Postgres: first
// applies misfire handling to overdue WAITING triggers, then locks and
// claims up to maxCount due triggers with FOR UPDATE SKIP LOCKED so
// multiple scheduler instances never acquire the same trigger twice.
// Ordering ties (equal next_fire_time and priority) are broken by group
// then name rather than trigger.Key.Less's DefaultGroup-first rule — an
// acceptable approximation since it only affects simultaneous same-
// priority fires, never correctness of which triggers fire.
func (s *Store) AcquireNextTriggers(ctx context.Context, noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]trigger.Trigger, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.applyMisfires(ctx, tx); err != nil {
		return nil, err
	}

	cutoff := noLaterThan.Add(timeWindow)
	if maxCount <= 0 {
		maxCount = 1
	}
	rows, err := tx.Query(ctx, `
		SELECT trigger_group, trigger_name, payload FROM scheduler_triggers
		WHERE state='WAITING' AND next_fire_time IS NOT NULL AND next_fire_time <= $1
		ORDER BY next_fire_time ASC, priority DESC, trigger_group ASC, trigger_name ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, cutoff, maxCount)
	if err != nil {
		return nil, err
	}
	var acquired []trigger.Trigger
	for rows.Next() {
		var tg, tn string
		var payload []byte
		if err := rows.Scan(&tg, &tn, &payload); err != nil {
			rows.Close()
			return nil, err
		}
		trg, err := unmarshalTrigger(payload)
		if err != nil {
			rows.Close()
			return nil, err
		}
		acquired = append(acquired, trg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, trg := range acquired {
		trg.SetState(domain.StateAcquired)
		if err := s.updateTriggerRow(ctx, tx, trg); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return acquired, nil
}

// applyMisfires locks every overdue WAITING trigger, advances it past its
// misfire instruction, and persists the result — run inside the same
// transaction as the acquire query so a trigger never gets acquired with
// a stale nextFireTime.
func (s *Store) applyMisfires(ctx context.Context, tx pgx.Tx) error {
	now := time.Now()
	threshold := now.Add(-s.misfireThreshold)
	rows, err := tx.Query(ctx, `
		SELECT trigger_group, trigger_name, payload FROM scheduler_triggers
		WHERE state='WAITING' AND next_fire_time IS NOT NULL AND next_fire_time < $1
		FOR UPDATE SKIP LOCKED`, threshold)
	if err != nil {
		return err
	}
	var overdue []trigger.Trigger
	for rows.Next() {
		var tg, tn string
		var payload []byte
		if err := rows.Scan(&tg, &tn, &payload); err != nil {
			rows.Close()
			return err
		}
		trg, err := unmarshalTrigger(payload)
		if err != nil {
			rows.Close()
			return err
		}
		overdue = append(overdue, trg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, trg := range overdue {
		cal, err := s.calendarForTx(ctx, tx, trg.CalendarName())
		if err != nil {
			return err
		}
		trg.UpdateAfterMisfire(cal)
		if trg.NextFireTime() == nil {
			trg.SetState(domain.StateComplete)
		}
		if err := s.updateTriggerRow(ctx, tx, trg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) calendarForTx(ctx context.Context, tx pgx.Tx, name string) (domain.Calendar, error) {
	if name == "" {
		return nil, nil
	}
	var payload []byte
	err := tx.QueryRow(ctx, `SELECT payload FROM scheduler_calendars WHERE name=$1`, name).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap calendar.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, err
	}
	return calendar.FromSnapshot(snap)
}

func (s *Store) ReleaseAcquiredTrigger(ctx context.Context, trg trigger.Trigger) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	current, ok, err := s.retrieveTriggerTx(ctx, tx, trg.Key())
	if err != nil {
		return err
	}
	if !ok {
		return nil // idempotent: already gone.
	}
	if current.State() == domain.StateAcquired {
		current.SetState(domain.StateWaiting)
		if err := s.updateTriggerRow(ctx, tx, current); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// TriggersFired implements spec.md §4.3.3: each acquired trigger is
// re-validated, advanced past its fire, and moved to EXECUTING; a job
// with DisallowConcurrentExecution blocks its sibling triggers for the
// duration.
func (s *Store) TriggersFired(ctx context.Context, triggers []trigger.Trigger) ([]store.FiredResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	results := make([]store.FiredResult, 0, len(triggers))
	for _, want := range triggers {
		current, ok, err := s.retrieveTriggerTx(ctx, tx, want.Key())
		if err != nil {
			return nil, err
		}
		if !ok || current.State() != domain.StateAcquired {
			results = append(results, store.FiredResult{})
			continue
		}
		nf := current.NextFireTime()
		if nf == nil || nf.After(time.Now().Add(time.Second)) {
			results = append(results, store.FiredResult{})
			continue
		}

		jobRow := tx.QueryRow(ctx, `
			SELECT job_group, job_name, job_class, description, durable, requests_recovery,
			       persist_data_after_execution, disallow_concurrent_execution, job_data
			FROM scheduler_jobs WHERE job_group=$1 AND job_name=$2`, current.JobKey().Group, current.JobKey().Name)
		job, err := scanJob(jobRow)
		if errors.Is(err, pgx.ErrNoRows) {
			results = append(results, store.FiredResult{})
			continue
		}
		if err != nil {
			return nil, err
		}

		cal, err := s.calendarForTx(ctx, tx, current.CalendarName())
		if err != nil {
			return nil, err
		}
		scheduled := *nf
		prev := current.PreviousFireTime()
		current.Triggered(cal)
		next := current.NextFireTime()
		current.SetState(domain.StateExecuting)
		if err := s.updateTriggerRow(ctx, tx, current); err != nil {
			return nil, err
		}

		_, isRecovering := current.Data()[RecoveryDataTriggerKey]

		results = append(results, store.FiredResult{Bundle: &store.FiredBundle{
			Job:               job,
			Trigger:           current,
			Calendar:          cal,
			FireTime:          time.Now(),
			ScheduledFireTime: scheduled,
			PrevFireTime:      prev,
			NextFireTime:      next,
			IsRecovering:      isRecovering,
		}})

		if job.DisallowConcurrentExecution {
			if err := s.blockSiblings(ctx, tx, job.Key, current.Key()); err != nil {
				return nil, err
			}
		}
	}

	return results, tx.Commit(ctx)
}

func (s *Store) blockSiblings(ctx context.Context, tx pgx.Tx, jobKey domain.Key, firing domain.Key) error {
	rows, err := tx.Query(ctx, `
		SELECT trigger_group, trigger_name, payload FROM scheduler_triggers
		WHERE job_group=$1 AND job_name=$2 AND NOT (trigger_group=$3 AND trigger_name=$4)
		FOR UPDATE`, jobKey.Group, jobKey.Name, firing.Group, firing.Name)
	if err != nil {
		return err
	}
	var siblings []trigger.Trigger
	for rows.Next() {
		var tg, tn string
		var payload []byte
		if err := rows.Scan(&tg, &tn, &payload); err != nil {
			rows.Close()
			return err
		}
		trg, err := unmarshalTrigger(payload)
		if err != nil {
			rows.Close()
			return err
		}
		siblings = append(siblings, trg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, trg := range siblings {
		switch trg.State() {
		case domain.StateWaiting:
			trg.SetState(domain.StateBlocked)
		case domain.StatePaused:
			trg.SetState(domain.StatePausedBlocked)
		default:
			continue
		}
		if err := s.updateTriggerRow(ctx, tx, trg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) unblockSiblings(ctx context.Context, tx pgx.Tx, jobKey domain.Key) error {
	rows, err := tx.Query(ctx, `SELECT trigger_group, trigger_name, payload FROM scheduler_triggers WHERE job_group=$1 AND job_name=$2 FOR UPDATE`,
		jobKey.Group, jobKey.Name)
	if err != nil {
		return err
	}
	var blocked []trigger.Trigger
	for rows.Next() {
		var tg, tn string
		var payload []byte
		if err := rows.Scan(&tg, &tn, &payload); err != nil {
			rows.Close()
			return err
		}
		trg, err := unmarshalTrigger(payload)
		if err != nil {
			rows.Close()
			return err
		}
		blocked = append(blocked, trg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, trg := range blocked {
		switch trg.State() {
		case domain.StateBlocked:
			trg.SetState(domain.StateWaiting)
		case domain.StatePausedBlocked:
			trg.SetState(domain.StatePaused)
		default:
			continue
		}
		if err := s.updateTriggerRow(ctx, tx, trg); err != nil {
			return err
		}
	}
	return nil
}

// TriggeredJobComplete implements spec.md §4.3.4.
func (s *Store) TriggeredJobComplete(ctx context.Context, trg trigger.Trigger, job domain.JobDetail, instruction domain.CompletionInstruction, newData domain.DataMap) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var jobStillExists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM scheduler_jobs WHERE job_group=$1 AND job_name=$2)`, job.Key.Group, job.Key.Name).Scan(&jobStillExists); err != nil {
		return err
	}
	if jobStillExists && job.PersistDataAfterExecution && newData != nil {
		jobData, err := json.Marshal(newData)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE scheduler_jobs SET job_data=$3 WHERE job_group=$1 AND job_name=$2`, job.Key.Group, job.Key.Name, jobData); err != nil {
			return err
		}
	}

	if job.DisallowConcurrentExecution {
		if err := s.unblockSiblings(ctx, tx, job.Key); err != nil {
			return err
		}
	}

	current, ok, err := s.retrieveTriggerTx(ctx, tx, trg.Key())
	if err != nil {
		return err
	}

	switch instruction {
	case domain.DeleteTrigger:
		if ok {
			if _, err := s.removeTriggerTx(ctx, tx, trg.Key()); err != nil {
				return err
			}
		}
	case domain.SetTriggerComplete:
		if ok {
			current.SetState(domain.StateComplete)
			if err := s.updateTriggerRow(ctx, tx, current); err != nil {
				return err
			}
			if err := s.deleteJobIfOrphaned(ctx, tx, job.Key); err != nil {
				return err
			}
		}
	case domain.SetTriggerError:
		if ok {
			current.SetState(domain.StateError)
			if err := s.updateTriggerRow(ctx, tx, current); err != nil {
				return err
			}
		}
	case domain.SetAllJobTriggersComplete:
		if err := s.setAllJobTriggersState(ctx, tx, job.Key, domain.StateComplete); err != nil {
			return err
		}
	case domain.SetAllJobTriggersError:
		if err := s.setAllJobTriggersState(ctx, tx, job.Key, domain.StateError); err != nil {
			return err
		}
	case domain.ReExecuteJob:
		// Handled by the job run shell refiring in place; nothing to persist.
	default: // NoOp
		if ok && current.State() == domain.StateExecuting {
			if current.NextFireTime() == nil {
				current.SetState(domain.StateComplete)
				if err := s.updateTriggerRow(ctx, tx, current); err != nil {
					return err
				}
				if err := s.deleteJobIfOrphaned(ctx, tx, job.Key); err != nil {
					return err
				}
			} else {
				current.SetState(domain.StateWaiting)
				if err := s.updateTriggerRow(ctx, tx, current); err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) setAllJobTriggersState(ctx context.Context, tx pgx.Tx, jobKey domain.Key, state domain.TriggerState) error {
	return s.mutateJobTriggers(ctx, tx, jobKey, func(trg trigger.Trigger) { trg.SetState(state) })
}

// --- shared helpers ---

type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func unmarshalTrigger(payload []byte) (trigger.Trigger, error) {
	var snap trigger.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, err
	}
	return trigger.FromSnapshot(snap)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.JobDetail, error) {
	var (
		jd                                                       domain.JobDetail
		group, name                                              string
		durable, requestsRecovery, persistData, disallowConcurrent bool
		jobData                                                  []byte
	)
	if err := row.Scan(&group, &name, &jd.JobClass, &jd.Description, &durable, &requestsRecovery,
		&persistData, &disallowConcurrent, &jobData); err != nil {
		return domain.JobDetail{}, err
	}
	jd.Key = domain.NewKey(group, name)
	jd.Durable = durable
	jd.RequestsRecovery = requestsRecovery
	jd.PersistDataAfterExecution = persistData
	jd.DisallowConcurrentExecution = disallowConcurrent
	if len(jobData) > 0 {
		if err := json.Unmarshal(jobData, &jd.JobData); err != nil {
			return domain.JobDetail{}, err
		}
	}
	if jd.JobData == nil {
		jd.JobData = domain.DataMap{}
	}
	return jd, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func matcherClause(groupColumn string, m store.Matcher) (string, []any) {
	if m.Group != "" {
		return groupColumn + " = $1", []any{m.Group}
	}
	if m.GroupPrefix != "" {
		return groupColumn + " LIKE $1", []any{m.GroupPrefix + "%"}
	}
	return "TRUE", nil
}

func sortKeys(keys []domain.Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var _ store.JobStore = (*Store)(nil)
