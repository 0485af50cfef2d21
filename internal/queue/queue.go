package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Queue names used by the pipeline.
const (
	// FeedChanges carries notifications that a feed has new or updated
	// entries awaiting enrichment.
	FeedChanges = "feed-changes"
	// EntryEnrichment carries individual entries ready for AI enrichment.
	EntryEnrichment = "entry-enrichment"
)

// Message is one delivery-tracked unit of work. Delivery is at least once:
// a consumer that crashes mid-lease sees the message again after the lease
// expires, so handlers must tolerate redelivery.
type Message struct {
	ID            int64
	Queue         string
	Payload       string
	State         string
	DeliveryCount int
	VisibleAt     time.Time
	LeasedUntil   *time.Time
	LastError     string
	CreatedAt     time.Time
}

// Decode unmarshals the message payload into out.
func (m *Message) Decode(out any) error {
	if err := json.Unmarshal([]byte(m.Payload), out); err != nil {
		return fmt.Errorf("decode message %d payload: %w", m.ID, err)
	}
	return nil
}

// FeedChange is the payload for the feed-changes queue.
type FeedChange struct {
	FeedKey string `json:"feed_key"`
}

// EntryTask is the payload for the entry-enrichment queue. ContentHash
// pins the message to the content revision that was current at enqueue
// time, letting consumers skip work that a newer revision superseded.
type EntryTask struct {
	FeedKey     string `json:"feed_key"`
	EntryKey    string `json:"entry_key"`
	ContentHash string `json:"content_hash"`
}

// Queue manages durable work messages backed by SQLite. It shares the
// pipeline database connection owned by the store.
type Queue struct {
	db *sql.DB
}

const queueSchema = `
CREATE TABLE IF NOT EXISTS queue_messages (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    queue           TEXT NOT NULL,
    payload         TEXT NOT NULL,
    state           TEXT NOT NULL DEFAULT 'pending',
    delivery_count  INTEGER NOT NULL DEFAULT 0,
    visible_at      TEXT NOT NULL,
    leased_until    TEXT,
    last_error      TEXT,
    created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queue_messages_ready ON queue_messages (queue, state, visible_at);
`

// New layers the queue tables onto an already opened pipeline database.
func New(db *sql.DB) (*Queue, error) {
	if db == nil {
		return nil, errors.New("queue requires a database connection")
	}
	if _, err := db.Exec(queueSchema); err != nil {
		return nil, fmt.Errorf("apply queue schema: %w", err)
	}
	return &Queue{db: db}, nil
}

// Enqueue appends a message that becomes visible immediately.
func (q *Queue) Enqueue(ctx context.Context, queue string, payload any) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := q.db.ExecContext(
		ctx,
		`INSERT INTO queue_messages (queue, payload, state, delivery_count, visible_at, created_at)
         VALUES (?, ?, 'pending', 0, ?, ?)`,
		queue,
		string(data),
		now,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Dequeue leases the oldest visible message on the named queue for the
// given duration and increments its delivery count. Candidate selection and
// the lease write are one guarded statement, so two workers can never lease
// the same delivery. Messages whose lease expired are reclaimed
// automatically. Returns nil when nothing is ready.
func (q *Queue) Dequeue(ctx context.Context, queue string, lease time.Duration) (*Message, error) {
	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)
	leasedUntil := now.Add(lease).Format(time.RFC3339Nano)

	row := q.db.QueryRowContext(
		ctx,
		`UPDATE queue_messages
         SET leased_until = ?, delivery_count = delivery_count + 1
         WHERE id = (
             SELECT id FROM queue_messages
             WHERE queue = ? AND state = 'pending' AND visible_at <= ?
               AND (leased_until IS NULL OR leased_until <= ?)
             ORDER BY visible_at, id
             LIMIT 1
         )
           AND state = 'pending'
           AND (leased_until IS NULL OR leased_until <= ?)
         RETURNING `+messageColumns,
		leasedUntil,
		queue,
		nowStr,
		nowStr,
		nowStr,
	)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lease message: %w", err)
	}
	return msg, nil
}

// Ack removes a successfully processed message.
func (q *Queue) Ack(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM queue_messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("ack message %d: %w", id, err)
	}
	return nil
}

// Release returns a message to the queue after a transient failure. The
// message becomes visible again after the backoff delay, with the failure
// recorded for operators.
func (q *Queue) Release(ctx context.Context, id int64, cause error, backoff time.Duration) error {
	visibleAt := time.Now().UTC().Add(backoff).Format(time.RFC3339Nano)
	if _, err := q.db.ExecContext(
		ctx,
		`UPDATE queue_messages SET leased_until = NULL, visible_at = ?, last_error = ? WHERE id = ?`,
		visibleAt,
		errorText(cause),
		id,
	); err != nil {
		return fmt.Errorf("release message %d: %w", id, err)
	}
	return nil
}

// DeadLetter parks a message that exhausted its retry budget. Dead messages
// are kept with their final error so an operator can inspect and replay.
func (q *Queue) DeadLetter(ctx context.Context, id int64, cause error) error {
	if _, err := q.db.ExecContext(
		ctx,
		`UPDATE queue_messages SET state = 'dead', leased_until = NULL, last_error = ? WHERE id = ?`,
		errorText(cause),
		id,
	); err != nil {
		return fmt.Errorf("dead letter message %d: %w", id, err)
	}
	return nil
}

// Retry replays a dead message with a fresh delivery budget.
func (q *Queue) Retry(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := q.db.ExecContext(
		ctx,
		`UPDATE queue_messages SET state = 'pending', delivery_count = 0, leased_until = NULL, visible_at = ?
         WHERE id = ? AND state = 'dead'`,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("retry message %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("retry message rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("message %d is not dead lettered", id)
	}
	return nil
}

// Dead lists dead-lettered messages on the named queue, oldest first.
func (q *Queue) Dead(ctx context.Context, queue string) ([]*Message, error) {
	rows, err := q.db.QueryContext(
		ctx,
		`SELECT `+messageColumns+` FROM queue_messages WHERE queue = ? AND state = 'dead' ORDER BY id`,
		queue,
	)
	if err != nil {
		return nil, fmt.Errorf("list dead messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, scanErr := scanMessage(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan dead message: %w", scanErr)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead messages: %w", err)
	}
	return messages, nil
}

// QueueStats summarizes one queue for status displays.
type QueueStats struct {
	Queue   string
	Pending int
	Leased  int
	Dead    int
}

// Stats aggregates message counts per queue.
func (q *Queue) Stats(ctx context.Context) ([]QueueStats, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rows, err := q.db.QueryContext(
		ctx,
		`SELECT queue,
            SUM(CASE WHEN state = 'pending' AND (leased_until IS NULL OR leased_until <= ?) THEN 1 ELSE 0 END),
            SUM(CASE WHEN state = 'pending' AND leased_until > ? THEN 1 ELSE 0 END),
            SUM(CASE WHEN state = 'dead' THEN 1 ELSE 0 END)
         FROM queue_messages GROUP BY queue ORDER BY queue`,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var stats []QueueStats
	for rows.Next() {
		var s QueueStats
		if scanErr := rows.Scan(&s.Queue, &s.Pending, &s.Leased, &s.Dead); scanErr != nil {
			return nil, fmt.Errorf("scan queue stats: %w", scanErr)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue stats: %w", err)
	}
	return stats, nil
}

// Backoff returns the redelivery delay for the given delivery count,
// doubling from base and capped at max.
func Backoff(deliveryCount int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < deliveryCount; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}

const messageColumns = `id, queue, payload, state, delivery_count, visible_at, leased_until, last_error, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var (
		msg         Message
		visibleAt   string
		leasedUntil sql.NullString
		lastError   sql.NullString
		createdAt   string
	)
	if err := row.Scan(
		&msg.ID,
		&msg.Queue,
		&msg.Payload,
		&msg.State,
		&msg.DeliveryCount,
		&visibleAt,
		&leasedUntil,
		&lastError,
		&createdAt,
	); err != nil {
		return nil, err
	}
	msg.LastError = lastError.String
	if t, err := time.Parse(time.RFC3339Nano, visibleAt); err == nil {
		msg.VisibleAt = t
	}
	if leasedUntil.Valid {
		if t, err := time.Parse(time.RFC3339Nano, leasedUntil.String); err == nil {
			msg.LeasedUntil = &t
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		msg.CreatedAt = t
	}
	return &msg, nil
}

func errorText(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}
