package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/LaunchPipe/internal/models"
)

// sqlRepo holds the queries shared by the SQLite and PostgreSQL stores.
// Queries are written with ? placeholders and rewritten by bind.
type sqlRepo struct {
	db   *sql.DB
	name string
	bind func(query string) string
}

// bindQuestion leaves ? placeholders untouched.
func bindQuestion(query string) string {
	return query
}

// bindDollar rewrites ? placeholders as $1, $2, ...
func bindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (r *sqlRepo) FindSubscriber(ctx context.Context, kind models.SubscriberKind, id string) (*models.SubscriberSettings, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, r.bind(`SELECT settings_json FROM subscribers WHERE kind = ? AND id = ?`), string(kind), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug(r.name+".FindSubscriber not found", "kind", kind, "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error(r.name+".FindSubscriber failed", "error", err, "kind", kind, "id", id)
		return nil, fmt.Errorf("failed to query subscriber %s/%s: %w", kind, id, err)
	}
	settings, err := decodeSettings(raw)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *sqlRepo) FindSubscribers(ctx context.Context, kind models.SubscriberKind) ([]models.SubscriberSettings, error) {
	if kind == "" {
		return r.query(ctx, "FindSubscribers", `SELECT settings_json FROM subscribers ORDER BY kind, id`)
	}
	return r.query(ctx, "FindSubscribers", `SELECT settings_json FROM subscribers WHERE kind = ? ORDER BY id`, string(kind))
}

func (r *sqlRepo) FindByReminderMinutes(ctx context.Context, minutes int) ([]models.SubscriberSettings, error) {
	return r.query(ctx, "FindByReminderMinutes",
		`SELECT s.settings_json FROM subscribers s
		 JOIN subscriber_reminders m ON m.kind = s.kind AND m.id = s.id
		 WHERE m.minutes = ? ORDER BY s.kind, s.id`, minutes)
}

func (r *sqlRepo) query(ctx context.Context, op, query string, args ...any) ([]models.SubscriberSettings, error) {
	rows, err := r.db.QueryContext(ctx, r.bind(query), args...)
	if err != nil {
		slog.Error(r.name+"."+op+" query failed", "error", err)
		return nil, fmt.Errorf("failed to query subscribers: %w", err)
	}
	defer rows.Close()

	var out []models.SubscriberSettings
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			slog.Error(r.name+"."+op+" scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan subscriber row: %w", err)
		}
		settings, err := decodeSettings(raw)
		if err != nil {
			slog.Warn(r.name+"."+op+" skipping undecodable settings", "error", err)
			continue
		}
		out = append(out, settings)
	}
	if err := rows.Err(); err != nil {
		slog.Error(r.name+"."+op+" rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate subscriber rows: %w", err)
	}
	slog.Debug(r.name+"."+op+" succeeded", "count", len(out))
	return out, nil
}

func (r *sqlRepo) UpsertSubscriber(ctx context.Context, settings models.SubscriberSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, r.bind(
		`INSERT INTO subscribers (kind, id, settings_json, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (kind, id) DO UPDATE SET settings_json = excluded.settings_json, updated_at = excluded.updated_at`),
		string(settings.Kind), settings.ID, string(raw), settings.UpdatedAt)
	if err != nil {
		slog.Error(r.name+".UpsertSubscriber failed", "error", err, "kind", settings.Kind, "id", settings.ID)
		return fmt.Errorf("failed to upsert subscriber %s/%s: %w", settings.Kind, settings.ID, err)
	}
	if _, err := tx.ExecContext(ctx, r.bind(`DELETE FROM subscriber_reminders WHERE kind = ? AND id = ?`), string(settings.Kind), settings.ID); err != nil {
		return fmt.Errorf("failed to clear reminders: %w", err)
	}
	minutes := slices.Clone(settings.Reminders)
	slices.Sort(minutes)
	for _, m := range slices.Compact(minutes) {
		if _, err := tx.ExecContext(ctx, r.bind(`INSERT INTO subscriber_reminders (kind, id, minutes) VALUES (?, ?, ?)`), string(settings.Kind), settings.ID, m); err != nil {
			return fmt.Errorf("failed to insert reminder %d: %w", m, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit subscriber %s/%s: %w", settings.Kind, settings.ID, err)
	}
	slog.Debug(r.name+".UpsertSubscriber succeeded", "kind", settings.Kind, "id", settings.ID, "reminders", len(minutes))
	return nil
}

func (r *sqlRepo) MarkDelivered(ctx context.Context, key string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.bind(
		`INSERT INTO deliveries (delivery_key, delivered_at) VALUES (?, ?) ON CONFLICT (delivery_key) DO NOTHING`),
		key, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("record delivery failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record delivery failed: %w", err)
	}
	return n == 1, nil
}

func (r *sqlRepo) PruneDeliveries(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, r.bind(`DELETE FROM deliveries WHERE delivered_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune deliveries failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune deliveries failed: %w", err)
	}
	if n > 0 {
		slog.Debug(r.name+".PruneDeliveries", "removed", n)
	}
	return int(n), nil
}

func decodeSettings(raw string) (models.SubscriberSettings, error) {
	var settings models.SubscriberSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return settings, fmt.Errorf("failed to decode settings: %w", err)
	}
	return settings, nil
}
