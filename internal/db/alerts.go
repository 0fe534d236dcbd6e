package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"occupancy-monitor/internal/engine"
	"occupancy-monitor/internal/models"
)

const alertColumns = `id, kind, status, title, description, occupancy, device_id, triggered_at, extra, notified, notified_at`

// SaveAlert inserts a new alert record.
func (d *DB) SaveAlert(ctx context.Context, alert models.Alert) error {
	query := `
        INSERT INTO alerts (` + alertColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := d.Pool.Exec(ctx, query,
		alert.ID,
		string(alert.Kind),
		string(alert.Status),
		alert.Title,
		alert.Description,
		alert.Occupancy,
		alert.DeviceID,
		alert.TriggeredAt,
		alert.Extra,
		alert.Notified,
		alert.NotifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// FindActiveAlert returns the current ACTIVE alert for the device and
// kind, or nil when none exists. A non-nil weekday additionally matches
// the weekday stored in the alert's extra payload.
func (d *DB) FindActiveAlert(ctx context.Context, deviceID string, kind models.AlertKind, weekday *int) (*models.Alert, error) {
	query := `
        SELECT ` + alertColumns + `
        FROM alerts
        WHERE device_id = $1 AND kind = $2 AND status = $3`
	args := []any{deviceID, string(kind), string(models.StatusActive)}
	if weekday != nil {
		query += ` AND (extra->>'weekday')::int = $4`
		args = append(args, *weekday)
	}
	query += ` ORDER BY triggered_at DESC LIMIT 1`

	row := d.Pool.QueryRow(ctx, query, args...)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active alert: %w", err)
	}
	return &alert, nil
}

// UpdateStatus transitions an alert out of ACTIVE and reports whether a
// row changed. Terminal and missing alerts change nothing.
func (d *DB) UpdateStatus(ctx context.Context, alertID string, status models.AlertStatus) (bool, error) {
	result, err := d.Pool.Exec(ctx, `
        UPDATE alerts SET status = $1
        WHERE id = $2 AND status = $3`,
		string(status), alertID, string(models.StatusActive))
	if err != nil {
		return false, fmt.Errorf("failed to update alert status: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// BulkUpdateStatus transitions all ACTIVE alerts matching the filter
// and returns how many changed.
func (d *DB) BulkUpdateStatus(ctx context.Context, filter engine.AlertFilter, status models.AlertStatus) (int, error) {
	if filter.Empty() {
		return 0, fmt.Errorf("empty alert filter")
	}

	query := `UPDATE alerts SET status = $1 WHERE status = $2`
	args := []any{string(status), string(models.StatusActive)}
	if len(filter.IDs) > 0 {
		args = append(args, filter.IDs)
		query += fmt.Sprintf(" AND id = ANY($%d)", len(args))
	}
	if filter.DeviceID != "" {
		args = append(args, filter.DeviceID)
		query += fmt.Sprintf(" AND device_id = $%d", len(args))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}

	result, err := d.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk update alerts: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// MarkNotified records a successful notification delivery.
func (d *DB) MarkNotified(ctx context.Context, alertID string, at time.Time) error {
	_, err := d.Pool.Exec(ctx, `
        UPDATE alerts SET notified = true, notified_at = $1
        WHERE id = $2`, at, alertID)
	if err != nil {
		return fmt.Errorf("failed to mark alert notified: %w", err)
	}
	return nil
}

// GetAlert fetches one alert by id.
func (d *DB) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	row := d.Pool.QueryRow(ctx, `
        SELECT `+alertColumns+`
        FROM alerts WHERE id = $1`, alertID)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get alert %s: %w", alertID, err)
	}
	return &alert, nil
}

// ActiveAlerts lists ACTIVE alerts, optionally scoped to one device.
func (d *DB) ActiveAlerts(ctx context.Context, deviceID string) ([]models.Alert, error) {
	query := `
        SELECT ` + alertColumns + `
        FROM alerts WHERE status = $1`
	args := []any{string(models.StatusActive)}
	if deviceID != "" {
		query += ` AND device_id = $2`
		args = append(args, deviceID)
	}
	query += ` ORDER BY triggered_at DESC`

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list active alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// AlertKindStat aggregates alert counts for one kind over a trailing
// window.
type AlertKindStat struct {
	Kind           models.AlertKind `json:"kind"`
	Count          int              `json:"count"`
	ActiveCount    int              `json:"active_count"`
	ResolvedCount  int              `json:"resolved_count"`
	LastOccurrence time.Time        `json:"last_occurrence"`
}

// AlertStats aggregates alert counts per kind over the trailing number
// of days, optionally scoped to one device.
func (d *DB) AlertStats(ctx context.Context, deviceID string, days int) ([]AlertKindStat, error) {
	since := time.Now().AddDate(0, 0, -days)
	query := `
        SELECT kind,
               COUNT(*),
               COUNT(*) FILTER (WHERE status = 'ACTIVE'),
               COUNT(*) FILTER (WHERE status = 'RESOLVED'),
               MAX(triggered_at)
        FROM alerts
        WHERE triggered_at >= $1`
	args := []any{since}
	if deviceID != "" {
		query += ` AND device_id = $2`
		args = append(args, deviceID)
	}
	query += ` GROUP BY kind ORDER BY COUNT(*) DESC`

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate alert stats: %w", err)
	}
	defer rows.Close()

	var stats []AlertKindStat
	for rows.Next() {
		var s AlertKindStat
		var kind string
		if err := rows.Scan(&kind, &s.Count, &s.ActiveCount, &s.ResolvedCount, &s.LastOccurrence); err != nil {
			return nil, fmt.Errorf("failed to scan alert stats: %w", err)
		}
		s.Kind = models.AlertKind(kind)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func scanAlert(row pgx.Row) (models.Alert, error) {
	var a models.Alert
	var kind, status string
	err := row.Scan(
		&a.ID,
		&kind,
		&status,
		&a.Title,
		&a.Description,
		&a.Occupancy,
		&a.DeviceID,
		&a.TriggeredAt,
		&a.Extra,
		&a.Notified,
		&a.NotifiedAt,
	)
	if err != nil {
		return models.Alert{}, err
	}
	a.Kind = models.AlertKind(kind)
	a.Status = models.AlertStatus(status)
	return a, nil
}

func scanAlerts(rows pgx.Rows) ([]models.Alert, error) {
	var list []models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		list = append(list, alert)
	}
	return list, rows.Err()
}
