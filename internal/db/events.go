package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"occupancy-monitor/internal/models"
)

// SaveEvent inserts a raw presence event. The store owns its persisted
// copy; the engine keeps nothing.
func (d *DB) SaveEvent(ctx context.Context, ev models.PresenceEvent) error {
	query := `
        INSERT INTO events (
            id, device_id, occupancy, event_kind, timestamp, sensor_id, signal_strength, uptime
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := d.Pool.Exec(ctx, query,
		uuid.New().String(),
		ev.DeviceID,
		ev.Occupancy,
		string(ev.Kind),
		ev.Timestamp,
		ev.SensorID,
		ev.SignalStrength,
		ev.Uptime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// LatestEvents returns the most recent event per device.
func (d *DB) LatestEvents(ctx context.Context) ([]models.PresenceEvent, error) {
	rows, err := d.Pool.Query(ctx, `
        SELECT DISTINCT ON (device_id)
            device_id, occupancy, event_kind, timestamp, sensor_id, signal_strength, uptime
        FROM events
        ORDER BY device_id, timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest events: %w", err)
	}
	defer rows.Close()

	var events []models.PresenceEvent
	for rows.Next() {
		var ev models.PresenceEvent
		var kind string
		err := rows.Scan(
			&ev.DeviceID,
			&ev.Occupancy,
			&kind,
			&ev.Timestamp,
			&ev.SensorID,
			&ev.SignalStrength,
			&ev.Uptime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Kind = models.EventKind(kind)
		events = append(events, ev)
	}
	return events, rows.Err()
}
