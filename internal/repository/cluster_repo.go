package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"predictive_alerts/internal/models"
)

type ClusterSQLite struct {
	db *sql.DB
}

func NewClusterSQLite(db *sql.DB) *ClusterSQLite {
	return &ClusterSQLite{db: db}
}

var _ ClusterRepo = (*ClusterSQLite)(nil)

const (
	clusterColumns = `id, client_id, scope, subject, channel, cause_category, recommendation, priority,
		predominant_severity, alert_ids, occurrences, first_occurrence, last_occurrence, avg_interval_hours,
		active, created_at, updated_at`

	upsertClusterSQL = `
		INSERT INTO root_cause_clusters (` + clusterColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			cause_category=excluded.cause_category,
			recommendation=excluded.recommendation,
			priority=excluded.priority,
			predominant_severity=excluded.predominant_severity,
			alert_ids=excluded.alert_ids,
			occurrences=excluded.occurrences,
			first_occurrence=excluded.first_occurrence,
			last_occurrence=excluded.last_occurrence,
			avg_interval_hours=excluded.avg_interval_hours,
			active=excluded.active,
			updated_at=excluded.updated_at
	`

	listClustersSQL = `SELECT ` + clusterColumns + ` FROM root_cause_clusters
		WHERE (? = '' OR client_id = ?) ORDER BY last_occurrence DESC`
)

func (r *ClusterSQLite) Upsert(ctx context.Context, c models.RootCauseCluster) error {
	ids, err := json.Marshal(c.AlertIDs)
	if err != nil {
		return fmt.Errorf("marshal cluster members: %w", err)
	}
	_, err = r.db.ExecContext(ctx, upsertClusterSQL,
		c.ID, c.ClientID, c.Scope, c.Subject, c.Channel, c.CauseCategory, c.Recommendation, c.Priority,
		int(c.PredominantSeverity), string(ids), c.Occurrences, c.FirstOccurrence.UTC(), c.LastOccurrence.UTC(),
		c.AverageIntervalHours, c.Active, c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert cluster %q: %w", c.ID, err)
	}
	return nil
}

// List returns the clusters of a client, or of every client when clientID is empty.
func (r *ClusterSQLite) List(ctx context.Context, clientID string) ([]models.RootCauseCluster, error) {
	rows, err := r.db.QueryContext(ctx, listClustersSQL, clientID, clientID)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	defer rows.Close()

	var out []models.RootCauseCluster
	for rows.Next() {
		var (
			c   models.RootCauseCluster
			ids string
		)
		if err := rows.Scan(&c.ID, &c.ClientID, &c.Scope, &c.Subject, &c.Channel, &c.CauseCategory,
			&c.Recommendation, &c.Priority, &c.PredominantSeverity, &ids, &c.Occurrences,
			&c.FirstOccurrence, &c.LastOccurrence, &c.AverageIntervalHours, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ids), &c.AlertIDs); err != nil {
			return nil, fmt.Errorf("decode members of cluster %q: %w", c.ID, err)
		}
		c.FirstOccurrence = c.FirstOccurrence.UTC()
		c.LastOccurrence = c.LastOccurrence.UTC()
		c.CreatedAt = c.CreatedAt.UTC()
		c.UpdatedAt = c.UpdatedAt.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}
