package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/okian/signpost/internal/domain/model"
)

type indexRow struct {
	Preset       string          `db:"preset"`
	AsOfDate     string          `db:"as_of_date"`
	Categories   string          `db:"categories"`
	Overall      sql.NullFloat64 `db:"overall"`
	Insufficient bool            `db:"insufficient"`
	BandWidth    float64         `db:"band_width"`
	SafetyMargin sql.NullFloat64 `db:"safety_margin"`
	ComputedAt   time.Time       `db:"computed_at"`
}

const indexColumns = `preset, as_of_date, categories, overall, insufficient, band_width, safety_margin, computed_at`

func (r *indexRow) snapshot() (model.IndexSnapshot, error) {
	snap := model.IndexSnapshot{
		Preset:     r.Preset,
		AsOfDate:   r.AsOfDate,
		BandWidth:  r.BandWidth,
		ComputedAt: r.ComputedAt.UTC(),
		Overall:    model.Insufficient(),
	}
	if err := json.Unmarshal([]byte(r.Categories), &snap.Categories); err != nil {
		return model.IndexSnapshot{}, fmt.Errorf("decode categories: %w", err)
	}
	if !r.Insufficient && r.Overall.Valid {
		snap.Overall = model.Score(r.Overall.Float64)
	}
	if r.SafetyMargin.Valid {
		v := r.SafetyMargin.Float64
		snap.SafetyMargin = &v
	}
	return snap, nil
}

// SaveIndexSnapshot stores or replaces the snapshot for its preset and date.
func (s *Store) SaveIndexSnapshot(ctx context.Context, snap *model.IndexSnapshot) (err error) {
	defer s.observe("save_index_snapshot", time.Now(), &err)
	cats, err := json.Marshal(snap.Categories)
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	var overall *float64
	if snap.Overall.Known {
		v := snap.Overall.Value
		overall = &v
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO index_snapshots (`+indexColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (preset, as_of_date) DO UPDATE SET
			categories = excluded.categories, overall = excluded.overall, insufficient = excluded.insufficient,
			band_width = excluded.band_width, safety_margin = excluded.safety_margin, computed_at = excluded.computed_at`),
		snap.Preset, snap.AsOfDate, string(cats), overall, !snap.Overall.Known, snap.BandWidth,
		snap.SafetyMargin, snap.ComputedAt.UTC())
	if err != nil {
		return fmt.Errorf("save index snapshot: %w", err)
	}
	return nil
}

// IndexSnapshot returns the stored snapshot for preset and date.
func (s *Store) IndexSnapshot(ctx context.Context, preset, date string) (snap model.IndexSnapshot, err error) {
	defer s.observe("index_snapshot", time.Now(), &err)
	var row indexRow
	q := s.db.Rebind(`SELECT ` + indexColumns + ` FROM index_snapshots WHERE preset = ? AND as_of_date = ?`)
	if err = s.db.GetContext(ctx, &row, q, preset, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.IndexSnapshot{}, ErrNotFound
		}
		return model.IndexSnapshot{}, fmt.Errorf("index snapshot: %w", err)
	}
	return row.snapshot()
}

// IndexHistory returns snapshots for preset with as_of_date in [from, to],
// oldest first. Empty bounds are open.
func (s *Store) IndexHistory(ctx context.Context, preset, from, to string) (out []model.IndexSnapshot, err error) {
	defer s.observe("index_history", time.Now(), &err)
	if from == "" {
		from = "0000-01-01"
	}
	if to == "" {
		to = "9999-12-31"
	}
	var rows []indexRow
	q := s.db.Rebind(`SELECT ` + indexColumns + ` FROM index_snapshots
		WHERE preset = ? AND as_of_date >= ? AND as_of_date <= ? ORDER BY as_of_date`)
	if err = s.db.SelectContext(ctx, &rows, q, preset, from, to); err != nil {
		return nil, fmt.Errorf("index history: %w", err)
	}
	out = make([]model.IndexSnapshot, 0, len(rows))
	for i := range rows {
		snap, err := rows[i].snapshot()
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

const credibilityColumns = `publisher, snapshot_date, total_claims, retracted_count, credibility_score,
	credibility_tier, low_confidence, created_at`

// SaveCredibility inserts snapshots, leaving existing (publisher, date) rows
// untouched. It returns how many rows were new.
func (s *Store) SaveCredibility(ctx context.Context, snaps []model.SourceCredibilitySnapshot) (inserted int, err error) {
	defer s.observe("save_credibility", time.Now(), &err)
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		q := tx.Rebind(`INSERT INTO credibility_snapshots (` + credibilityColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (publisher, snapshot_date) DO NOTHING`)
		for i := range snaps {
			c := &snaps[i]
			res, err := tx.ExecContext(ctx, q, c.Publisher, c.Date, c.TotalClaims, c.RetractedCount,
				c.Score, c.Tier, c.LowConfidence, c.CreatedAt.UTC())
			if err != nil {
				return fmt.Errorf("save credibility %s: %w", c.Publisher, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Credibility returns the snapshots for date, or for the latest stored date
// when date is empty.
func (s *Store) Credibility(ctx context.Context, date string) (out []model.SourceCredibilitySnapshot, err error) {
	defer s.observe("credibility", time.Now(), &err)
	if date == "" {
		var latest sql.NullString
		if err = s.db.GetContext(ctx, &latest, `SELECT MAX(snapshot_date) FROM credibility_snapshots`); err != nil {
			return nil, fmt.Errorf("latest credibility date: %w", err)
		}
		if !latest.Valid {
			return []model.SourceCredibilitySnapshot{}, nil
		}
		date = latest.String
	}
	q := s.db.Rebind(`SELECT ` + credibilityColumns + ` FROM credibility_snapshots
		WHERE snapshot_date = ? ORDER BY publisher`)
	if err = s.db.SelectContext(ctx, &out, q, date); err != nil {
		return nil, fmt.Errorf("credibility: %w", err)
	}
	for i := range out {
		out[i].CreatedAt = out[i].CreatedAt.UTC()
	}
	return out, nil
}

// AuditLog returns the audit trail for an entity, oldest first.
func (s *Store) AuditLog(ctx context.Context, entity, entityID string) (out []model.AuditEntry, err error) {
	defer s.observe("audit_log", time.Now(), &err)
	q := s.db.Rebind(`SELECT id, entity, entity_id, action, actor, detail, created_at FROM audit_log
		WHERE entity = ? AND entity_id = ? ORDER BY created_at, id`)
	if err = s.db.SelectContext(ctx, &out, q, entity, entityID); err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	return out, nil
}
