package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/okian/signpost/internal/domain/model"
)

// UpsertMilestones syncs the catalog into the milestones table.
func (s *Store) UpsertMilestones(ctx context.Context, ms []model.Milestone) (err error) {
	defer s.observe("upsert_milestones", time.Now(), &err)
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		q := tx.Rebind(`INSERT INTO milestones
			(code, name, description, category, unit, baseline, target, direction, is_primary, monitor_only)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (code) DO UPDATE SET
				name = excluded.name, description = excluded.description, category = excluded.category,
				unit = excluded.unit, baseline = excluded.baseline, target = excluded.target,
				direction = excluded.direction, is_primary = excluded.is_primary, monitor_only = excluded.monitor_only`)
		for i := range ms {
			m := &ms[i]
			if _, err := tx.ExecContext(ctx, q, m.Code, m.Name, m.Description, m.Category, m.Unit,
				m.Baseline, m.Target, m.Direction, m.Primary, m.MonitorOnly); err != nil {
				return fmt.Errorf("upsert milestone %s: %w", m.Code, err)
			}
		}
		return nil
	})
}

// Milestones returns every stored milestone ordered by code.
func (s *Store) Milestones(ctx context.Context) (out []model.Milestone, err error) {
	defer s.observe("milestones", time.Now(), &err)
	if err = s.db.SelectContext(ctx, &out, `SELECT code, name, description, category, unit, baseline, target,
		direction, is_primary, monitor_only FROM milestones ORDER BY code`); err != nil {
		return nil, fmt.Errorf("milestones: %w", err)
	}
	return out, nil
}
