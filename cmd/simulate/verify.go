package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// countActiveOverlaps counts pairs of active appointments sharing a patient
// or a professional whose intervals intersect. Any non-zero answer means the
// booking path let a conflict through.
func countActiveOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		WITH active AS (
			SELECT a.id, a.patient_id, a.professional_id, a.start_time, a.end_time
			FROM appointments a
			JOIN appointment_statuses s ON s.id = a.status_id
			WHERE s.code IN ('RESERVED', 'CONFIRMED')
		)
		SELECT count(*)
		FROM active x
		JOIN active y
		  ON x.id < y.id
		 AND (x.professional_id = y.professional_id OR x.patient_id = y.patient_id)
		 AND x.start_time < y.end_time
		 AND y.start_time < x.end_time
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count overlaps: %w", err)
	}
	return n, nil
}
