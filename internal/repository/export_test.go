package repository

import "time"

// SetSessionClock はPostgresSessionRepoの現在時刻を差し替える。
func SetSessionClock(r *PostgresSessionRepo, now func() time.Time) {
	r.now = now
}
