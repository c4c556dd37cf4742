package parser

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/strrl/tp-autotune/internal/db"
)

// TypeStats summarizes the records of one type in an export.
type TypeStats struct {
	Type  string
	Count int
	First string
	Last  string
}

// Inspector answers summary questions about an export file without decoding
// it into events, by querying the JSON directly through DuckDB.
type Inspector struct {
	db *sql.DB
}

func NewInspector() (*Inspector, error) {
	database, err := db.GetDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}

	return &Inspector{db: database}, nil
}

func (i *Inspector) TypeStats(exportPath string) ([]TypeStats, error) {
	query := fmt.Sprintf(`
		SELECT
			COALESCE(CAST(type AS VARCHAR), '') as type,
			COUNT(*) as count,
			COALESCE(MIN(CAST(time AS VARCHAR)), '') as first,
			COALESCE(MAX(CAST(time AS VARCHAR)), '') as last
		FROM read_json('%s',
			format = 'array',
			union_by_name = true,
			ignore_errors = true
		)
		GROUP BY type
		ORDER BY count DESC, type
	`, quoteLiteral(exportPath))

	rows, err := i.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query export: %w", err)
	}
	defer rows.Close()

	var stats []TypeStats
	for rows.Next() {
		var s TypeStats
		if err := rows.Scan(&s.Type, &s.Count, &s.First, &s.Last); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return stats, nil
}

// DailyReadings counts cbg records per calendar date, which is the quickest
// way to spot days that would abort a tuning run. Export times are UTC, so
// the date prefix of the timestamp is the UTC date.
func (i *Inspector) DailyReadings(exportPath string) (map[string]int, error) {
	query := fmt.Sprintf(`
		SELECT
			substr(CAST(time AS VARCHAR), 1, 10) as day,
			COUNT(*) as count
		FROM read_json('%s',
			format = 'array',
			union_by_name = true,
			ignore_errors = true
		)
		WHERE type = 'cbg' AND time IS NOT NULL
		GROUP BY day
		ORDER BY day
	`, quoteLiteral(exportPath))

	rows, err := i.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("failed to scan readings row: %w", err)
		}
		counts[day] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return counts, nil
}

func quoteLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
