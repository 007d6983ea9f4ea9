package database

import "gorm.io/gorm"

// DayExpr returns a SQL expression that extracts the calendar day
// ("YYYY-MM-DD") of the created_at column, portable across the two
// dialects LLMLab runs against: SQLite (tests, local dev) and
// PostgreSQL (production).
func DayExpr(db *gorm.DB) string {
	if db.Dialector.Name() == "postgres" {
		return "CAST(created_at AS DATE)"
	}
	return "date(created_at)"
}

// WeekdayHourExpr returns SQL expressions that extract the weekday
// (0 = Sunday) and hour-of-day (0-23) of the created_at column, for the
// usage heatmap. SQLite has no native EXTRACT; Postgres has no strftime.
func WeekdayHourExpr(db *gorm.DB) (weekday, hour string) {
	if db.Dialector.Name() == "postgres" {
		return "EXTRACT(DOW FROM created_at)::integer", "EXTRACT(HOUR FROM created_at)::integer"
	}
	return "CAST(strftime('%w', created_at) AS INTEGER)", "CAST(strftime('%H', created_at) AS INTEGER)"
}
