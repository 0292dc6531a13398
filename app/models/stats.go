package models

// DailyStats holds a per-day count for admin dashboard charts
type DailyStats struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}
