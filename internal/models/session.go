package models

import "time"

// Session is a bounded interval of telemetry collection opened by a user
type Session struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	StartTime time.Time  `json:"start_time" db:"start_time_ms"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time_ms"` // nil while the session is open

	// Filled when the session is stopped and scored
	CountAggressive    *int     `json:"count_aggressive,omitempty" db:"count_aggressive"`
	CountNormal        *int     `json:"count_normal,omitempty" db:"count_normal"`
	CountSlow          *int     `json:"count_slow,omitempty" db:"count_slow"`
	MaintenanceUrgency *float64 `json:"maintenance_urgency,omitempty" db:"maintenance_urgency"`
}

// IsClosed reports whether the session has been stopped
func (s *Session) IsClosed() bool {
	return s.EndTime != nil
}

// SessionStop is the request body of PATCH /api/sessions/stop
type SessionStop struct {
	SessionID string `json:"session_id" binding:"required"`
}

// SessionAggregate summarises a closed session. It is always recomputed
// from the persisted behaviour records, never maintained incrementally.
type SessionAggregate struct {
	SessionID   string        `json:"session_id"`
	RecordCount int           `json:"record_count"`
	LabelCounts map[Label]int `json:"label_counts"`

	// Regressor inputs
	CountAggressive int     `json:"count_aggressive"`
	CountNormal     int     `json:"count_normal"`
	CountSlow       int     `json:"count_slow"`
	DurationMinutes float64 `json:"duration_minutes"`
	AccelMagMean    float64 `json:"accel_mag_mean"`
	AccelMagStd     float64 `json:"accel_mag_std"`
	GyroMagMean     float64 `json:"gyro_mag_mean"`
	GyroMagStd      float64 `json:"gyro_mag_std"`

	// Peak indicators for reports, not fed to the regressor
	AccelMagP95 float64 `json:"accel_mag_p95"`
	GyroMagP95  float64 `json:"gyro_mag_p95"`
}

// SessionScore is what gets stored on a session after scoring
type SessionScore struct {
	Aggregate SessionAggregate
	Urgency   *float64 // nil when the regressor failed
}
