package models

import "time"

// TelemetrySample is one instant of motion data reported by the phone
type TelemetrySample struct {
	Timestamp time.Time `json:"timestamp"`
	AccX      float64   `json:"AccX"` // m/s²
	AccY      float64   `json:"AccY"`
	AccZ      float64   `json:"AccZ"`
	GyroX     float64   `json:"GyroX"` // same unit as the classifier training data
	GyroY     float64   `json:"GyroY"`
	GyroZ     float64   `json:"GyroZ"`
}

// Label is a driving-behaviour class produced by the classifier
type Label string

// Labels of the default class mapping. Bundles may define others.
const (
	LabelSlow       Label = "SLOW"
	LabelNormal     Label = "NORMAL"
	LabelAggressive Label = "AGGRESSIVE"
)

// BehaviorRecord is one persisted, labelled telemetry sample
type BehaviorRecord struct {
	ID        int64     `json:"id,omitempty" db:"id"`
	SessionID string    `json:"session_id" db:"session_id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp_ms"` // stored as Unix milliseconds
	Label     Label     `json:"label" db:"label"`
	AccX      float64   `json:"AccX" db:"acc_x"`
	AccY      float64   `json:"AccY" db:"acc_y"`
	AccZ      float64   `json:"AccZ" db:"acc_z"`
	GyroX     float64   `json:"GyroX" db:"gyro_x"`
	GyroY     float64   `json:"GyroY" db:"gyro_y"`
	GyroZ     float64   `json:"GyroZ" db:"gyro_z"`
}

// NewBehaviorRecord tags a sample with the label of the window it belonged to
func NewBehaviorRecord(sessionID string, s TelemetrySample, label Label) BehaviorRecord {
	return BehaviorRecord{
		SessionID: sessionID,
		Timestamp: s.Timestamp,
		Label:     label,
		AccX:      s.AccX,
		AccY:      s.AccY,
		AccZ:      s.AccZ,
		GyroX:     s.GyroX,
		GyroY:     s.GyroY,
		GyroZ:     s.GyroZ,
	}
}

// BehaviorCreate is the request body for manually adding a labelled record
type BehaviorCreate struct {
	SessionID string    `json:"session_id" binding:"required"`
	Timestamp time.Time `json:"timestamp" binding:"required"`
	Label     Label     `json:"label" binding:"required"`
	AccX      float64   `json:"AccX"`
	AccY      float64   `json:"AccY"`
	AccZ      float64   `json:"AccZ"`
	GyroX     float64   `json:"GyroX"`
	GyroY     float64   `json:"GyroY"`
	GyroZ     float64   `json:"GyroZ"`
}

// Sample returns the telemetry part of the request
func (b BehaviorCreate) Sample() TelemetrySample {
	return TelemetrySample{
		Timestamp: b.Timestamp,
		AccX:      b.AccX,
		AccY:      b.AccY,
		AccZ:      b.AccZ,
		GyroX:     b.GyroX,
		GyroY:     b.GyroY,
		GyroZ:     b.GyroZ,
	}
}
