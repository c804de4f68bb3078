package models

import "time"

// User is the public view of an account. Credentials live with the
// identity service and never pass through this backend.
type User struct {
	ID                 string    `json:"id" db:"id"`
	Email              string    `json:"email" db:"email"`
	FullName           string    `json:"full_name" db:"full_name"`
	RegistrationDate   time.Time `json:"registration_date" db:"registration_ms"`
	MaintenanceUrgency *float64  `json:"maintenance_urgency,omitempty" db:"maintenance_urgency"`
}

// AdminEmail is hidden from user listings
const AdminEmail = "admin@admin.com"
