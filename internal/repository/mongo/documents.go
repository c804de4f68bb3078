package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/jengzang/drivesense-backend/internal/models"
)

type userDoc struct {
	ID                 string    `bson:"_id"`
	Email              string    `bson:"email"`
	FullName           string    `bson:"full_name"`
	RegistrationDate   time.Time `bson:"registration_date"`
	MaintenanceUrgency *float64  `bson:"maintenance_urgency"`
}

func newUserDoc(u *models.User) userDoc {
	return userDoc{
		ID:                 u.ID,
		Email:              u.Email,
		FullName:           u.FullName,
		RegistrationDate:   u.RegistrationDate.UTC(),
		MaintenanceUrgency: u.MaintenanceUrgency,
	}
}

func (d userDoc) model() models.User {
	return models.User{
		ID:                 d.ID,
		Email:              d.Email,
		FullName:           d.FullName,
		RegistrationDate:   d.RegistrationDate.UTC(),
		MaintenanceUrgency: d.MaintenanceUrgency,
	}
}

type sessionDoc struct {
	ID                 string     `bson:"_id"`
	UserID             string     `bson:"user_id"`
	StartTime          time.Time  `bson:"start_time"`
	EndTime            *time.Time `bson:"end_time"`
	CountAggressive    *int       `bson:"count_aggressive"`
	CountNormal        *int       `bson:"count_normal"`
	CountSlow          *int       `bson:"count_slow"`
	MaintenanceUrgency *float64   `bson:"maintenance_urgency"`
}

func newSessionDoc(s *models.Session) sessionDoc {
	d := sessionDoc{
		ID:                 s.ID,
		UserID:             s.UserID,
		StartTime:          s.StartTime.UTC(),
		CountAggressive:    s.CountAggressive,
		CountNormal:        s.CountNormal,
		CountSlow:          s.CountSlow,
		MaintenanceUrgency: s.MaintenanceUrgency,
	}
	if s.EndTime != nil {
		end := s.EndTime.UTC()
		d.EndTime = &end
	}
	return d
}

func (d sessionDoc) model() models.Session {
	s := models.Session{
		ID:                 d.ID,
		UserID:             d.UserID,
		StartTime:          d.StartTime.UTC(),
		CountAggressive:    d.CountAggressive,
		CountNormal:        d.CountNormal,
		CountSlow:          d.CountSlow,
		MaintenanceUrgency: d.MaintenanceUrgency,
	}
	if d.EndTime != nil {
		end := d.EndTime.UTC()
		s.EndTime = &end
	}
	return s
}

// Sensor fields keep the wire names the mobile client sends.
type behaviorDoc struct {
	ID        bson.ObjectID `bson:"_id"`
	SessionID string        `bson:"session_id"`
	Timestamp time.Time     `bson:"timestamp"`
	Label     string        `bson:"label"`
	AccX      float64       `bson:"AccX"`
	AccY      float64       `bson:"AccY"`
	AccZ      float64       `bson:"AccZ"`
	GyroX     float64       `bson:"GyroX"`
	GyroY     float64       `bson:"GyroY"`
	GyroZ     float64       `bson:"GyroZ"`
}

func newBehaviorDoc(r models.BehaviorRecord) behaviorDoc {
	return behaviorDoc{
		ID:        bson.NewObjectID(),
		SessionID: r.SessionID,
		Timestamp: r.Timestamp.UTC().Truncate(time.Millisecond),
		Label:     string(r.Label),
		AccX:      r.AccX,
		AccY:      r.AccY,
		AccZ:      r.AccZ,
		GyroX:     r.GyroX,
		GyroY:     r.GyroY,
		GyroZ:     r.GyroZ,
	}
}

func (d behaviorDoc) model() models.BehaviorRecord {
	return models.BehaviorRecord{
		SessionID: d.SessionID,
		Timestamp: d.Timestamp.UTC(),
		Label:     models.Label(d.Label),
		AccX:      d.AccX,
		AccY:      d.AccY,
		AccZ:      d.AccZ,
		GyroX:     d.GyroX,
		GyroY:     d.GyroY,
		GyroZ:     d.GyroZ,
	}
}
