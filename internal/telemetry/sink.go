package telemetry

import (
	"time"

	"gorm.io/gorm"

	"github.com/vigil-sec/vigil/internal/models"
)

// Sink persists request records for audit queries and agent lookups.
type Sink struct {
	db *gorm.DB
}

func NewSink(db *gorm.DB) *Sink {
	return &Sink{db: db}
}

func (s *Sink) Save(rec *models.RequestRecord) error {
	return s.db.Create(rec).Error
}

// Recent returns the newest records, newest first.
func (s *Sink) Recent(limit int) ([]models.RequestRecord, error) {
	var records []models.RequestRecord
	err := s.db.Order("timestamp DESC").Limit(limit).Find(&records).Error
	return records, err
}

// Filter narrows a record search. Zero fields are ignored.
type Filter struct {
	IPs   []string
	User  string
	Since time.Time
	Limit int
}

// Find returns records matching the filter, newest first.
func (s *Sink) Find(f Filter) ([]models.RequestRecord, error) {
	q := s.db.Order("timestamp DESC")
	if len(f.IPs) > 0 {
		q = q.Where("client_ip IN ?", f.IPs)
	}
	if f.User != "" {
		q = q.Where("user = ?", f.User)
	}
	if !f.Since.IsZero() {
		q = q.Where("timestamp >= ?", f.Since)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var records []models.RequestRecord
	err := q.Find(&records).Error
	return records, err
}

// CountSince counts records for an entity after a point in time. Used
// to judge whether a mitigation actually reduced traffic.
func (s *Sink) CountSince(entityType, entity string, since time.Time) (int64, error) {
	return s.countWindow(entityType, entity, since, time.Time{})
}

// CountBetween counts records for an entity inside [from, to).
func (s *Sink) CountBetween(entityType, entity string, from, to time.Time) (int64, error) {
	return s.countWindow(entityType, entity, from, to)
}

func (s *Sink) countWindow(entityType, entity string, from, to time.Time) (int64, error) {
	q := s.db.Model(&models.RequestRecord{}).Where("timestamp >= ?", from)
	if !to.IsZero() {
		q = q.Where("timestamp < ?", to)
	}
	if entityType == "user" {
		q = q.Where("user = ?", entity)
	} else {
		q = q.Where("client_ip = ?", entity)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}
