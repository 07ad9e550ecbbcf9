package repository

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

// jobCardRecord is the relational shape of a job card. Scalar columns back the queries the
// service runs; write-once sub-documents are stored as JSON.
type jobCardRecord struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	CustomerID      string    `gorm:"index;not null"`
	VehicleMake     string
	VehicleModel    string
	VehicleYear     int
	CustomerLat     float64
	CustomerLon     float64
	ComplaintText   string  `gorm:"type:text;not null"`
	Status          string  `gorm:"index;not null"`
	Version         int64   `gorm:"not null"`
	ServiceCenterID *string `gorm:"index"`
	TechnicianID    *string `gorm:"index"`
	InvoiceNumber   *string `gorm:"uniqueIndex"`

	JobSpec           datatypes.JSON
	Assignment        datatypes.JSON
	AssignmentHistory datatypes.JSON
	TechnicianReport  datatypes.JSON
	ValidationReport  datatypes.JSON
	Invoice           datatypes.JSON
	Override          datatypes.JSON
	Cancellation      datatypes.JSON

	CreatedAt time.Time `gorm:"autoCreateTime:false;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (jobCardRecord) TableName() string { return "job_cards" }

type serviceCenterRecord struct {
	ID         string `gorm:"primaryKey"`
	Name       string
	Lat        float64
	Lon        float64
	Capacity   int `gorm:"not null"`
	ActiveJobs int `gorm:"not null;default:0"`
}

func (serviceCenterRecord) TableName() string { return "service_centers" }

type technicianRecord struct {
	ID              string `gorm:"primaryKey"`
	ServiceCenterID string `gorm:"index;not null"`
	Name            string
	Specializations datatypes.JSON
	OpenJobs        int    `gorm:"not null;default:0"`
	Availability    string `gorm:"not null"`
}

func (technicianRecord) TableName() string { return "technicians" }

type partPriceRecord struct {
	Name  string          `gorm:"primaryKey"`
	Price decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

func (partPriceRecord) TableName() string { return "part_prices" }

type laborRateRecord struct {
	RepairType string          `gorm:"primaryKey"`
	Rate       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

func (laborRateRecord) TableName() string { return "labor_rates" }

// sequenceRecord is a named counter shared by every process on the database.
type sequenceRecord struct {
	Name  string `gorm:"primaryKey"`
	Value int64  `gorm:"not null"`
}

func (sequenceRecord) TableName() string { return "sequences" }

// Records lists every table for AutoMigrate.
func Records() []interface{} {
	return []interface{}{
		&jobCardRecord{},
		&serviceCenterRecord{},
		&technicianRecord{},
		&partPriceRecord{},
		&laborRateRecord{},
		&sequenceRecord{},
	}
}

func marshalPtr[T any](v *T) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return datatypes.JSON(raw), nil
}

func unmarshalPtr[T any](raw datatypes.JSON) (*T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errors.WithStack(err)
	}
	return &v, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toRecord(card *models.JobCard) (*jobCardRecord, error) {
	rec := &jobCardRecord{
		ID:            card.ID,
		CustomerID:    card.CustomerID,
		VehicleMake:   card.Vehicle.Make,
		VehicleModel:  card.Vehicle.Model,
		VehicleYear:   card.Vehicle.Year,
		CustomerLat:   card.CustomerLocation.Lat,
		CustomerLon:   card.CustomerLocation.Lon,
		ComplaintText: card.ComplaintText,
		Status:        string(card.Status),
		Version:       card.Version,
		CreatedAt:     card.CreatedAt,
		UpdatedAt:     card.UpdatedAt,
	}
	if card.Assignment != nil {
		rec.ServiceCenterID = optional(card.Assignment.ServiceCenterID)
		rec.TechnicianID = optional(card.Assignment.TechnicianID)
	}
	if card.Invoice != nil {
		rec.InvoiceNumber = optional(card.Invoice.InvoiceNumber)
	}

	var err error
	if rec.JobSpec, err = marshalPtr(card.JobSpec); err != nil {
		return nil, err
	}
	if rec.Assignment, err = marshalPtr(card.Assignment); err != nil {
		return nil, err
	}
	if len(card.AssignmentHistory) > 0 {
		if rec.AssignmentHistory, err = marshalPtr(&card.AssignmentHistory); err != nil {
			return nil, err
		}
	}
	if rec.TechnicianReport, err = marshalPtr(card.TechnicianReport); err != nil {
		return nil, err
	}
	if rec.ValidationReport, err = marshalPtr(card.ValidationReport); err != nil {
		return nil, err
	}
	if rec.Invoice, err = marshalPtr(card.Invoice); err != nil {
		return nil, err
	}
	if rec.Override, err = marshalPtr(card.Override); err != nil {
		return nil, err
	}
	if rec.Cancellation, err = marshalPtr(card.Cancellation); err != nil {
		return nil, err
	}
	return rec, nil
}

func (rec *jobCardRecord) toModel() (*models.JobCard, error) {
	card := &models.JobCard{
		ID:               rec.ID,
		CustomerID:       rec.CustomerID,
		Vehicle:          models.Vehicle{Make: rec.VehicleMake, Model: rec.VehicleModel, Year: rec.VehicleYear},
		CustomerLocation: models.GeoPoint{Lat: rec.CustomerLat, Lon: rec.CustomerLon},
		ComplaintText:    rec.ComplaintText,
		Status:           models.JobStatus(rec.Status),
		Version:          rec.Version,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}

	var err error
	if card.JobSpec, err = unmarshalPtr[models.JobSpec](rec.JobSpec); err != nil {
		return nil, err
	}
	if card.Assignment, err = unmarshalPtr[models.Assignment](rec.Assignment); err != nil {
		return nil, err
	}
	history, err := unmarshalPtr[[]models.AssignmentChange](rec.AssignmentHistory)
	if err != nil {
		return nil, err
	}
	if history != nil {
		card.AssignmentHistory = *history
	}
	if card.TechnicianReport, err = unmarshalPtr[models.TechnicianReport](rec.TechnicianReport); err != nil {
		return nil, err
	}
	if card.ValidationReport, err = unmarshalPtr[models.ValidationReport](rec.ValidationReport); err != nil {
		return nil, err
	}
	if card.Invoice, err = unmarshalPtr[models.Invoice](rec.Invoice); err != nil {
		return nil, err
	}
	if card.Override, err = unmarshalPtr[models.Override](rec.Override); err != nil {
		return nil, err
	}
	if card.Cancellation, err = unmarshalPtr[models.Cancellation](rec.Cancellation); err != nil {
		return nil, err
	}
	return card, nil
}

func (rec *technicianRecord) toModel() (models.Technician, error) {
	t := models.Technician{
		ID:              rec.ID,
		ServiceCenterID: rec.ServiceCenterID,
		Name:            rec.Name,
		OpenJobs:        rec.OpenJobs,
		Availability:    models.Availability(rec.Availability),
	}
	specs, err := unmarshalPtr[[]string](rec.Specializations)
	if err != nil {
		return t, err
	}
	if specs != nil {
		t.Specializations = *specs
	}
	return t, nil
}
