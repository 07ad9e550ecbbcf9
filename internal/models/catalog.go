package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ServiceCenter is a physical workshop with a bounded number of concurrent jobs.
type ServiceCenter struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Location   GeoPoint `json:"location" yaml:"location"`
	Capacity   int      `json:"capacity" yaml:"capacity"`
	ActiveJobs int      `json:"active_jobs" yaml:"active_jobs"`
}

// RemainingCapacity is the number of additional jobs the center can accept.
func (c ServiceCenter) RemainingCapacity() int {
	if r := c.Capacity - c.ActiveJobs; r > 0 {
		return r
	}
	return 0
}

// Technician works at exactly one service center.
type Technician struct {
	ID              string       `json:"id" yaml:"id"`
	ServiceCenterID string       `json:"service_center_id" yaml:"service_center_id"`
	Name            string       `json:"name" yaml:"name"`
	Specializations []string     `json:"specializations" yaml:"specializations"`
	OpenJobs        int          `json:"open_jobs" yaml:"open_jobs"`
	Availability    Availability `json:"availability" yaml:"availability"`
}

// HasSpecialization matches case-insensitively.
func (t Technician) HasSpecialization(spec string) bool {
	for _, s := range t.Specializations {
		if strings.EqualFold(strings.TrimSpace(s), spec) {
			return true
		}
	}
	return false
}

// CatalogSnapshot is a consistent read of centers and technicians.
type CatalogSnapshot struct {
	Centers     []ServiceCenter `json:"centers"`
	Technicians []Technician    `json:"technicians"`
}

// RateCard prices labor and parts.
type RateCard struct {
	Currency         string                     `json:"currency"`
	HourlyRate       decimal.Decimal            `json:"hourly_rate"`
	RepairTypeRates  map[string]decimal.Decimal `json:"repair_type_rates,omitempty"`
	PartPrices       map[string]decimal.Decimal `json:"part_prices"`
	DefaultPartPrice decimal.Decimal            `json:"default_part_price"`
	TaxRate          decimal.Decimal            `json:"tax_rate"`
}

// CatalogKey normalizes part names and repair types for lookups.
func CatalogKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// LaborRateFor returns the repair-type specific rate when one exists.
func (r *RateCard) LaborRateFor(repairType string) decimal.Decimal {
	if rate, ok := r.RepairTypeRates[CatalogKey(repairType)]; ok {
		return rate
	}
	return r.HourlyRate
}

// PartPrice looks up a part; ok is false for unknown parts.
func (r *RateCard) PartPrice(part string) (decimal.Decimal, bool) {
	price, ok := r.PartPrices[CatalogKey(part)]
	return price, ok
}
