package repository

import (
	"os"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

// CatalogSeed is the initial content of the rate/capacity catalog.
type CatalogSeed struct {
	Centers     []models.ServiceCenter
	Technicians []models.Technician
	Rates       models.RateCard
}

type catalogFile struct {
	Centers     []models.ServiceCenter `yaml:"service_centers"`
	Technicians []models.Technician    `yaml:"technicians"`
	PartPrices  map[string]string      `yaml:"part_prices"`
	LaborRates  map[string]string      `yaml:"labor_rates"`
}

// LoadCatalogSeed reads a YAML catalog file. Rate defaults (hourly rate, default part price,
// tax, currency) come from configuration and are completed by the file's price tables.
func LoadCatalogSeed(path string, defaults models.RateCard) (CatalogSeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return CatalogSeed{}, errors.Wrapf(err, "read catalog %s", path)
	}
	return ParseCatalogSeed(raw, defaults)
}

// ParseCatalogSeed decodes YAML catalog content.
func ParseCatalogSeed(raw []byte, defaults models.RateCard) (CatalogSeed, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return CatalogSeed{}, errors.Wrap(err, "decode catalog")
	}

	rates := defaults
	rates.PartPrices = make(map[string]decimal.Decimal, len(file.PartPrices))
	for name, v := range file.PartPrices {
		price, err := decimal.NewFromString(v)
		if err != nil {
			return CatalogSeed{}, errors.Wrapf(err, "part %q price", name)
		}
		rates.PartPrices[models.CatalogKey(name)] = price
	}
	rates.RepairTypeRates = make(map[string]decimal.Decimal, len(file.LaborRates))
	for repairType, v := range file.LaborRates {
		rate, err := decimal.NewFromString(v)
		if err != nil {
			return CatalogSeed{}, errors.Wrapf(err, "labor rate %q", repairType)
		}
		rates.RepairTypeRates[models.CatalogKey(repairType)] = rate
	}

	for i := range file.Technicians {
		if file.Technicians[i].Availability == "" {
			file.Technicians[i].Availability = models.AvailabilityAvailable
		}
	}
	return CatalogSeed{Centers: file.Centers, Technicians: file.Technicians, Rates: rates}, nil
}
