// Package assignment picks a service center and technician for a job card from a catalog
// snapshot. The planner is pure: the same snapshot and request always give the same plan.
package assignment

import (
	"fmt"
	"math"
	"sort"

	"github.com/VishwesGopal13/Automotive-Service/internal/apperr"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

// distanceEpsilon treats centers closer than a micrometre apart as equidistant.
const distanceEpsilon = 1e-9

// Match says how the technician was chosen.
type Match string

const (
	MatchSpecialist Match = "specialist"
	MatchGeneral    Match = "general"
	MatchAvailable  Match = "any_available"
)

// Request is the input to Plan.
type Request struct {
	Location   models.GeoPoint
	RepairType string
	// Exclude lists technician ids that must not be picked, e.g. the one being reassigned away from.
	Exclude []string
}

// Plan is the planner's decision.
type Plan struct {
	Center         models.ServiceCenter
	Technician     models.Technician
	DistanceKM     float64
	Specialization string
	Match          Match
}

// Assignment converts the plan into the value stored on the job card.
func (p *Plan) Assignment() models.Assignment {
	return models.Assignment{
		ServiceCenterID: p.Center.ID,
		TechnicianID:    p.Technician.ID,
		DistanceKM:      math.Round(p.DistanceKM*100) / 100,
		Match:           string(p.Match),
	}
}

// Planner selects the nearest center with room and the least loaded suitable technician there.
type Planner struct{}

// NewPlanner returns a Planner.
func NewPlanner() *Planner {
	return &Planner{}
}

type candidate struct {
	center   models.ServiceCenter
	distance float64
	load     int
	techs    []models.Technician
}

// Plan chooses a center and technician. It returns a NoCapacity error when no center has both
// a free slot and an available technician.
func (p *Planner) Plan(req Request, snap *models.CatalogSnapshot) (*Plan, error) {
	if snap == nil {
		return nil, apperr.NoCapacity("no service centers in catalog")
	}
	excluded := make(map[string]struct{}, len(req.Exclude))
	for _, id := range req.Exclude {
		excluded[id] = struct{}{}
	}

	byCenter := make(map[string][]models.Technician)
	load := make(map[string]int)
	for _, t := range snap.Technicians {
		load[t.ServiceCenterID] += t.OpenJobs
		if t.Availability != models.AvailabilityAvailable {
			continue
		}
		if _, skip := excluded[t.ID]; skip {
			continue
		}
		byCenter[t.ServiceCenterID] = append(byCenter[t.ServiceCenterID], t)
	}

	var candidates []candidate
	for _, c := range snap.Centers {
		if c.RemainingCapacity() == 0 || len(byCenter[c.ID]) == 0 {
			continue
		}
		candidates = append(candidates, candidate{
			center:   c,
			distance: DistanceKM(req.Location, c.Location),
			load:     load[c.ID],
			techs:    byCenter[c.ID],
		})
	}
	if len(candidates) == 0 {
		return nil, apperr.NoCapacity("no service center has free capacity and an available technician")
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if math.Abs(a.distance-b.distance) > distanceEpsilon {
			return a.distance < b.distance
		}
		if a.load != b.load {
			return a.load < b.load
		}
		return a.center.ID < b.center.ID
	})
	best := candidates[0]

	spec := RequiredSpecialization(req.RepairType)
	tech, match := pickTechnician(best.techs, spec)
	return &Plan{
		Center:         best.center,
		Technician:     tech,
		DistanceKM:     best.distance,
		Specialization: spec.Name,
		Match:          match,
	}, nil
}

// pickTechnician walks specialists, then generalists, then anyone available. techs is never
// empty here.
func pickTechnician(techs []models.Technician, spec Specialization) (models.Technician, Match) {
	var specialists, generalists []models.Technician
	for _, t := range techs {
		switch {
		case hasAny(t, spec):
			specialists = append(specialists, t)
		case t.HasSpecialization(General):
			generalists = append(generalists, t)
		}
	}
	switch {
	case len(specialists) > 0:
		return leastLoaded(specialists), MatchSpecialist
	case len(generalists) > 0:
		return leastLoaded(generalists), MatchGeneral
	default:
		return leastLoaded(techs), MatchAvailable
	}
}

func hasAny(t models.Technician, spec Specialization) bool {
	for _, s := range t.Specializations {
		if spec.Accepts(s) {
			return true
		}
	}
	return false
}

func leastLoaded(techs []models.Technician) models.Technician {
	best := techs[0]
	for _, t := range techs[1:] {
		if t.OpenJobs < best.OpenJobs || (t.OpenJobs == best.OpenJobs && t.ID < best.ID) {
			best = t
		}
	}
	return best
}

func (m Match) String() string { return string(m) }

// Describe renders a plan for logs.
func (p *Plan) Describe() string {
	return fmt.Sprintf("%s/%s (%.2f km, %s)", p.Center.ID, p.Technician.ID, p.DistanceKM, p.Match)
}
