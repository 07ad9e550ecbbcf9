package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/VishwesGopal13/Automotive-Service/internal/apperr"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

// MemoryStore is an in-process Store. A single mutex serializes every operation; InTx stages
// writes on copies of the maps and swaps them in only when fn succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	cards   map[uuid.UUID]*models.JobCard
	centers map[string]models.ServiceCenter
	techs   map[string]models.Technician
	rates   models.RateCard
}

// NewMemoryStore builds a store preloaded with the catalog.
func NewMemoryStore(seed CatalogSeed) *MemoryStore {
	st := memState{
		cards:   make(map[uuid.UUID]*models.JobCard),
		centers: make(map[string]models.ServiceCenter, len(seed.Centers)),
		techs:   make(map[string]models.Technician, len(seed.Technicians)),
		rates:   seed.Rates,
	}
	for _, c := range seed.Centers {
		st.centers[c.ID] = c
	}
	for _, t := range seed.Technicians {
		st.techs[t.ID] = t
	}
	return &MemoryStore{state: st}
}

func (s *MemoryStore) Create(ctx context.Context, card *models.JobCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&s.state).Create(ctx, card)
}

func (s *MemoryStore) Load(ctx context.Context, id uuid.UUID) (*models.JobCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&s.state).Load(ctx, id)
}

func (s *MemoryStore) SaveIfVersion(ctx context.Context, card *models.JobCard, expected int64) (*models.JobCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&s.state).SaveIfVersion(ctx, card, expected)
}

func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*models.JobCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&s.state).List(ctx, filter)
}

func (s *MemoryStore) Snapshot(ctx context.Context) (*models.CatalogSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&s.state).Snapshot(ctx)
}

func (s *MemoryStore) Technician(ctx context.Context, id string) (*models.Technician, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&s.state).Technician(ctx, id)
}

func (s *MemoryStore) Reserve(ctx context.Context, centerID, technicianID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&s.state).Reserve(ctx, centerID, technicianID)
}

func (s *MemoryStore) Release(ctx context.Context, centerID, technicianID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&s.state).Release(ctx, centerID, technicianID)
}

func (s *MemoryStore) RateCard(ctx context.Context) (*models.RateCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&s.state).RateCard(ctx)
}

func (s *MemoryStore) SetAvailability(ctx context.Context, technicianID string, availability models.Availability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&s.state).SetAvailability(ctx, technicianID, availability)
}

// InTx holds the store lock for the whole of fn.
func (s *MemoryStore) InTx(ctx context.Context, fn func(JobCardStore, CatalogStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.state.copy()
	if err := fn(&staged, &staged); err != nil {
		return err
	}
	s.state = staged
	return nil
}

func (m memState) copy() memState {
	out := memState{
		cards:   make(map[uuid.UUID]*models.JobCard, len(m.cards)),
		centers: make(map[string]models.ServiceCenter, len(m.centers)),
		techs:   make(map[string]models.Technician, len(m.techs)),
		rates:   m.rates,
	}
	for k, v := range m.cards {
		out.cards[k] = v
	}
	for k, v := range m.centers {
		out.centers[k] = v
	}
	for k, v := range m.techs {
		out.techs[k] = v
	}
	return out
}

// Stored cards are never mutated in place: writes replace the pointer with a fresh clone.

func (m *memState) Create(_ context.Context, card *models.JobCard) error {
	if _, ok := m.cards[card.ID]; ok {
		return apperr.Conflict(fmt.Sprintf("job card %s already exists", card.ID))
	}
	m.cards[card.ID] = card.Clone()
	return nil
}

func (m *memState) Load(_ context.Context, id uuid.UUID) (*models.JobCard, error) {
	card, ok := m.cards[id]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("job card %s not found", id))
	}
	return card.Clone(), nil
}

func (m *memState) SaveIfVersion(_ context.Context, card *models.JobCard, expected int64) (*models.JobCard, error) {
	current, ok := m.cards[card.ID]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("job card %s not found", card.ID))
	}
	if current.Version != expected {
		return nil, apperr.Conflict(fmt.Sprintf("job card %s is at version %d, not %d", card.ID, current.Version, expected))
	}
	saved := card.Clone()
	saved.Version = expected + 1
	m.cards[card.ID] = saved
	return saved.Clone(), nil
}

func (m *memState) List(_ context.Context, filter ListFilter) ([]*models.JobCard, error) {
	var out []*models.JobCard
	for _, card := range m.cards {
		if filter.matches(card) {
			out = append(out, card.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		if filter.OldestFirst {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > filter.limit() {
		out = out[:filter.limit()]
	}
	return out, nil
}

func (m *memState) Snapshot(_ context.Context) (*models.CatalogSnapshot, error) {
	snap := &models.CatalogSnapshot{
		Centers:     make([]models.ServiceCenter, 0, len(m.centers)),
		Technicians: make([]models.Technician, 0, len(m.techs)),
	}
	for _, c := range m.centers {
		snap.Centers = append(snap.Centers, c)
	}
	for _, t := range m.techs {
		t.Specializations = append([]string(nil), t.Specializations...)
		snap.Technicians = append(snap.Technicians, t)
	}
	sort.Slice(snap.Centers, func(i, j int) bool { return snap.Centers[i].ID < snap.Centers[j].ID })
	sort.Slice(snap.Technicians, func(i, j int) bool { return snap.Technicians[i].ID < snap.Technicians[j].ID })
	return snap, nil
}

func (m *memState) Technician(_ context.Context, id string) (*models.Technician, error) {
	t, ok := m.techs[id]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("technician %s not found", id))
	}
	return &t, nil
}

func (m *memState) Reserve(_ context.Context, centerID, technicianID string) error {
	center, ok := m.centers[centerID]
	if !ok {
		return apperr.NotFound(fmt.Sprintf("service center %s not found", centerID))
	}
	tech, ok := m.techs[technicianID]
	if !ok || tech.ServiceCenterID != centerID {
		return apperr.NotFound(fmt.Sprintf("technician %s not found at %s", technicianID, centerID))
	}
	if center.RemainingCapacity() == 0 {
		return apperr.NoCapacity(fmt.Sprintf("service center %s is full", centerID))
	}
	center.ActiveJobs++
	tech.OpenJobs++
	m.centers[centerID] = center
	m.techs[technicianID] = tech
	return nil
}

func (m *memState) Release(_ context.Context, centerID, technicianID string) error {
	if center, ok := m.centers[centerID]; ok && center.ActiveJobs > 0 {
		center.ActiveJobs--
		m.centers[centerID] = center
	}
	if tech, ok := m.techs[technicianID]; ok && tech.OpenJobs > 0 {
		tech.OpenJobs--
		m.techs[technicianID] = tech
	}
	return nil
}

func (m *memState) RateCard(_ context.Context) (*models.RateCard, error) {
	rc := m.rates
	return &rc, nil
}

func (m *memState) SetAvailability(_ context.Context, technicianID string, availability models.Availability) error {
	tech, ok := m.techs[technicianID]
	if !ok {
		return apperr.NotFound(fmt.Sprintf("technician %s not found", technicianID))
	}
	tech.Availability = availability
	m.techs[technicianID] = tech
	return nil
}
