package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a Repository over in-process maps. It backs tests
// and single-node deployments; pair it with LocalLocker, since the maps
// themselves provide no cross-call atomicity for read-then-write.
type MemoryRepository struct {
	mu sync.RWMutex

	providers     map[uuid.UUID]Provider
	services      map[uuid.UUID]Service
	appointments  map[uuid.UUID]Appointment
	byIdempotency map[string]uuid.UUID
	events        []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		providers:     make(map[uuid.UUID]Provider),
		services:      make(map[uuid.UUID]Service),
		appointments:  make(map[uuid.UUID]Appointment),
		byIdempotency: make(map[string]uuid.UUID),
	}
}

// PutProvider adds or replaces a provider.
func (m *MemoryRepository) PutProvider(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.ID] = p
}

// PutService adds or replaces a service.
func (m *MemoryRepository) PutService(s Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[s.ID] = s
}

func (m *MemoryRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

func (m *MemoryRepository) ListProviders(ctx context.Context) ([]Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]Provider, 0, len(m.providers))
	for _, p := range m.providers {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *MemoryRepository) GetServiceByID(ctx context.Context, id uuid.UUID) (*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return &s, nil
}

func (m *MemoryRepository) ListServices(ctx context.Context) ([]Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]Service, 0, len(m.services))
	for _, s := range m.services {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *MemoryRepository) ListConfirmedAppointments(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []Appointment
	for _, a := range m.appointments {
		if a.ProviderID != providerID || a.Status != StatusConfirmed {
			continue
		}
		if a.StartAt.Before(to) && a.EndAt.After(from) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartAt.Before(result[j].StartAt) })
	return result, nil
}

func (m *MemoryRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *MemoryRepository) GetAppointmentByIdempotencyKey(ctx context.Context, key string) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byIdempotency[key]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a := m.appointments[id]
	return &a, nil
}

func (m *MemoryRepository) ListAppointmentsByCustomerEmail(ctx context.Context, email string) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []Appointment
	for _, a := range m.appointments {
		if a.Customer.Email == email {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartAt.After(result[j].StartAt) })
	return result, nil
}

func (m *MemoryRepository) InsertAppointment(ctx context.Context, appt *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appointments[appt.ID] = *appt
	if appt.IdempotencyKey != "" {
		m.byIdempotency[appt.IdempotencyKey] = appt.ID
	}
	return nil
}

func (m *MemoryRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	m.appointments[id] = a
	return &a, nil
}

func (m *MemoryRepository) ListFinishedConfirmed(ctx context.Context, now time.Time) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []Appointment
	for _, a := range m.appointments {
		if a.Status == StatusConfirmed && a.EndAt.Before(now) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *MemoryRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (m *MemoryRepository) Events() []EventLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]EventLog, len(m.events))
	copy(out, m.events)
	return out
}

// AppointmentCount reports how many appointment records exist, any status.
func (m *MemoryRepository) AppointmentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.appointments)
}
