package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barberflow/booking-engine/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		SlotStep:          30 * time.Minute,
		LockWait:          250 * time.Millisecond,
		AlternativeLimit:  5,
		SearchHorizonDays: 7,
	}
}

func newTestEngine(t *testing.T) (*Engine, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	engine := NewEngine(repo, NewLocalLocker(2*time.Second), testConfig(), zerolog.Nop())
	// Pin the clock well before the fixture date so nothing is "in the
	// past" unless a test moves it.
	engine.now = func() time.Time { return at(0, 0).AddDate(0, 0, -1) }
	return engine, repo
}

func addProvider(t *testing.T, repo *MemoryRepository, intervals ...OpenInterval) Provider {
	t.Helper()
	if len(intervals) == 0 {
		intervals = []OpenInterval{interval(t, "09:00", "17:00")}
	}
	p := Provider{
		ID:       uuid.New(),
		Name:     "Test Barber",
		Active:   true,
		Calendar: testCalendar(t, intervals...),
	}
	repo.PutProvider(p)
	return p
}

func addService(t *testing.T, repo *MemoryRepository, durationMins, bufferMins int) Service {
	t.Helper()
	s := Service{
		ID:           uuid.New(),
		Name:         "Haircut",
		DurationMins: durationMins,
		BufferMins:   bufferMins,
	}
	repo.PutService(s)
	return s
}

func bookingReq(p Provider, s Service, start time.Time) BookingRequest {
	return BookingRequest{
		ProviderID:     p.ID,
		ServiceID:      s.ID,
		Start:          start,
		IdempotencyKey: uuid.NewString(),
		Customer:       Customer{Name: "Alice", Email: "alice@example.com"},
	}
}

func TestBook_Commits(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	s := addService(t, repo, 30, 0)

	appt, err := engine.Book(context.Background(), bookingReq(p, s, at(10, 0)))
	require.NoError(t, err)
	require.NotNil(t, appt)

	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, at(10, 0), appt.StartAt)
	assert.Equal(t, at(10, 30), appt.EndAt)
	assert.Equal(t, 1, repo.AppointmentCount())

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventBookingCreated, events[0].EventType)
}

func TestBook_ConflictCarriesInterval(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	s := addService(t, repo, 30, 0)

	_, err := engine.Book(context.Background(), bookingReq(p, s, at(10, 0)))
	require.NoError(t, err)

	_, err = engine.Book(context.Background(), bookingReq(p, s, at(10, 15)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, at(10, 0), conflict.ConflictStart)
	assert.Equal(t, at(10, 30), conflict.ConflictEnd)
	assert.Equal(t, 1, repo.AppointmentCount())
}

func TestBook_BackToBackIsNotAConflict(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	s := addService(t, repo, 30, 0)

	_, err := engine.Book(context.Background(), bookingReq(p, s, at(9, 0)))
	require.NoError(t, err)

	// Ends exactly when the next begins, half-open intervals do not
	// overlap.
	_, err = engine.Book(context.Background(), bookingReq(p, s, at(9, 30)))
	require.NoError(t, err)
	assert.Equal(t, 2, repo.AppointmentCount())
}

func TestBook_BufferBlocksAdjacentSlot(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	s := addService(t, repo, 30, 10)

	_, err := engine.Book(context.Background(), bookingReq(p, s, at(9, 0)))
	require.NoError(t, err)

	_, err = engine.Book(context.Background(), bookingReq(p, s, at(9, 30)))
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	_, err = engine.Book(context.Background(), bookingReq(p, s, at(9, 40)))
	assert.NoError(t, err)
}

func TestBook_IdempotentRetry(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	s := addService(t, repo, 30, 0)

	req := bookingReq(p, s, at(10, 0))

	first, err := engine.Book(context.Background(), req)
	require.NoError(t, err)

	second, err := engine.Book(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.AppointmentCount(), "retry must not create a second record")
}

func TestBook_IdempotencyKeyReuseRejected(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	s := addService(t, repo, 30, 0)

	req := bookingReq(p, s, at(10, 0))
	_, err := engine.Book(context.Background(), req)
	require.NoError(t, err)

	req.Start = at(11, 0)
	_, err = engine.Book(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidInput)

	// Same start, different service is just as much a caller bug.
	other := addService(t, repo, 60, 0)
	req.Start = at(10, 0)
	req.ServiceID = other.ID
	_, err = engine.Book(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 1, repo.AppointmentCount())
}

func TestBook_InputValidation(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	s := addService(t, repo, 30, 0)

	req := bookingReq(p, s, at(10, 0))
	req.IdempotencyKey = ""
	_, err := engine.Book(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidInput)

	req = bookingReq(p, s, time.Time{})
	_, err = engine.Book(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidInput)

	req = bookingReq(p, s, at(10, 0))
	req.ProviderID = uuid.New()
	_, err = engine.Book(context.Background(), req)
	assert.ErrorIs(t, err, ErrProviderNotFound)

	req = bookingReq(p, s, at(10, 0))
	req.ServiceID = uuid.New()
	_, err = engine.Book(context.Background(), req)
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestBook_OutsideWorkingHours(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo, interval(t, "09:00", "12:00"))
	s := addService(t, repo, 30, 0)

	// Starts inside but runs past close.
	_, err := engine.Book(context.Background(), bookingReq(p, s, at(11, 45)))
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	_, err = engine.Book(context.Background(), bookingReq(p, s, at(14, 0)))
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Equal(t, 0, repo.AppointmentCount())
}

func TestBook_PastStartRejected(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	s := addService(t, repo, 30, 0)

	engine.now = func() time.Time { return at(12, 0) }

	_, err := engine.Book(context.Background(), bookingReq(p, s, at(10, 0)))
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBook_ConcurrentSameSlot_ExactlyOneWins(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo, interval(t, "09:00", "11:00"))
	s := addService(t, repo, 30, 0)

	var wg sync.WaitGroup
	results := make([]error, 2)
	appts := make([]*Appointment, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			appts[i], results[i] = engine.Book(context.Background(), bookingReq(p, s, at(10, 0)))
		}(i)
	}
	wg.Wait()

	var committed, rejected int
	for i := 0; i < 2; i++ {
		if results[i] == nil {
			committed++
			continue
		}
		rejected++
		assert.ErrorIs(t, results[i], ErrSlotUnavailable)

		var conflict *ConflictError
		require.ErrorAs(t, results[i], &conflict)
		assert.Equal(t, at(10, 0), conflict.ConflictStart)
		assert.Equal(t, at(10, 30), conflict.ConflictEnd)
	}

	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 1, repo.AppointmentCount())
}

func TestBook_ConcurrentLoad_NoOverlapInvariant(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	s := addService(t, repo, 30, 10)

	// Many goroutines fight over a handful of slots; duplicates are
	// expected and must lose cleanly.
	starts := []time.Time{
		at(9, 0), at(9, 30), at(10, 0), at(10, 30), at(11, 0),
	}

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := engine.Book(context.Background(), bookingReq(p, s, starts[i%len(starts)]))
			if err != nil {
				assert.ErrorIs(t, err, ErrSlotUnavailable)
			}
		}(i)
	}
	wg.Wait()

	confirmed, err := repo.ListConfirmedAppointments(context.Background(), p.ID, at(0, 0), at(23, 59))
	require.NoError(t, err)
	require.NotEmpty(t, confirmed)

	for i := range confirmed {
		for j := i + 1; j < len(confirmed); j++ {
			assert.False(t, confirmed[i].Occupied().Overlaps(confirmed[j].Occupied()),
				"appointments %s and %s overlap", confirmed[i].StartAt, confirmed[j].StartAt)
		}
	}
}

func TestBook_DifferentDatesDoNotContend(t *testing.T) {
	repo := NewMemoryRepository()
	locker := NewLocalLocker(time.Second)
	engine := NewEngine(repo, locker, testConfig(), zerolog.Nop())
	engine.now = func() time.Time { return at(0, 0).AddDate(0, 0, -1) }

	p := addProvider(t, repo)
	// Open every day of the week so tomorrow works too.
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		p.Calendar.Rules = append(p.Calendar.Rules, WorkingHoursRule{
			Weekday:   wd,
			Intervals: []OpenInterval{interval(t, "09:00", "17:00")},
		})
	}
	repo.PutProvider(p)
	s := addService(t, repo, 30, 0)

	// Hold today's lock; a booking for tomorrow must still commit.
	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), ScheduleKey{ProviderID: p.ID, Day: testDate}, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	_, err := engine.Book(context.Background(), bookingReq(p, s, at(10, 0).AddDate(0, 0, 1)))
	require.NoError(t, err)
}

func TestBook_BusyWhenScheduleLockHeld(t *testing.T) {
	repo := NewMemoryRepository()
	locker := NewLocalLocker(20 * time.Millisecond)
	engine := NewEngine(repo, locker, testConfig(), zerolog.Nop())
	engine.now = func() time.Time { return at(0, 0).AddDate(0, 0, -1) }

	p := addProvider(t, repo)
	s := addService(t, repo, 30, 0)

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), ScheduleKey{ProviderID: p.ID, Day: testDate}, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	_, err := engine.Book(context.Background(), bookingReq(p, s, at(10, 0)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusy)

	var busy *BusyError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, testConfig().LockWait, busy.RetryAfter)
}

func TestListAppointmentsByEmail(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	s := addService(t, repo, 30, 0)

	first := bookingReq(p, s, at(9, 0))
	_, err := engine.Book(context.Background(), first)
	require.NoError(t, err)

	second := bookingReq(p, s, at(11, 0))
	_, err = engine.Book(context.Background(), second)
	require.NoError(t, err)

	other := bookingReq(p, s, at(13, 0))
	other.Customer = Customer{Name: "Bob", Email: "bob@example.com"}
	_, err = engine.Book(context.Background(), other)
	require.NoError(t, err)

	appts, err := engine.ListAppointmentsByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.Len(t, appts, 2)
	assert.True(t, appts[0].StartAt.After(appts[1].StartAt), "newest first")
	for _, a := range appts {
		assert.Equal(t, "alice@example.com", a.Customer.Email)
	}

	appts, err = engine.ListAppointmentsByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, appts)

	_, err = engine.ListAppointmentsByEmail(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCancel_FreesTheSlot(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	s := addService(t, repo, 30, 0)

	appt, err := engine.Book(context.Background(), bookingReq(p, s, at(10, 0)))
	require.NoError(t, err)

	require.NoError(t, engine.Cancel(context.Background(), appt.ID))

	got, err := engine.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	// The slot is bookable again.
	_, err = engine.Book(context.Background(), bookingReq(p, s, at(10, 0)))
	assert.NoError(t, err)
}

func TestCancel_Idempotent(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	s := addService(t, repo, 30, 0)

	appt, err := engine.Book(context.Background(), bookingReq(p, s, at(10, 0)))
	require.NoError(t, err)

	require.NoError(t, engine.Cancel(context.Background(), appt.ID))
	require.NoError(t, engine.Cancel(context.Background(), appt.ID))

	got, err := engine.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestCancel_NotFound(t *testing.T) {
	engine, _ := newTestEngine(t)
	err := engine.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestCancel_CompletedRejected(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	s := addService(t, repo, 30, 0)

	appt, err := engine.Book(context.Background(), bookingReq(p, s, at(10, 0)))
	require.NoError(t, err)

	_, err = repo.UpdateAppointmentStatus(context.Background(), appt.ID, StatusConfirmed, StatusCompleted)
	require.NoError(t, err)

	err = engine.Cancel(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAvailability_ExcludesBookedSlots(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo, interval(t, "09:00", "11:00"))
	s := addService(t, repo, 30, 0)

	slots, err := engine.Availability(context.Background(), p.ID, s.ID, testDate, at(0, 0))
	require.NoError(t, err)
	require.Len(t, slots, 4)

	_, err = engine.Book(context.Background(), bookingReq(p, s, at(9, 30)))
	require.NoError(t, err)

	slots, err = engine.Availability(context.Background(), p.ID, s.ID, testDate, at(0, 0))
	require.NoError(t, err)
	require.Len(t, slots, 3)
	for _, slot := range slots {
		assert.NotEqual(t, at(9, 30), slot.Start)
	}
}

func TestAvailability_ClosedOverrideYieldsNothing(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	p.Calendar.Overrides = []DateOverride{{Date: testDate, Closed: true}}
	repo.PutProvider(p)
	s := addService(t, repo, 30, 0)

	slots, err := engine.Availability(context.Background(), p.ID, s.ID, testDate, at(0, 0))
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestAvailability_InactiveProvider(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	p.Active = false
	repo.PutProvider(p)
	s := addService(t, repo, 30, 0)

	slots, err := engine.Availability(context.Background(), p.ID, s.ID, testDate, at(0, 0))
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestCheckSlot_Available(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	s := addService(t, repo, 30, 0)

	check, err := engine.CheckSlot(context.Background(), p.ID, s.ID, at(10, 0), at(0, 0))
	require.NoError(t, err)
	assert.True(t, check.Available)
	assert.Empty(t, check.Alternatives)
}

func TestCheckSlot_ConflictSuggestsAlternatives(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	s := addService(t, repo, 30, 0)

	_, err := engine.Book(context.Background(), bookingReq(p, s, at(10, 0)))
	require.NoError(t, err)

	check, err := engine.CheckSlot(context.Background(), p.ID, s.ID, at(10, 0), at(0, 0))
	require.NoError(t, err)
	assert.False(t, check.Available)
	require.NotEmpty(t, check.Alternatives)
	assert.LessOrEqual(t, len(check.Alternatives), 5)
	for _, alt := range check.Alternatives {
		assert.NotEqual(t, at(10, 0), alt.Start)
	}
}

func TestCheckSlot_OutsideWorkingHours(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo, interval(t, "09:00", "12:00"))
	s := addService(t, repo, 30, 0)

	check, err := engine.CheckSlot(context.Background(), p.ID, s.ID, at(15, 0), at(0, 0))
	require.NoError(t, err)
	assert.False(t, check.Available)
	assert.NotEmpty(t, check.Alternatives)
}

func TestCheckSlot_ClosedDayScansForward(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	// Open on the next weekday too, but closed on the requested date.
	nextDay := testDate.AddDays(1)
	p.Calendar.Rules = append(p.Calendar.Rules, WorkingHoursRule{
		Weekday:   nextDay.Weekday(),
		Intervals: []OpenInterval{interval(t, "09:00", "17:00")},
	})
	p.Calendar.Overrides = []DateOverride{{Date: testDate, Closed: true}}
	repo.PutProvider(p)
	s := addService(t, repo, 30, 0)

	check, err := engine.CheckSlot(context.Background(), p.ID, s.ID, at(10, 0), at(0, 0))
	require.NoError(t, err)
	assert.False(t, check.Available)
	require.NotEmpty(t, check.Alternatives)
	assert.Equal(t, nextDay, DateOf(check.Alternatives[0].Start))
}

func TestCheckSlot_PastStart(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	s := addService(t, repo, 30, 0)

	check, err := engine.CheckSlot(context.Background(), p.ID, s.ID, at(9, 0), at(12, 0))
	require.NoError(t, err)
	assert.False(t, check.Available)
}

func TestCompleteFinished_SweepsPastAppointments(t *testing.T) {
	engine, repo := newTestEngine(t)
	p := addProvider(t, repo)
	s := addService(t, repo, 30, 0)

	appt, err := engine.Book(context.Background(), bookingReq(p, s, at(10, 0)))
	require.NoError(t, err)

	// Before the end time nothing is swept.
	require.NoError(t, engine.CompleteFinished(context.Background(), at(10, 15)))
	got, err := engine.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)

	require.NoError(t, engine.CompleteFinished(context.Background(), at(11, 0)))
	got, err = engine.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	var completedEvents int
	for _, ev := range repo.Events() {
		if ev.EventType == EventBookingCompleted {
			completedEvents++
		}
	}
	assert.Equal(t, 1, completedEvents)
}

// cancelAfterListRepo cancels every appointment it reports finished,
// simulating a cancellation racing the completion sweep between its read
// and its guarded update.
type cancelAfterListRepo struct {
	*MemoryRepository
}

func (r *cancelAfterListRepo) ListFinishedConfirmed(ctx context.Context, now time.Time) ([]Appointment, error) {
	finished, err := r.MemoryRepository.ListFinishedConfirmed(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, a := range finished {
		if _, err := r.UpdateAppointmentStatus(ctx, a.ID, StatusConfirmed, StatusCancelled); err != nil {
			return nil, err
		}
	}
	return finished, nil
}

func TestCompleteFinished_NoEventWhenCancelledMidSweep(t *testing.T) {
	mem := NewMemoryRepository()
	repo := &cancelAfterListRepo{MemoryRepository: mem}
	engine := NewEngine(repo, NewLocalLocker(2*time.Second), testConfig(), zerolog.Nop())
	engine.now = func() time.Time { return at(0, 0).AddDate(0, 0, -1) }

	p := addProvider(t, mem)
	s := addService(t, mem, 30, 0)

	appt, err := engine.Book(context.Background(), bookingReq(p, s, at(10, 0)))
	require.NoError(t, err)

	require.NoError(t, engine.CompleteFinished(context.Background(), at(11, 0)))

	got, err := engine.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status, "sweep must not override the cancellation")

	for _, ev := range mem.Events() {
		assert.NotEqual(t, EventBookingCompleted, ev.EventType,
			"no completion event for an appointment that was never completed")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	conflict := &ConflictError{Reason: "conflicts with an existing appointment", ConflictStart: at(10, 0), ConflictEnd: at(10, 30)}
	assert.True(t, errors.Is(conflict, ErrSlotUnavailable))
	assert.Contains(t, conflict.Error(), "conflicts")

	busy := &BusyError{RetryAfter: time.Second}
	assert.True(t, errors.Is(busy, ErrBusy))
}
