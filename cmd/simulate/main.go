package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barberflow/booking-engine/internal/config"
	"github.com/barberflow/booking-engine/internal/db"
)

type SimConfig struct {
	APIBaseURL        string
	Duration          time.Duration
	Workers           int
	AvailabilityRatio float64
	BookingRatio      float64
	CancelRatio       float64
	HorizonDays       int
	PostgresDSN       string
}

type candidateSlot struct {
	ProviderID uuid.UUID
	ServiceID  uuid.UUID
	Start      time.Time
}

type DataPool struct {
	Providers []uuid.UUID
	Services  []uuid.UUID

	mu           sync.RWMutex
	slots        []candidateSlot // free slots discovered by availability reads
	appointments []uuid.UUID     // created appointment IDs
}

func (dp *DataPool) AddSlots(slots []candidateSlot) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.slots = append(dp.slots, slots...)
	if len(dp.slots) > 10000 {
		dp.slots = dp.slots[len(dp.slots)-10000:]
	}
}

func (dp *DataPool) GetRandomSlot(rng *rand.Rand) (candidateSlot, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.slots) == 0 {
		return candidateSlot{}, false
	}
	return dp.slots[rng.Intn(len(dp.slots))], true
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Availability OperationMetrics
	Booking      OperationMetrics
	Cancel       OperationMetrics
	ReadByID     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d availability=%.2f booking=%.2f cancel=%.2f",
		cfg.Duration, cfg.Workers, cfg.AvailabilityRatio, cfg.BookingRatio, cfg.CancelRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d providers, %d services", len(dataPool.Providers), len(dataPool.Services))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()

	// The point of the exercise: after any amount of concurrent load, no
	// two confirmed appointments for a provider may overlap.
	verifyNoOverlap(context.Background(), pgPool)
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:        getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:          getSimDuration("SIM_DURATION", 30*time.Second),
		Workers:           getInt("SIM_WORKERS", 10),
		AvailabilityRatio: getFloat("SIM_AVAILABILITY_RATIO", 0.4),
		BookingRatio:      getFloat("SIM_BOOKING_RATIO", 0.4),
		CancelRatio:       getFloat("SIM_CANCEL_RATIO", 0.1),
		HorizonDays:       getInt("SIM_HORIZON_DAYS", 7),
		PostgresDSN:       baseCfg.PostgresDSN,
	}

	// Normalize ratios; the remainder goes to reads by ID.
	total := cfg.AvailabilityRatio + cfg.BookingRatio + cfg.CancelRatio
	if total > 1 {
		cfg.AvailabilityRatio /= total
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id FROM providers WHERE active
	`)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Providers = append(dataPool.Providers, id)
	}

	rows, err = pool.Query(ctx, `
		SELECT id FROM services
	`)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Services = append(dataPool.Services, id)
	}

	if len(dataPool.Providers) == 0 {
		return nil, fmt.Errorf("no providers loaded, run cmd/seed first")
	}
	if len(dataPool.Services) == 0 {
		return nil, fmt.Errorf("no services loaded, run cmd/seed first")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.AvailabilityRatio:
				s.doAvailability(ctx, rng)
			case r < s.config.AvailabilityRatio+s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.AvailabilityRatio+s.config.BookingRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				s.doReadByID(ctx, rng)
			}
		}
	}
}

// doAvailability queries free slots for a random provider, service, and
// day, and feeds the results to the booking workers. Workers deliberately
// share discovered slots so bookings race on them.
func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	providerID := s.pool.Providers[rng.Intn(len(s.pool.Providers))]
	serviceID := s.pool.Services[rng.Intn(len(s.pool.Services))]
	date := time.Now().AddDate(0, 0, 1+rng.Intn(s.config.HorizonDays)).Format("2006-01-02")

	start := time.Now()

	q := url.Values{}
	q.Set("service_id", serviceID.String())
	q.Set("date", date)
	reqURL := fmt.Sprintf("%s/providers/%s/availability?%s", s.config.APIBaseURL, providerID, q.Encode())

	req, _ := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			success = true

			var availResp struct {
				Slots []struct {
					Start time.Time `json:"start"`
				} `json:"slots"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if json.Unmarshal(bodyBytes, &availResp) == nil && len(availResp.Slots) > 0 {
				slots := make([]candidateSlot, 0, len(availResp.Slots))
				for _, sl := range availResp.Slots {
					slots = append(slots, candidateSlot{
						ProviderID: providerID,
						ServiceID:  serviceID,
						Start:      sl.Start,
					})
				}
				s.pool.AddSlots(slots)
			}
		}
	}

	s.metrics.Availability.Record(latency, success, false)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slot, ok := s.pool.GetRandomSlot(rng)
	if !ok {
		return
	}

	start := time.Now()

	reqBody := map[string]any{
		"provider_id":     slot.ProviderID.String(),
		"service_id":      slot.ServiceID.String(),
		"start":           slot.Start.Format(time.RFC3339),
		"idempotency_key": uuid.NewString(),
		"customer_name":   fmt.Sprintf("sim-worker-%d", rng.Intn(1000)),
		"customer_email":  "sim@barberflow.test",
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/bookings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusCreated {
			success = true
			var apptResp struct {
				ID uuid.UUID `json:"id"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if len(bodyBytes) > 0 {
				json.Unmarshal(bodyBytes, &apptResp)
				if apptResp.ID != uuid.Nil {
					s.pool.AddAppointment(apptResp.ID)
				}
			}
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/bookings/%s/cancel", s.config.APIBaseURL, apptID), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			success = true
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Cancel.Record(latency, success, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/bookings/%s", s.config.APIBaseURL, apptID), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadByID.Record(latency, success, false)
}

// verifyNoOverlap checks the core invariant directly against the store:
// occupied intervals of confirmed appointments, buffers included, never
// intersect for the same provider.
func verifyNoOverlap(ctx context.Context, pool *pgxpool.Pool) {
	var count int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.provider_id = b.provider_id
		 AND a.id < b.id
		WHERE a.status = 'confirmed'
		  AND b.status = 'confirmed'
		  AND a.start_at < b.end_at + make_interval(mins => b.buffer_mins)
		  AND b.start_at < a.end_at + make_interval(mins => a.buffer_mins)
	`).Scan(&count)
	if err != nil {
		log.Printf("invariant check failed to run: %v", err)
		return
	}
	if count > 0 {
		log.Printf("INVARIANT VIOLATED: %d overlapping confirmed appointment pairs", count)
		return
	}
	log.Println("invariant holds: no overlapping confirmed appointments")
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getSimDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
