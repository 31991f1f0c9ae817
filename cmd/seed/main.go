package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barberflow/booking-engine/internal/db"
)

type seedHours struct {
	weekday   time.Weekday
	openMins  int
	closeMins int
}

// Mon-Fri 09:00-17:00, Sat 10:00-15:00, Sun off.
var defaultHours = []seedHours{
	{time.Monday, 9 * 60, 17 * 60},
	{time.Tuesday, 9 * 60, 17 * 60},
	{time.Wednesday, 9 * 60, 17 * 60},
	{time.Thursday, 9 * 60, 17 * 60},
	{time.Friday, 9 * 60, 17 * 60},
	{time.Saturday, 10 * 60, 15 * 60},
}

// Same week, but with a lunch break splitting each weekday in two.
var splitHours = []seedHours{
	{time.Monday, 9 * 60, 13 * 60},
	{time.Monday, 14 * 60, 17 * 60},
	{time.Tuesday, 9 * 60, 13 * 60},
	{time.Tuesday, 14 * 60, 17 * 60},
	{time.Wednesday, 9 * 60, 13 * 60},
	{time.Wednesday, 14 * 60, 17 * 60},
	{time.Thursday, 9 * 60, 13 * 60},
	{time.Thursday, 14 * 60, 17 * 60},
	{time.Friday, 9 * 60, 13 * 60},
	{time.Friday, 14 * 60, 17 * 60},
	{time.Saturday, 10 * 60, 15 * 60},
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedProviders(context.Background(), pool, 10); err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	if err := seedServices(context.Background(), pool); err != nil {
		log.Fatalf("seed services: %v", err)
	}

	log.Println("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, extra int) error {
	log.Printf("seeding %d providers", extra+3)

	specialtyPool := [][]string{
		{"modern cuts", "fades"},
		{"classic styles", "beard trims"},
		{"styling", "coloring"},
		{"hot towel shaves"},
		{"kids cuts", "fades"},
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	type seedProvider struct {
		name        string
		email       string
		phone       string
		specialties []string
		rating      float64
		hours       []seedHours
	}

	providers := []seedProvider{
		{"John Smith", "john@barberflow.com", "555-0101", specialtyPool[0], 4.9, defaultHours},
		{"Mike Johnson", "mike@barberflow.com", "555-0102", specialtyPool[1], 5.0, splitHours},
		{"Sarah Davis", "sarah@barberflow.com", "555-0103", specialtyPool[2], 4.8, defaultHours},
	}

	for i := 0; i < extra; i++ {
		providers = append(providers, seedProvider{
			name:        gofakeit.Name(),
			email:       gofakeit.Email(),
			phone:       gofakeit.Phone(),
			specialties: specialtyPool[gofakeit.Number(0, len(specialtyPool)-1)],
			rating:      gofakeit.Float64Range(3.5, 5.0),
			hours:       defaultHours,
		})
	}

	for _, p := range providers {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, email, phone, specialties, rating, active, timezone, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, true, 'America/New_York', now(), now())
		`, id, p.name, p.email, p.phone, p.specialties, p.rating)
		if err != nil {
			return err
		}

		for _, h := range p.hours {
			_, err := tx.Exec(ctx, `
				INSERT INTO working_hours (provider_id, weekday, open_mins, close_mins)
				VALUES ($1, $2, $3, $4)
			`, id, int(h.weekday), h.openMins, h.closeMins)
			if err != nil {
				return err
			}
		}

		// A one-off closure a few weeks out so override handling is
		// exercised against seeded data too.
		closure := time.Now().AddDate(0, 0, gofakeit.Number(14, 28))
		_, err = tx.Exec(ctx, `
			INSERT INTO date_overrides (provider_id, day, closed)
			VALUES ($1, $2, true)
		`, id, closure)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("providers seeded")
	return nil
}

func seedServices(ctx context.Context, pool *pgxpool.Pool) error {
	log.Println("seeding services")

	type seedService struct {
		name        string
		description string
		duration    int
		buffer      int
		priceCents  int64
	}

	services := []seedService{
		{"Haircut", "Standard haircut", 30, 0, 3000},
		{"Beard Trim", "Beard grooming", 20, 0, 2000},
		{"Shave", "Hot towel shave", 30, 10, 3500},
		{"Full Service", "Haircut + Beard", 60, 10, 5000},
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, s := range services {
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, name, description, duration_mins, buffer_mins, price_cents, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, uuid.New(), s.name, s.description, s.duration, s.buffer, s.priceCents)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("services seeded")
	return nil
}
