// Seeds the schema and a handful of demo customers for local runs.
package main

import (
	"time"

	"github.com/lib/pq"

	"github.com/fixhub/workshop-backend/internal/config"
	"github.com/fixhub/workshop-backend/internal/db"
	"github.com/fixhub/workshop-backend/internal/logging"
)

func main() {
	log := logging.New(true)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer conn.Close()

	if err := db.Migrate(conn); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	daysAgo := func(n int) time.Time { return time.Now().AddDate(0, 0, -n) }

	customers := []struct {
		name      string
		phone     string
		kind      string
		tags      []string
		lastVisit *time.Time
	}{
		{"Ali Kaya", "05321112233", "individual", []string{"phone-repair", "vip"}, ptr(daysAgo(12))},
		{"Merve Demir", "05334445566", "individual", []string{"laptop-repair"}, ptr(daysAgo(45))},
		{"Ege Bilisim Ltd", "02125556677", "corporate", []string{"contract", "laptop-repair"}, ptr(daysAgo(7))},
		{"Deniz Arslan", "05387778899", "individual", []string{"tablet-repair"}, nil},
		{"Kaan Yildiz", "05399990011", "individual", []string{"phone-repair"}, ptr(daysAgo(200))},
	}

	for _, c := range customers {
		_, err := conn.Exec(
			`INSERT INTO customers (name, phone, type, tags, last_visit_at) VALUES ($1, $2, $3, $4, $5)`,
			c.name, c.phone, c.kind, pq.Array(c.tags), c.lastVisit,
		)
		if err != nil {
			log.Fatal().Err(err).Str("customer", c.name).Msg("seed customer")
		}
		log.Info().Str("customer", c.name).Msg("seeded")
	}

	log.Info().Msg("database seeding completed")
}

func ptr(t time.Time) *time.Time { return &t }
