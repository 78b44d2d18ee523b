package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"hotelbook/internal/adapters/observability"
	"hotelbook/internal/domain"
	"hotelbook/internal/shared"
	mysqlrepo "hotelbook/internal/storage/mysql"
)

// seedHotel mirrors the catalog file layout. Rates are rupees per night in
// the file and converted to paise on write.
type seedHotel struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	City      *string `json:"city"`
	Country   *string `json:"country"`
	RoomTypes []struct {
		Name          string `json:"name"`
		PricePerNight int64  `json:"pricePerNight"`
		MaxGuests     int    `json:"maxGuests"`
		TotalRooms    int    `json:"totalRooms"`
	} `json:"roomTypes"`
}

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Str("file", cfg.SeedFile).
		Int("workers", cfg.SeedWorkers).
		Msg("seeder starting")

	raw, err := os.ReadFile(cfg.SeedFile)
	if err != nil {
		log.Fatal().Err(err).Msg("reading seed file failed")
	}
	var catalog struct {
		Hotels []seedHotel `json:"hotels"`
	}
	if err := json.Unmarshal(raw, &catalog); err != nil {
		log.Fatal().Err(err).Msg("parsing seed file failed")
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	sem := semaphore.NewWeighted(int64(cfg.SeedWorkers))
	var wg sync.WaitGroup

	for _, h := range catalog.Hotels {
		h := h

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, int64(1)); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(h seedHotel) {
			defer wg.Done()
			defer sem.Release(int64(1))

			if err := seedOne(ctx, repo, h); err != nil {
				log.Warn().Int64("id", h.ID).Err(err).Msg("seed failed")
				return
			}
			log.Info().Int64("id", h.ID).Int("roomTypes", len(h.RoomTypes)).Msg("seed ok")
		}(h)
	}

	wg.Wait()
	log.Info().Msg("seeding completed")
}

func seedOne(ctx context.Context, repo *mysqlrepo.Repo, h seedHotel) error {
	if err := repo.UpsertHotel(ctx, domain.Hotel{
		ID:      h.ID,
		Name:    h.Name,
		City:    h.City,
		Country: h.Country,
	}); err != nil {
		return err
	}
	for _, rt := range h.RoomTypes {
		if err := repo.UpsertRoomType(ctx, domain.RoomType{
			HotelID:         h.ID,
			Name:            rt.Name,
			RatePerNight:    rt.PricePerNight * 100,
			CapacityPerRoom: rt.MaxGuests,
			TotalRooms:      rt.TotalRooms,
		}); err != nil {
			return err
		}
	}
	return nil
}
