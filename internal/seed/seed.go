// README: Seed file for the in-memory store. Lets a local run without Postgres
// start with stations and drivers.
package seed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/modules/trip"
	"ridedispatch/internal/types"
)

type Station struct {
	ID     types.ID       `json:"id" validate:"required"`
	Tariff pricing.Tariff `json:"tariff"`
}

type Driver struct {
	ID          types.ID      `json:"id" validate:"required"`
	StationID   *types.ID     `json:"station_id"`
	FullName    string        `json:"full_name" validate:"required"`
	Phone       string        `json:"phone"`
	Status      driver.Status `json:"status"`
	Location    *types.Point  `json:"location"`
	DeviceToken string        `json:"device_token"`
}

// File is the on-disk seed layout.
type File struct {
	Stations []Station `json:"stations" validate:"dive"`
	Drivers  []Driver  `json:"drivers" validate:"dive"`
}

// Load reads and checks a seed file.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(bytes.NewReader(raw))
}

// Parse decodes a seed document. Unknown fields are rejected so a typo does
// not silently drop a tariff setting.
func Parse(r io.Reader) (*File, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	if err := validator.New().Struct(f); err != nil {
		return fmt.Errorf("invalid seed: %w", err)
	}

	var errs []error
	stations := make(map[types.ID]bool, len(f.Stations))
	for _, s := range f.Stations {
		if stations[s.ID] {
			errs = append(errs, fmt.Errorf("station %s listed twice", s.ID))
		}
		stations[s.ID] = true
		if err := checkTariff(s.Tariff); err != nil {
			errs = append(errs, fmt.Errorf("station %s: %w", s.ID, err))
		}
	}
	drivers := make(map[types.ID]bool, len(f.Drivers))
	for _, d := range f.Drivers {
		if drivers[d.ID] {
			errs = append(errs, fmt.Errorf("driver %s listed twice", d.ID))
		}
		drivers[d.ID] = true
		if d.StationID != nil && !stations[*d.StationID] {
			errs = append(errs, fmt.Errorf("driver %s: unknown station %s", d.ID, *d.StationID))
		}
		if d.Status != "" && !d.Status.Valid() {
			errs = append(errs, fmt.Errorf("driver %s: invalid status %q", d.ID, d.Status))
		}
		if d.Location != nil && !d.Location.Valid() {
			errs = append(errs, fmt.Errorf("driver %s: invalid location", d.ID))
		}
	}
	return errors.Join(errs...)
}

func checkTariff(t pricing.Tariff) error {
	switch {
	case t.BaseRate < 0 || t.PerKmRate < 0 || t.MinFare < 0:
		return errors.New("rates must be >= 0")
	case t.NightSurcharge < 1:
		return errors.New("night_surcharge must be >= 1")
	case t.NightStartHour < 0 || t.NightStartHour > 23 || t.NightEndHour < 0 || t.NightEndHour > 23:
		return errors.New("night hours must be within 0-23")
	}
	return nil
}

// Apply loads the drivers into mem and returns the station tariffs. Seeded
// locations are stamped with now, so they age out like any other report.
// Drivers without a status start active.
func (f *File) Apply(mem *trip.MemoryStore, now time.Time) pricing.MapStationStore {
	stations := make(pricing.MapStationStore, len(f.Stations))
	for _, s := range f.Stations {
		stations[s.ID] = s.Tariff
	}
	for _, d := range f.Drivers {
		status := d.Status
		if status == "" {
			status = driver.StatusActive
		}
		rec := driver.Driver{
			ID:          d.ID,
			StationID:   d.StationID,
			FullName:    d.FullName,
			Phone:       d.Phone,
			Status:      status,
			DeviceToken: d.DeviceToken,
			CreatedAt:   now,
		}
		if d.Location != nil {
			rec.Location = &driver.Location{Lat: d.Location.Lat, Lng: d.Location.Lng, UpdatedAt: now}
		}
		mem.PutDriver(rec)
	}
	return stations
}
