package city

import (
	"encoding/json"
	"fmt"
	"io"
)

// Decode reads a JSON array of cities. Each record must carry a non-zero id
// and a valid coordinate; an empty name is accepted and left for the index to
// ignore.
func Decode(r io.Reader) ([]City, error) {
	var cities []City
	dec := json.NewDecoder(r)
	if err := dec.Decode(&cities); err != nil {
		return nil, fmt.Errorf("failed to decode cities: %w", err)
	}
	for i, c := range cities {
		if err := c.validate(); err != nil {
			return nil, fmt.Errorf("city at index %d: %w", i, err)
		}
	}
	return cities, nil
}

// DecodeOne reads a single JSON city object.
func DecodeOne(r io.Reader) (City, error) {
	var c City
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return City{}, fmt.Errorf("failed to decode city: %w", err)
	}
	if err := c.validate(); err != nil {
		return City{}, err
	}
	return c, nil
}

func (c City) validate() error {
	if c.ID == 0 {
		return fmt.Errorf("city %q has no id", c.Name)
	}
	if !c.Coord.Valid() {
		return fmt.Errorf("city %d (%q) has invalid coordinate lat=%v lon=%v", c.ID, c.Name, c.Coord.Lat, c.Coord.Lon)
	}
	return nil
}
