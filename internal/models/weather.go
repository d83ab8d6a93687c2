package models

import "time"

// WeatherReport holds current conditions for one location. Timestamp is the
// instant the report was fetched from upstream, never an upstream-provided time.
type WeatherReport struct {
	Location    string    `json:"location"`
	Temperature float64   `json:"temperature"` // degrees Celsius
	Conditions  string    `json:"conditions"`
	Humidity    int       `json:"humidity"`   // percentage, 0-100
	WindSpeed   float64   `json:"wind_speed"` // meters/second
	Timestamp   time.Time `json:"timestamp"`
}

// ForecastEntry is one day within a forecast. Date is truncated to UTC
// midnight; Temperature is sampled at a single time of day, not averaged.
type ForecastEntry struct {
	Date        time.Time `json:"date"`
	Temperature float64   `json:"temperature"` // degrees Celsius
	Conditions  string    `json:"conditions"`
}
