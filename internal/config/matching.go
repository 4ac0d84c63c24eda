package config

import (
	"time"
)

type MatchingConfig struct {
	MaxOriginDistance      float64       `yaml:"max_origin_distance"`
	MaxDestinationDistance float64       `yaml:"max_destination_distance"`
	MinMatchScore          int           `yaml:"min_match_score"`
	ConfirmationWindow     time.Duration `yaml:"confirmation_window"`
	SweepInterval          time.Duration `yaml:"sweep_interval"`
	LockTTL                time.Duration `yaml:"lock_ttl"`
	StoreTimeout           time.Duration `yaml:"store_timeout"`
	GeocodeTimeout         time.Duration `yaml:"geocode_timeout"`
	NotifyTimeout          time.Duration `yaml:"notify_timeout"`
}

type PricingConfig struct {
	BaseFare               float64 `yaml:"base_fare"`
	PerKmRate              float64 `yaml:"per_km_rate"`
	LargeVehicleMultiplier float64 `yaml:"large_vehicle_multiplier"`
	LargeVehicleSeats      int     `yaml:"large_vehicle_seats"`
	Currency               string  `yaml:"currency"`
}

func loadMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		MaxOriginDistance:      getEnvAsFloat64("MATCH_MAX_ORIGIN_DISTANCE_M", 2000),
		MaxDestinationDistance: getEnvAsFloat64("MATCH_MAX_DESTINATION_DISTANCE_M", 2000),
		MinMatchScore:          getEnvAsInt("MATCH_MIN_SCORE", 60),
		ConfirmationWindow:     getEnvAsDuration("MATCH_CONFIRMATION_WINDOW", 30*time.Minute),
		SweepInterval:          getEnvAsDuration("MATCH_SWEEP_INTERVAL", time.Minute),
		LockTTL:                getEnvAsDuration("MATCH_LOCK_TTL", 10*time.Second),
		StoreTimeout:           getEnvAsDuration("MATCH_STORE_TIMEOUT", 5*time.Second),
		GeocodeTimeout:         getEnvAsDuration("MATCH_GEOCODE_TIMEOUT", 3*time.Second),
		NotifyTimeout:          getEnvAsDuration("MATCH_NOTIFY_TIMEOUT", 10*time.Second),
	}
}

func loadPricingConfig() *PricingConfig {
	return &PricingConfig{
		BaseFare:               getEnvAsFloat64("PRICING_BASE_FARE", 50),
		PerKmRate:              getEnvAsFloat64("PRICING_PER_KM_RATE", 20),
		LargeVehicleMultiplier: getEnvAsFloat64("PRICING_LARGE_VEHICLE_MULTIPLIER", 1.5),
		LargeVehicleSeats:      getEnvAsInt("PRICING_LARGE_VEHICLE_SEATS", 3),
		Currency:               getEnv("PRICING_CURRENCY", "BDT"),
	}
}
