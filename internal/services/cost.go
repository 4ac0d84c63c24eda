package services

import (
	"campusride/internal/models"
	"campusride/internal/utils"
)

// Pricing estimates the fare for a shared ride locally; no ride-hailing API
// is consulted.
type Pricing struct {
	BaseFare               float64
	PerKmRate              float64
	LargeVehicleMultiplier float64
	LargeVehicleSeats      int // seat totals above this need a larger vehicle
	Currency               string
}

func DefaultPricing() Pricing {
	return Pricing{
		BaseFare:               50,
		PerKmRate:              20,
		LargeVehicleMultiplier: 1.5,
		LargeVehicleSeats:      3,
		Currency:               utils.DefaultCurrency,
	}
}

// EstimateTotal prices the trip between the two centroids.
func (p Pricing) EstimateTotal(meeting, dropoff utils.Point, totalSeats int) float64 {
	km := utils.CalculateDistance(meeting.Lat, meeting.Lng, dropoff.Lat, dropoff.Lng)
	total := p.BaseFare + p.PerKmRate*km
	if totalSeats > p.LargeVehicleSeats && p.LargeVehicleMultiplier > 0 {
		total *= p.LargeVehicleMultiplier
	}
	return utils.RoundMoney(total)
}

// PerPerson splits total equally by participant count, not by seats.
func (p Pricing) PerPerson(total float64, participants int) float64 {
	if participants <= 0 {
		return 0
	}
	return utils.RoundMoney(total / float64(participants))
}

// centroids returns the unweighted centres of the participants' pickups and
// drop-offs.
func centroids(participants []models.Participant) (meeting, dropoff utils.Point) {
	pickups := make([]utils.Point, len(participants))
	drops := make([]utils.Point, len(participants))
	for i, p := range participants {
		pickups[i] = utils.Point{Lat: p.PickupLocation.Latitude, Lng: p.PickupLocation.Longitude}
		drops[i] = utils.Point{Lat: p.DropoffLocation.Latitude, Lng: p.DropoffLocation.Longitude}
	}
	return utils.CalculateCenter(pickups), utils.CalculateCenter(drops)
}

func totalSeats(participants []models.Participant) int {
	seats := 0
	for _, p := range participants {
		seats += p.Seats
	}
	return seats
}

// applyPricing recomputes seats and cost on m from its current participants.
func (p Pricing) applyPricing(m *models.RideMatch, meeting, dropoff utils.Point) {
	m.TotalSeats = totalSeats(m.Participants)
	m.EstimatedTotalCost = p.EstimateTotal(meeting, dropoff, m.TotalSeats)
	m.CostPerPerson = p.PerPerson(m.EstimatedTotalCost, len(m.Participants))
	m.Currency = p.Currency
}
