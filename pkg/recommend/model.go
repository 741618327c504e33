package recommend

import (
	"sync"
	"time"

	"github.com/solarplanner/solarplanner/pkg/types"
)

// Features are the inputs to a scoring model for one candidate slot.
type Features struct {
	// HabitStrength is the device's normalized habit score for the slot,
	// 0 when the household never runs the device then and 1 at its
	// busiest hour.
	HabitStrength float64
	// SolarSurplus is the fraction of the slot's estimated draw covered
	// by forecast production, clamped to [0, 1].
	SolarSurplus float64
	// Weekday is the slot's day of week.
	Weekday time.Weekday
	// Hour is the slot's hour of day.
	Hour int
	// Holiday is whether the slot's date is a holiday.
	Holiday bool
}

// Model scores a candidate slot. Higher is better.
type Model interface {
	Score(f Features) float64
}

// LinearModel blends the habit, solar, and holiday signals with the
// configured weights. It needs no training and is the fallback whenever a
// device has too little history for a trained model.
type LinearModel struct {
	HabitWeight   float64
	SolarWeight   float64
	HolidayWeight float64
	HolidayBoost  float64
}

// NewLinearModel builds a LinearModel from settings.
func NewLinearModel(s types.Settings) *LinearModel {
	return &LinearModel{
		HabitWeight:   s.HabitWeight,
		SolarWeight:   s.SolarWeight,
		HolidayWeight: s.HolidayWeight,
		HolidayBoost:  s.HolidayBoost,
	}
}

// Score implements Model.
func (m *LinearModel) Score(f Features) float64 {
	score := m.HabitWeight*f.HabitStrength + m.SolarWeight*f.SolarSurplus
	if f.Holiday {
		score += m.HolidayWeight * m.HolidayBoost
	}
	return score
}

// Store holds the trained model per device and hands out whichever model is
// current. Retraining builds a new model off to the side and swaps it in
// here, so in-flight requests keep scoring against the model they started
// with.
type Store struct {
	mu     sync.RWMutex
	models map[types.DeviceID]Model
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{models: map[types.DeviceID]Model{}}
}

// Get returns the trained model for the device, if any.
func (s *Store) Get(id types.DeviceID) (Model, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[id]
	return m, ok
}

// Set swaps in a new model for the device.
func (s *Store) Set(id types.DeviceID, m Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[id] = m
}

var _ Model = (*LinearModel)(nil)
