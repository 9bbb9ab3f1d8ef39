package pricing

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/example/grocery-orders/internal/geo"
)

var (
	ErrInvalidSettings = errors.New("invalid delivery settings")
	ErrNoSettingsFile  = errors.New("delivery settings file not configured")
)

// DeliverySlab maps a distance range to a flat delivery fee.
type DeliverySlab struct {
	MinDistanceKm float64 `json:"min_distance_km" yaml:"min_distance_km"`
	MaxDistanceKm float64 `json:"max_distance_km" yaml:"max_distance_km"`
	ChargeAmount  float64 `json:"charge_amount" yaml:"charge_amount"`
}

// DeliverySettings is the store's delivery configuration. Values are treated
// as immutable once loaded; a reload replaces the whole value.
type DeliverySettings struct {
	FreeDistanceLimitKm         float64        `json:"free_distance_limit_km" yaml:"free_distance_limit_km"`
	FreeDeliveryThresholdAmount float64        `json:"free_delivery_threshold_amount" yaml:"free_delivery_threshold_amount"`
	MaxDeliveryDistanceKm       float64        `json:"max_delivery_distance_km" yaml:"max_delivery_distance_km"`
	Slabs                       []DeliverySlab `json:"slabs" yaml:"slabs"`
	StoreLocation               geo.Coordinate `json:"store_location" yaml:"store_location"`
}

// Validate checks ranges and amounts.
func (s DeliverySettings) Validate() error {
	if err := s.StoreLocation.Validate(); err != nil {
		return fmt.Errorf("%w: store location: %v", ErrInvalidSettings, err)
	}
	if s.FreeDistanceLimitKm < 0 || s.FreeDeliveryThresholdAmount < 0 {
		return fmt.Errorf("%w: negative free-delivery limits", ErrInvalidSettings)
	}
	if s.MaxDeliveryDistanceKm <= 0 {
		return fmt.Errorf("%w: max delivery distance must be positive", ErrInvalidSettings)
	}
	for i, slab := range s.Slabs {
		if slab.MinDistanceKm < 0 || slab.MinDistanceKm > slab.MaxDistanceKm {
			return fmt.Errorf("%w: slab %d has min %v > max %v", ErrInvalidSettings, i, slab.MinDistanceKm, slab.MaxDistanceKm)
		}
		if slab.ChargeAmount < 0 {
			return fmt.Errorf("%w: slab %d has negative charge", ErrInvalidSettings, i)
		}
	}
	return nil
}

func (s DeliverySettings) clone() DeliverySettings {
	s.Slabs = slices.Clone(s.Slabs)
	return s
}

// ParseSettings decodes and validates a YAML settings document.
func ParseSettings(data []byte) (DeliverySettings, error) {
	var s DeliverySettings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return DeliverySettings{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if err := s.Validate(); err != nil {
		return DeliverySettings{}, err
	}
	return s, nil
}

// LoadSettings reads a YAML settings file.
func LoadSettings(path string) (DeliverySettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DeliverySettings{}, fmt.Errorf("read delivery settings: %w", err)
	}
	return ParseSettings(data)
}

// SettingsStore hands out the current settings snapshot. Readers never see a
// partially updated value: Replace and Reload swap the whole snapshot.
type SettingsStore struct {
	current atomic.Pointer[DeliverySettings]
	path    string
	mu      sync.Mutex
}

func NewSettingsStore(initial DeliverySettings, path string) (*SettingsStore, error) {
	st := &SettingsStore{path: path}
	if err := st.Replace(initial); err != nil {
		return nil, err
	}
	return st, nil
}

// NewSettingsStoreFromFile loads path and keeps it for later reloads.
func NewSettingsStoreFromFile(path string) (*SettingsStore, error) {
	s, err := LoadSettings(path)
	if err != nil {
		return nil, err
	}
	return NewSettingsStore(s, path)
}

// Current returns a copy of the active snapshot.
func (st *SettingsStore) Current() DeliverySettings {
	return st.current.Load().clone()
}

// Replace validates s and makes it the active snapshot.
func (st *SettingsStore) Replace(s DeliverySettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	snapshot := s.clone()
	st.current.Store(&snapshot)
	return nil
}

// Reload re-reads the settings file. On error the active snapshot is kept.
func (st *SettingsStore) Reload() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.path == "" {
		return ErrNoSettingsFile
	}
	s, err := LoadSettings(st.path)
	if err != nil {
		return err
	}
	return st.Replace(s)
}
