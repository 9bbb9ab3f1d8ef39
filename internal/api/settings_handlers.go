package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/example/grocery-orders/internal/logging"
	"github.com/example/grocery-orders/internal/pricing"
)

// DeliverySettings is the admin view of the pricing settings store.
type DeliverySettings interface {
	Current() pricing.DeliverySettings
	Replace(s pricing.DeliverySettings) error
	Reload() error
}

type SettingsHandlers struct {
	settings DeliverySettings
}

func NewSettingsHandlers(settings DeliverySettings) *SettingsHandlers {
	return &SettingsHandlers{settings: settings}
}

func (h *SettingsHandlers) Get(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.settings.Current())
}

// Put swaps in a whole new settings snapshot. Partial updates are not
// supported; quotes in flight keep the snapshot they started with.
func (h *SettingsHandlers) Put(w http.ResponseWriter, r *http.Request) {
	var s pricing.DeliverySettings
	if !decode(w, r, &s) {
		return
	}
	if err := h.settings.Replace(s); err != nil {
		respondDomainError(w, r, err, nil)
		return
	}
	logging.FromContext(r.Context()).Info("delivery settings replaced", zap.Int("slabs", len(s.Slabs)))
	respondJSON(w, http.StatusOK, h.settings.Current())
}

// Reload re-reads the settings file.
func (h *SettingsHandlers) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.settings.Reload(); err != nil {
		respondDomainError(w, r, err, nil)
		return
	}
	logging.FromContext(r.Context()).Info("delivery settings reloaded")
	respondJSON(w, http.StatusOK, h.settings.Current())
}
