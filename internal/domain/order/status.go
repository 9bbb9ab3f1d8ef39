package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Status is the canonical order status.
type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusPaymentPending Status = "PAYMENT_PENDING"
	StatusPaid           Status = "PAID"
	StatusAdminConfirmed Status = "ADMIN_CONFIRMED"
	StatusShipped        Status = "SHIPPED"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
)

var ErrUnknownStatus = errors.New("unknown order status")

// AllStatuses lists the canonical statuses in lifecycle order.
var AllStatuses = []Status{
	StatusCreated,
	StatusPaymentPending,
	StatusPaid,
	StatusAdminConfirmed,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
}

// legacyStatuses maps status strings written by the old schema. Keys are lower case.
var legacyStatuses = map[string]Status{
	"pending":    StatusCreated,
	"confirmed":  StatusAdminConfirmed,
	"processing": StatusAdminConfirmed,
	"shipped":    StatusShipped,
	"delivered":  StatusDelivered,
	"cancelled":  StatusCancelled,
}

// adminTransitions is the table consulted for actor-driven transitions.
var adminTransitions = map[Status][]Status{
	StatusCreated:        {StatusAdminConfirmed, StatusCancelled},
	StatusPaymentPending: {StatusAdminConfirmed, StatusCancelled},
	StatusPaid:           {StatusAdminConfirmed, StatusCancelled},
	StatusAdminConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:        {StatusDelivered},
	StatusDelivered:      {}, // terminal state
	StatusCancelled:      {}, // terminal state
}

// ParseStatus normalizes a canonical or legacy status string, ignoring case
// and surrounding whitespace.
func ParseStatus(raw string) (Status, error) {
	s := strings.TrimSpace(raw)
	if legacy, ok := legacyStatuses[strings.ToLower(s)]; ok {
		return legacy, nil
	}
	canonical := Status(strings.ToUpper(s))
	if slices.Contains(AllStatuses, canonical) {
		return canonical, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

// NormalizeStatus is ParseStatus for display paths: unknown input is returned
// unchanged.
func NormalizeStatus(raw string) Status {
	if s, err := ParseStatus(raw); err == nil {
		return s
	}
	return Status(raw)
}

// UnmarshalJSON normalizes legacy values found in stored events and snapshots.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*s = ""
		return nil
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CanTransition reports whether the admin table allows from -> to.
func CanTransition(from, to Status) bool {
	return slices.Contains(adminTransitions[from], to)
}

// AllowedTransitions returns the statuses reachable from s in one step.
func AllowedTransitions(s Status) []Status {
	return slices.Clone(adminTransitions[s])
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// awaitingPayment reports whether the payment overlay may still act.
func (s Status) awaitingPayment() bool {
	return s == StatusCreated || s == StatusPaymentPending
}

type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "COD"
	PaymentMethodOnline PaymentMethod = "ONLINE"
)

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(raw))); m {
	case PaymentMethodCOD, PaymentMethodOnline:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, raw)
}

type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
	PaymentStatusPaid   PaymentStatus = "PAID"
	PaymentStatusFailed PaymentStatus = "FAILED"
)
