package engine

import "fmt"

// RequestLockedError is returned when a demande is mutated outside of the
// BROUILLON status, or when a concurrent transition already moved it.
type RequestLockedError struct {
	ID     string
	Statut string
}

func (e *RequestLockedError) Error() string {
	return fmt.Sprintf("demande %s is locked in status %s", e.ID, e.Statut)
}

// Ineligibility reasons surfaced to the client.
const (
	ReasonAgentMissing     = "agent reference missing or unresolved"
	ReasonPosteUnavailable = "desired poste is not available"
	ReasonGradeMismatch    = "agent grade does not match the poste's required grade"
	ReasonAnciennete       = "agent tenure below required minimum"
)

// IneligibleError reports which submission precondition failed.
type IneligibleError struct {
	ID     string
	Reason string
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("demande %s is not eligible: %s", e.ID, e.Reason)
}

// HistoricalIntegrityError blocks poste modification or removal while any
// assignment row, open or closed, still references it.
type HistoricalIntegrityError struct {
	PosteID string
}

func (e *HistoricalIntegrityError) Error() string {
	return fmt.Sprintf("poste %s has assignment history and cannot be modified or removed", e.PosteID)
}

// InvalidTypeError is returned when a STRATEGIQUE demande is attempted
// through a non-privileged path.
type InvalidTypeError struct {
	Type string
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("demande type %s requires a privileged creation path", e.Type)
}
