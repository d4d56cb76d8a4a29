package reconcile

import "strings"

// Phase is the classified lifecycle bucket of a single carrier status string.
type Phase int

const (
	PhaseOther Phase = iota
	PhaseNotPickedUp
	PhasePickedUp
	PhaseOutForDelivery
	PhaseDelivered
	PhaseReturnedToSender
)

func (p Phase) String() string {
	switch p {
	case PhaseNotPickedUp:
		return "not_picked_up"
	case PhasePickedUp:
		return "picked_up"
	case PhaseOutForDelivery:
		return "out_for_delivery"
	case PhaseDelivered:
		return "delivered"
	case PhaseReturnedToSender:
		return "returned"
	default:
		return "other"
	}
}

const (
	statusLabelCancelled   = "Label Cancelled"
	statusReturnedToSender = "Delivered, To Original Sender"
)

// Default literal lists, curated from historical USPS status data. Overridable
// through configuration so new carrier strings don't need a release.
var (
	defaultNotPickedUpStatuses = []string{
		"Shipping Label Created, USPS Awaiting Item",
		"Pre-Shipment Info Sent to USPS, USPS Awaiting Item",
		"Label Cancelled",
	}

	defaultPickedUpStatuses = []string{
		"Accepted at USPS Origin Facility",
		"USPS in possession of item",
		"Shipment Received, Package Acceptance Pending",
		"Arrived at USPS Regional Origin Facility",
		"Arrived at Post Office",
		"Arrived at USPS Regional Destination Facility",
		"Arrived at Hub",
		"Arrived at USPS Facility",
		"Arrived at USPS Regional Facility",
		"Sorting Complete",
		"Departed Post Office",
		"Dispatched from USPS International Service Center",
	}
)

// PhaseLists holds the configurable literal match lists. Matching is exact and
// case-sensitive, mirroring the raw strings USPS returns.
type PhaseLists struct {
	notPickedUp map[string]struct{}
	pickedUp    map[string]struct{}
}

func NewPhaseLists(notPickedUp, pickedUp []string) PhaseLists {
	if len(notPickedUp) == 0 {
		notPickedUp = defaultNotPickedUpStatuses
	}
	if len(pickedUp) == 0 {
		pickedUp = defaultPickedUpStatuses
	}
	return PhaseLists{
		notPickedUp: toSet(notPickedUp),
		pickedUp:    toSet(pickedUp),
	}
}

func toSet(ss []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		m[s] = struct{}{}
	}
	return m
}

// Classify maps a raw carrier status string to a Phase. Total: every input
// yields exactly one phase. The evaluation order matters and is part of the
// contract: the string-literal phases are checked before the isDelivered
// flag, so a delivered shipment whose summary text matches a picked-up
// literal still routes through PhasePickedUp.
func (l PhaseLists) Classify(status string, isDelivered bool) Phase {
	switch {
	case contains(l.notPickedUp, status):
		return PhaseNotPickedUp
	case contains(l.pickedUp, status):
		return PhasePickedUp
	case strings.EqualFold(status, "out for delivery"):
		return PhaseOutForDelivery
	case isDelivered:
		return PhaseDelivered
	case status == statusReturnedToSender:
		return PhaseReturnedToSender
	default:
		return PhaseOther
	}
}

func contains(set map[string]struct{}, s string) bool {
	_, ok := set[s]
	return ok
}
