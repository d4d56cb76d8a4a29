package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	lists := NewPhaseLists(nil, nil)

	cases := []struct {
		status      string
		isDelivered bool
		want        Phase
	}{
		{"Shipping Label Created, USPS Awaiting Item", false, PhaseNotPickedUp},
		{"Label Cancelled", false, PhaseNotPickedUp},
		{"USPS in possession of item", false, PhasePickedUp},
		{"Arrived at Post Office", false, PhasePickedUp},
		{"Out for Delivery", false, PhaseOutForDelivery},
		{"OUT FOR DELIVERY", false, PhaseOutForDelivery},
		{"Delivered, In/At Mailbox", true, PhaseDelivered},
		{"Delivered, To Original Sender", false, PhaseReturnedToSender},
		{"Arrived at usps facility", false, PhaseOther}, // literal lists are case-sensitive
		{"Forwarded", false, PhaseOther},
		{"", false, PhaseOther},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, lists.Classify(tc.status, tc.isDelivered), "%q delivered=%v", tc.status, tc.isDelivered)
	}
}

func TestClassify_StringPhasesBeforeDeliveredFlag(t *testing.T) {
	lists := NewPhaseLists(nil, nil)

	// A delivered shipment whose text matches a picked-up literal routes
	// through the string phase; the boolean check comes after.
	require.Equal(t, PhasePickedUp, lists.Classify("USPS in possession of item", true))
	require.Equal(t, PhaseNotPickedUp, lists.Classify("Label Cancelled", true))
	require.Equal(t, PhaseOutForDelivery, lists.Classify("Out for Delivery", true))

	// ...but delivered wins over the returned literal.
	require.Equal(t, PhaseDelivered, lists.Classify("Delivered, To Original Sender", true))
}

func TestClassify_Overrides(t *testing.T) {
	lists := NewPhaseLists([]string{"custom waiting"}, []string{"custom scanned"})

	require.Equal(t, PhaseNotPickedUp, lists.Classify("custom waiting", false))
	require.Equal(t, PhasePickedUp, lists.Classify("custom scanned", false))
	// Defaults are replaced, not merged.
	require.Equal(t, PhaseOther, lists.Classify("USPS in possession of item", false))
}
