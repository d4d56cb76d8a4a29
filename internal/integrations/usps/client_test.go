package usps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, wantTrackIDs int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "TrackV2", r.URL.Query().Get("API"))
		reqXML := r.URL.Query().Get("XML")
		require.Contains(t, reqXML, `TrackFieldRequest USERID="demo"`)
		require.Equal(t, wantTrackIDs, strings.Count(reqXML, "<TrackID"))

		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(body))
	}))
}

func TestClient_FetchBatch_Single(t *testing.T) {
	srv := newTestServer(t, 1, `<?xml version="1.0" encoding="UTF-8"?>
<TrackResponse>
  <TrackInfo ID="9400100000000000000001">
    <TrackSummary>
      <EventTime>9:57 am</EventTime>
      <EventDate>May 15, 2018</EventDate>
      <Event>Delivered, In/At Mailbox</Event>
      <EventCity>SACRAMENTO</EventCity>
      <EventState>CA</EventState>
      <EventZIPCode>95814</EventZIPCode>
      <DeliveryAttributeCode>01</DeliveryAttributeCode>
    </TrackSummary>
    <TrackDetail>
      <EventTime>8:01 am</EventTime>
      <EventDate>May 15, 2018</EventDate>
      <Event>Out for Delivery</Event>
      <EventCity>SACRAMENTO</EventCity>
      <EventState>CA</EventState>
    </TrackDetail>
    <TrackDetail>
      <EventTime>2:12 pm</EventTime>
      <EventDate>May 13, 2018</EventDate>
      <Event>USPS in possession of item</Event>
      <EventCity>RENO</EventCity>
      <EventState>NV</EventState>
    </TrackDetail>
  </TrackInfo>
</TrackResponse>`)
	defer srv.Close()

	c := New(srv.URL, "demo", 0)
	got, err := c.FetchBatch(context.Background(), []string{"9400100000000000000001"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	sh := got["9400100000000000000001"]
	require.NotNil(t, sh)
	require.True(t, sh.IsDelivered)
	require.Equal(t, "Delivered, In/At Mailbox", sh.Status)

	// Oldest first, summary last.
	require.Len(t, sh.Events, 3)
	require.Equal(t, "USPS in possession of item", sh.Events[0].Description)
	require.Equal(t, "Out for Delivery", sh.Events[1].Description)
	require.Equal(t, "Delivered, In/At Mailbox", sh.Events[2].Description)
	require.Equal(t, time.Date(2018, 5, 13, 14, 12, 0, 0, time.UTC), sh.Events[0].Time)

	// DeliveredAt is the earliest event's timestamp.
	require.NotNil(t, sh.DeliveredAt)
	require.Equal(t, sh.Events[0].Time, *sh.DeliveredAt)
}

func TestClient_FetchBatch_Batch(t *testing.T) {
	srv := newTestServer(t, 2, `<?xml version="1.0" encoding="UTF-8"?>
<TrackResponse>
  <TrackInfo ID="TN1">
    <TrackSummary>
      <EventDate>May 15, 2018</EventDate>
      <Event>Delivered</Event>
    </TrackSummary>
  </TrackInfo>
  <TrackInfo ID="TN2">
    <TrackDetail>
      <EventTime>2:12 pm</EventTime>
      <EventDate>May 13, 2018</EventDate>
      <Event>Arrived at Post Office</Event>
    </TrackDetail>
  </TrackInfo>
</TrackResponse>`)
	defer srv.Close()

	c := New(srv.URL, "demo", 0)
	got, err := c.FetchBatch(context.Background(), []string{"TN1", "TN2"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	// No DeliveryAttributeCode + literal "Delivered" still counts as delivered
	// (international shipments).
	require.True(t, got["TN1"].IsDelivered)
	require.Equal(t, "Delivered", got["TN1"].Status)

	// No summary: status falls back to the first detail record.
	require.False(t, got["TN2"].IsDelivered)
	require.Equal(t, "Arrived at Post Office", got["TN2"].Status)
	require.Nil(t, got["TN2"].DeliveredAt)
}

func TestClient_FetchBatch_UnknownAttributeCode(t *testing.T) {
	srv := newTestServer(t, 1, `<?xml version="1.0" encoding="UTF-8"?>
<TrackResponse>
  <TrackInfo ID="TN1">
    <TrackSummary>
      <EventDate>May 15, 2018</EventDate>
      <Event>Available for Pickup</Event>
      <DeliveryAttributeCode>99</DeliveryAttributeCode>
    </TrackSummary>
  </TrackInfo>
</TrackResponse>`)
	defer srv.Close()

	c := New(srv.URL, "demo", 0)
	got, err := c.FetchBatch(context.Background(), []string{"TN1"})
	require.NoError(t, err)
	require.False(t, got["TN1"].IsDelivered)
	require.Equal(t, "Available for Pickup", got["TN1"].Status)
}

func TestClient_FetchBatch_ServiceErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "top level error node",
			body: `<?xml version="1.0"?><Error><Number>80040B19</Number><Description>XML Syntax Error</Description></Error>`,
			want: "XML Syntax Error",
		},
		{
			name: "track info error node",
			body: `<?xml version="1.0"?><TrackResponse><TrackInfo ID="TN1"><Error><Description>No record of that item</Description></Error></TrackInfo></TrackResponse>`,
			want: "No record of that item",
		},
		{
			name: "missing track info",
			body: `<?xml version="1.0"?><TrackResponse><Description>API Authorization failure</Description></TrackResponse>`,
			want: "API Authorization failure",
		},
		{
			name: "no events",
			body: `<?xml version="1.0"?><TrackResponse><TrackInfo ID="TN1"></TrackInfo></TrackResponse>`,
			want: "cannot find any events",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, 1, tc.body)
			defer srv.Close()

			c := New(srv.URL, "demo", 0)
			_, err := c.FetchBatch(context.Background(), []string{"TN1"})
			require.Error(t, err)

			var te *TrackError
			require.True(t, errors.As(err, &te))
			require.Contains(t, te.Error(), tc.want)
		})
	}
}

func TestClient_FetchBatch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "demo", 0)
	_, err := c.FetchBatch(context.Background(), []string{"TN1"})
	var te *TrackError
	require.True(t, errors.As(err, &te))
}

func TestClient_FetchBatch_Limits(t *testing.T) {
	c := New("http://localhost:0", "demo", 0)

	_, err := c.FetchBatch(context.Background(), nil)
	require.Error(t, err)

	over := make([]string, BatchLimit+1)
	for i := range over {
		over[i] = "TN"
	}
	_, err = c.FetchBatch(context.Background(), over)
	var te *TrackError
	require.True(t, errors.As(err, &te))
	require.Contains(t, te.Error(), "too many tracking numbers")
}
