package usps

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shipwatch/internal/models"
)

const (
	// DefaultEndpoint is the USPS Web Tools tracking endpoint.
	DefaultEndpoint = "http://production.shippingapis.com/ShippingAPI.dll"

	// BatchLimit is the maximum number of tracking numbers USPS accepts in
	// one TrackFieldRequest.
	BatchLimit = 35
)

// deliveredAttributeCodes is the closed set of DeliveryAttributeCode values
// that mean the shipment reached its destination.
var deliveredAttributeCodes = map[string]bool{
	"01": true, "02": true, "03": true, "04": true, "05": true,
	"06": true, "08": true, "09": true, "10": true, "11": true,
	"17": true, "19": true, "23": true,
}

// TrackError is raised for transport failures, malformed responses and
// service-reported error payloads.
type TrackError struct {
	msg   string
	cause error
}

func (e *TrackError) Error() string { return e.msg }

func (e *TrackError) Unwrap() error { return e.cause }

func trackErrorf(format string, args ...any) *TrackError {
	return &TrackError{msg: fmt.Sprintf(format, args...)}
}

func wrapTrackError(err error, msg string) *TrackError {
	return &TrackError{msg: msg + ": " + err.Error(), cause: err}
}

type Tracker interface {
	FetchBatch(ctx context.Context, trackingNumbers []string) (map[string]*models.Shipment, error)
}

type Client struct {
	endpoint string
	userID   string
	httpc    *http.Client
}

func New(endpoint, userID string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		userID:   userID,
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
}

// Request/response envelopes for the TrackV2 API.

type trackFieldRequest struct {
	XMLName  xml.Name  `xml:"TrackFieldRequest"`
	UserID   string    `xml:"USERID,attr"`
	TrackIDs []trackID `xml:"TrackID"`
}

type trackID struct {
	ID string `xml:"ID,attr"`
}

type apiError struct {
	Number      string `xml:"Number"`
	Description string `xml:"Description"`
}

type trackEvent struct {
	Event                 string `xml:"Event"`
	EventTime             string `xml:"EventTime"`
	EventDate             string `xml:"EventDate"`
	EventCity             string `xml:"EventCity"`
	EventState            string `xml:"EventState"`
	EventZIPCode          string `xml:"EventZIPCode"`
	EventCountry          string `xml:"EventCountry"`
	DeliveryAttributeCode string `xml:"DeliveryAttributeCode"`
}

type trackInfo struct {
	ID           string      `xml:"ID,attr"`
	Error        *apiError   `xml:"Error"`
	TrackSummary *trackEvent `xml:"TrackSummary"`
	// TrackDetail records arrive newest-first. A singleton detail decodes
	// into the same slice as a repeated sequence.
	TrackDetail []trackEvent `xml:"TrackDetail"`
}

type trackResponse struct {
	XMLName     xml.Name
	Description string      `xml:"Description"`
	TrackInfo   []trackInfo `xml:"TrackInfo"`
}

// FetchBatch queries USPS for up to BatchLimit tracking numbers and returns
// one Shipment per tracking number the service reported on. Every failure
// surfaces as *TrackError.
func (c *Client) FetchBatch(ctx context.Context, trackingNumbers []string) (map[string]*models.Shipment, error) {
	if len(trackingNumbers) == 0 {
		return nil, trackErrorf("no tracking numbers")
	}
	if len(trackingNumbers) > BatchLimit {
		return nil, trackErrorf("too many tracking numbers: %d (max %d)", len(trackingNumbers), BatchLimit)
	}
	if len(trackingNumbers) == 1 {
		return c.fetchOne(ctx, trackingNumbers[0])
	}
	return c.fetchMulti(ctx, trackingNumbers)
}

// fetchOne uses the single-track shape: the response's TrackInfo carries no
// ID attribute, so the result is keyed by the requested number.
func (c *Client) fetchOne(ctx context.Context, trackingNumber string) (map[string]*models.Shipment, error) {
	resp, err := c.doRequest(ctx, []string{trackingNumber})
	if err != nil {
		return nil, err
	}
	if len(resp.TrackInfo) == 0 {
		return nil, c.serviceError(resp)
	}
	info := resp.TrackInfo[0]
	if info.Error != nil {
		return nil, trackErrorf("%s", info.Error.Description)
	}
	if info.TrackSummary == nil && len(info.TrackDetail) == 0 {
		return nil, trackErrorf("cannot find any events")
	}
	return map[string]*models.Shipment{
		trackingNumber: buildShipment(info, trackingNumber),
	}, nil
}

// fetchMulti uses the batch-track shape: each TrackInfo is tagged with the
// tracking number in its ID attribute.
func (c *Client) fetchMulti(ctx context.Context, trackingNumbers []string) (map[string]*models.Shipment, error) {
	resp, err := c.doRequest(ctx, trackingNumbers)
	if err != nil {
		return nil, err
	}
	if len(resp.TrackInfo) == 0 {
		return nil, c.serviceError(resp)
	}

	out := make(map[string]*models.Shipment, len(resp.TrackInfo))
	for _, info := range resp.TrackInfo {
		if info.Error != nil {
			return nil, trackErrorf("%s", info.Error.Description)
		}
		tn := strings.TrimSpace(info.ID)
		if tn == "" {
			return nil, trackErrorf("track info without ID attribute")
		}
		out[tn] = buildShipment(info, tn)
	}
	return out, nil
}

func (c *Client) serviceError(resp *trackResponse) *TrackError {
	if resp.Description != "" {
		return trackErrorf("%s", resp.Description)
	}
	return trackErrorf("response missing TrackInfo")
}

func (c *Client) doRequest(ctx context.Context, trackingNumbers []string) (*trackResponse, error) {
	ids := make([]trackID, 0, len(trackingNumbers))
	for _, tn := range trackingNumbers {
		ids = append(ids, trackID{ID: strings.TrimSpace(tn)})
	}
	reqXML, err := xml.Marshal(trackFieldRequest{UserID: c.userID, TrackIDs: ids})
	if err != nil {
		return nil, wrapTrackError(err, "marshal request")
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, wrapTrackError(err, "parse endpoint url")
	}
	q := u.Query()
	q.Set("API", "TrackV2")
	q.Set("XML", xml.Header+string(reqXML))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, wrapTrackError(err, "new request")
	}

	httpResp, err := c.httpc.Do(req)
	if err != nil {
		return nil, wrapTrackError(err, "do request")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode/100 != 2 {
		return nil, trackErrorf("usps http %d", httpResp.StatusCode)
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, wrapTrackError(err, "read body")
	}

	var resp trackResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, wrapTrackError(err, "decode response")
	}
	if resp.XMLName.Local == "Error" {
		return nil, trackErrorf("%s", resp.Description)
	}
	return &resp, nil
}

func buildShipment(info trackInfo, trackingNumber string) *models.Shipment {
	// Raw order is newest-first with the summary as the most recent record.
	raw := info.TrackDetail
	if info.TrackSummary != nil {
		raw = append([]trackEvent{*info.TrackSummary}, info.TrackDetail...)
	}

	events := make([]models.ShipmentEvent, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		events = append(events, toShipmentEvent(raw[i]))
	}

	sh := &models.Shipment{
		TrackingNumber: trackingNumber,
		Events:         events,
	}

	sum := info.TrackSummary
	switch {
	case sum != nil && sum.DeliveryAttributeCode != "":
		sh.IsDelivered = deliveredAttributeCodes[sum.DeliveryAttributeCode] || sum.Event == "Delivered"
		sh.Status = sum.Event
	case sum != nil && sum.Event == "Delivered":
		// International shipments have no DeliveryAttributeCode, just the
		// literal status.
		sh.IsDelivered = true
		sh.Status = sum.Event
	case sum != nil && sum.Event != "":
		sh.Status = sum.Event
	case len(info.TrackDetail) > 0:
		sh.Status = info.TrackDetail[0].Event
	}

	if sh.IsDelivered && len(events) > 0 {
		t := events[0].Time
		sh.DeliveredAt = &t
	}
	return sh
}

func toShipmentEvent(e trackEvent) models.ShipmentEvent {
	return models.ShipmentEvent{
		Time:        parseEventTime(e.EventDate, e.EventTime),
		Description: e.Event,
		City:        e.EventCity,
		State:       e.EventState,
		ZIPCode:     e.EventZIPCode,
		Country:     e.EventCountry,
	}
}

// parseEventTime handles the USPS "May 15, 2018" / "9:57 am" formats.
// Unparseable values yield the zero time; event ordering is positional, so a
// missing timestamp doesn't reorder anything.
func parseEventTime(day, clock string) time.Time {
	day = strings.TrimSpace(day)
	clock = strings.TrimSpace(clock)
	if day == "" {
		return time.Time{}
	}
	if clock != "" {
		if t, err := time.Parse("January 2, 2006 3:04 pm", day+" "+clock); err == nil {
			return t.UTC()
		}
	}
	if t, err := time.Parse("January 2, 2006", day); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
