package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"shipwatch/internal/integrations/usps"
	"shipwatch/internal/models"

	"github.com/pkg/errors"
)

// staleDwell is how long an overseas order may sit without carrier activity
// before it is administratively closed.
const staleDwell = 14 * 24 * time.Hour

type OrderStore interface {
	// SelectCandidates returns orders in one of the given statuses created
	// strictly after createdAfter, oldest first, capped at limit.
	SelectCandidates(ctx context.Context, statuses []string, createdAfter time.Time, limit int) ([]*models.Order, error)
	TrackingItems(ctx context.Context, orderID uint64) ([]models.TrackingItem, error)
	SaveOrder(ctx context.Context, o *models.Order) error
}

type CursorStore interface {
	// Get returns the resumption point; the zero time means "from the
	// beginning".
	Get(ctx context.Context) (time.Time, error)
	Set(ctx context.Context, t time.Time) error
	Clear(ctx context.Context) error
}

// Notifier delivers the downstream triggers. Implementations are
// fire-and-forget from the engine's perspective: a failed notification is
// logged and never blocks the cycle.
type Notifier interface {
	Dispatched(ctx context.Context, orderID uint64, o *models.Order) error
	OutForDelivery(ctx context.Context, orderID uint64, o *models.Order) error
	Delivered(ctx context.Context, orderID uint64, o *models.Order) error
	Completed(ctx context.Context, orderID uint64, o *models.Order) error
	StatusObserved(ctx context.Context, rawStatus string, sh *models.Shipment, o *models.Order) error
}

// completedMuter is implemented by notifiers that can suppress the stock
// completed notice; the delivered/out-for-delivery notices supersede it while
// a cycle runs.
type completedMuter interface {
	MuteCompleted(muted bool)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Config struct {
	USPSUserID      string
	Carrier         string
	DomesticCountry string

	LoggingEnabled            bool
	MarkStaleOverseasComplete bool

	CandidateStatuses []string
	ReturnedStatus    string

	RateLimitPerMinute int64
}

// CycleResult summarizes one reconciliation cycle.
type CycleResult struct {
	Candidates  int
	Updated     int
	ChunkErrors int

	// More reports that the candidate set filled the batch limit and a
	// follow-up cycle should run shortly.
	More bool
}

type Engine struct {
	orders   OrderStore
	tracker  usps.Tracker
	notifier Notifier
	cursor   CursorStore
	rl       RateLimiter

	cfg   Config
	lists PhaseLists

	now func() time.Time
}

func New(orders OrderStore, tracker usps.Tracker, notifier Notifier, cursor CursorStore, rl RateLimiter, cfg Config, lists PhaseLists) *Engine {
	if cfg.Carrier == "" {
		cfg.Carrier = "usps"
	}
	if cfg.DomesticCountry == "" {
		cfg.DomesticCountry = "US"
	}
	if len(cfg.CandidateStatuses) == 0 {
		cfg.CandidateStatuses = []string{models.OrderStatusPackingComplete, models.OrderStatusInTransit}
	}
	if cfg.ReturnedStatus == "" {
		cfg.ReturnedStatus = models.OrderStatusReturned
	}
	return &Engine{
		orders:   orders,
		tracker:  tracker,
		notifier: notifier,
		cursor:   cursor,
		rl:       rl,
		cfg:      cfg,
		lists:    lists,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RunCycle performs one reconciliation pass: select candidates after the
// cursor, fetch shipments in bounded batches, diff against stored state,
// apply transitions and triggers, and advance or clear the cursor.
func (e *Engine) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	if e.cfg.USPSUserID == "" {
		slog.Warn("no USPS user id configured, skipping cycle")
		return res, nil
	}

	cursor, err := e.cursor.Get(ctx)
	if err != nil {
		// A lost cursor only means re-checking already-checked orders.
		slog.Warn("read cursor", "error", err.Error())
		cursor = time.Time{}
	}

	candidates, err := e.orders.SelectCandidates(ctx, e.cfg.CandidateStatuses, cursor, usps.BatchLimit)
	if err != nil {
		return res, errors.Wrap(err, "select candidate orders")
	}
	res.Candidates = len(candidates)
	if len(candidates) == 0 {
		// Still below the batch limit: reset the cursor so the next
		// scheduled run starts from the beginning again.
		if err := e.cursor.Clear(ctx); err != nil {
			slog.Error("clear cursor", "error", err.Error())
		}
		return res, nil
	}

	trackingByOrder := e.collectTrackingNumbers(ctx, candidates)
	shipmentsByOrder, chunkErrors := e.fetchShipments(ctx, candidates, trackingByOrder)
	res.ChunkErrors = chunkErrors

	// The stock completed notice is superseded by the delivered and
	// out-for-delivery notices while the engine runs.
	if m, ok := e.notifier.(completedMuter); ok {
		m.MuteCompleted(true)
		defer m.MuteCompleted(false)
	}

	for _, o := range candidates {
		shipments := shipmentsByOrder[o.ID]
		if len(shipments) == 0 {
			continue
		}
		if e.applyOrder(ctx, o, shipments) {
			res.Updated++
		}
	}

	if len(candidates) < usps.BatchLimit {
		if err := e.cursor.Clear(ctx); err != nil {
			slog.Error("clear cursor", "error", err.Error())
		}
	} else {
		last := candidates[len(candidates)-1]
		if err := e.cursor.Set(ctx, last.CreatedAt); err != nil {
			slog.Error("set cursor", "error", err.Error())
		}
		res.More = true
	}

	return res, nil
}

// collectTrackingNumbers extracts each candidate's carrier tracking numbers.
// Orders without any are skipped with a warning; their status is unchanged so
// they stay candidates for the next cycle.
func (e *Engine) collectTrackingNumbers(ctx context.Context, candidates []*models.Order) map[uint64][]string {
	out := make(map[uint64][]string, len(candidates))

	for _, o := range candidates {
		items, err := e.orders.TrackingItems(ctx, o.ID)
		if err != nil {
			slog.Error("load tracking items", "order", o.ID, "error", err.Error())
			continue
		}
		if len(items) == 0 {
			slog.Warn("no shipping tracking found", "order", e.orderRef(o), "status", o.Status)
			continue
		}

		var numbers []string
		for _, it := range items {
			if it.Provider == e.cfg.Carrier && it.TrackingNumber != "" {
				numbers = append(numbers, it.TrackingNumber)
			} else {
				slog.Warn("non-carrier shipping tracking found", "order", e.orderRef(o), "provider", it.Provider)
			}
		}
		if len(numbers) > 0 {
			out[o.ID] = numbers
		}
	}
	return out
}

// fetchShipments resolves tracking numbers to shipments in chunks of at most
// usps.BatchLimit. A failed chunk is logged and skipped; the other chunks
// still contribute results.
func (e *Engine) fetchShipments(ctx context.Context, candidates []*models.Order, trackingByOrder map[uint64][]string) (map[uint64]map[string]*models.Shipment, int) {
	orderByTracking := make(map[string]uint64)
	var trackingNumbers []string
	for _, o := range candidates {
		for _, tn := range trackingByOrder[o.ID] {
			if _, seen := orderByTracking[tn]; !seen {
				trackingNumbers = append(trackingNumbers, tn)
			}
			orderByTracking[tn] = o.ID
		}
	}

	out := make(map[uint64]map[string]*models.Shipment, len(trackingByOrder))
	chunkErrors := 0

	for start := 0; start < len(trackingNumbers); start += usps.BatchLimit {
		end := start + usps.BatchLimit
		if end > len(trackingNumbers) {
			end = len(trackingNumbers)
		}
		chunk := trackingNumbers[start:end]

		e.waitRateLimit(ctx)

		shipments, err := e.tracker.FetchBatch(ctx, chunk)
		if err != nil {
			slog.Error("track error", "size", len(chunk), "error", err.Error())
			chunkErrors++
			continue
		}

		for tn, sh := range shipments {
			orderID, ok := orderByTracking[tn]
			if !ok {
				slog.Warn("shipment for unknown tracking number", "tracking_number", tn)
				continue
			}
			if out[orderID] == nil {
				out[orderID] = make(map[string]*models.Shipment)
			}
			out[orderID][tn] = sh
		}
	}
	return out, chunkErrors
}

func (e *Engine) waitRateLimit(ctx context.Context) {
	if e.rl == nil || e.cfg.RateLimitPerMinute <= 0 {
		return
	}
	minuteKey := fmt.Sprintf("rl:usps:%s", e.now().Format("200601021504"))
	allowed, n, err := e.rl.Allow(ctx, minuteKey, e.cfg.RateLimitPerMinute, 70*time.Second)
	if err != nil {
		slog.Warn("rate limiter unavailable", "error", err.Error())
		return
	}
	if !allowed {
		slog.Warn("rate limit exceeded", "count", n)
		time.Sleep(500 * time.Millisecond)
	}
}

// applyOrder diffs fresh shipments against the order's stored state and
// applies transitions, triggers and persistence. Returns false when nothing
// changed: identical re-polls produce no writes and no triggers.
func (e *Engine) applyOrder(ctx context.Context, o *models.Order, shipments map[string]*models.Shipment) bool {
	last := o.LastStatusByTrackingNumber

	current := make(map[string]string, len(shipments))
	var updated []string
	for tn, sh := range shipments {
		current[tn] = sh.Status
		if prev, ok := last[tn]; !ok || prev != sh.Status {
			updated = append(updated, tn)
		}
	}
	if len(updated) == 0 {
		return false
	}
	sort.Strings(updated)

	// Full overwrite, never a per-key merge: a tracking number the service
	// stopped returning must not linger in the stored state.
	o.LastStatusByTrackingNumber = current
	o.LastShipmentDetail = shipments

	for _, tn := range updated {
		sh := shipments[tn]

		switch e.lists.Classify(sh.Status, sh.IsDelivered) {
		case PhaseNotPickedUp:
			// Нечего делать: посылка ещё не в пути.
		case PhasePickedUp:
			e.setStatus(ctx, o, models.OrderStatusInTransit)
		case PhaseOutForDelivery:
			e.trigger(ctx, "out_for_delivery", e.notifier.OutForDelivery, o)
		case PhaseDelivered:
			e.trigger(ctx, "delivered", e.notifier.Delivered, o)
		case PhaseReturnedToSender:
			e.setStatus(ctx, o, e.cfg.ReturnedStatus)
		}

		if e.cfg.LoggingEnabled {
			slog.Info("shipment status", "order", o.ID, "tracking_number", tn, "status", sh.Status)
		}
		if err := e.notifier.StatusObserved(ctx, sh.Status, sh, o); err != nil {
			slog.Error("status observed event", "order", o.ID, "error", err.Error())
		}
	}

	// Order-level completion: every shipment delivered, returned or with a
	// cancelled label.
	complete := true
	for _, sh := range shipments {
		if !sh.IsDelivered && sh.Status != statusReturnedToSender && sh.Status != statusLabelCancelled {
			complete = false
		}
	}
	if complete {
		e.setStatus(ctx, o, models.OrderStatusCompleted)
	}

	if o.Status != models.OrderStatusCompleted {
		e.applyOverseasStaleness(ctx, o, shipments)
	}

	if err := e.orders.SaveOrder(ctx, o); err != nil {
		// Not retried within the cycle; the stored state was not advanced, so
		// this order is naturally retried on the next run.
		slog.Error("save order", "order", o.ID, "error", err.Error())
		return false
	}
	return true
}

// applyOverseasStaleness closes overseas orders with no carrier activity for
// the dwell period. Some destinations never produce delivery confirmation.
func (e *Engine) applyOverseasStaleness(ctx context.Context, o *models.Order, shipments map[string]*models.Shipment) {
	if !e.cfg.MarkStaleOverseasComplete {
		return
	}
	if o.ShippingCountry == e.cfg.DomesticCountry {
		return
	}

	deadline := e.now().Add(-staleDwell)
	if !o.CreatedAt.Before(deadline) {
		return
	}

	var newest time.Time
	for _, sh := range shipments {
		if t, ok := sh.LastEventTime(); ok && t.After(newest) {
			newest = t
		}
	}
	if newest.IsZero() {
		return
	}
	if newest.Before(deadline) {
		e.setStatus(ctx, o, models.OrderStatusCompleted)
	}
}

// setStatus transitions the order and fires the notification wired to the
// target status. Notifications ride on the transition itself, so repeated
// sets to the same status fire nothing.
func (e *Engine) setStatus(ctx context.Context, o *models.Order, status string) {
	if o.Status == status {
		return
	}
	o.Status = status

	switch status {
	case models.OrderStatusInTransit:
		e.trigger(ctx, "dispatched", e.notifier.Dispatched, o)
	case models.OrderStatusCompleted:
		// Muted during engine cycles; see completedMuter.
		e.trigger(ctx, "completed", e.notifier.Completed, o)
	}
}

func (e *Engine) trigger(ctx context.Context, name string, fn func(context.Context, uint64, *models.Order) error, o *models.Order) {
	if err := fn(ctx, o.ID, o); err != nil {
		slog.Error("notification trigger", "trigger", name, "order", o.ID, "error", err.Error())
	}
}

func (e *Engine) orderRef(o *models.Order) string {
	if o.Number != "" {
		return o.Number
	}
	return fmt.Sprintf("%d", o.ID)
}
