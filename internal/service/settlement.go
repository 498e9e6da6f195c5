package service

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jdkroon/adslot-backend/internal/model"
	"github.com/jdkroon/adslot-backend/internal/repository"
)

// SettlementService drives the month-close: freeze a period into a
// snapshot, generate advertiser invoices from the frozen state, allocate
// revenue to partner locations, compute payouts with the carry-over
// threshold, and finally lock the period.  Every step runs in one database
// transaction and re-entry is a guarded no-op, so retries after a crash or
// a double click are safe.
type SettlementService struct {
	Snapshots *repository.SnapshotRepo
	Contracts *repository.ContractRepo
	Locations *repository.LocationRepo
	Settle    *repository.SettlementRepo
}

// NewSettlementService constructs a SettlementService.
func NewSettlementService(snap *repository.SnapshotRepo, contracts *repository.ContractRepo, locations *repository.LocationRepo, settle *repository.SettlementRepo) *SettlementService {
	return &SettlementService{Snapshots: snap, Contracts: contracts, Locations: locations, Settle: settle}
}

// CreateSnapshot freezes the contract and placement state effective in the
// given period.  Idempotent: a second call for the same period returns the
// existing snapshot untouched.  The boolean reports whether a new snapshot
// was created.
func (s *SettlementService) CreateSnapshot(ctx context.Context, year, month int) (*model.MonthlySnapshot, bool, error) {
	periodStart := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, -1)

	contracts, err := s.Contracts.ListEffectiveInPeriod(ctx, periodStart, periodEnd)
	if err != nil {
		return nil, false, err
	}
	contractIDs := make([]uint64, 0, len(contracts))
	for _, c := range contracts {
		contractIDs = append(contractIDs, c.ID)
	}
	placements, err := s.Contracts.ListPlacementsByContracts(ctx, contractIDs)
	if err != nil {
		return nil, false, err
	}
	locations, screens, err := s.Locations.ListWithScreens(ctx)
	if err != nil {
		return nil, false, err
	}

	payload := model.SnapshotPayload{
		Year:     year,
		Month:    month,
		FrozenAt: time.Now().UTC(),
	}
	for _, c := range contracts {
		payload.Contracts = append(payload.Contracts, model.FrozenContract{
			ContractID:        c.ID,
			AdvertiserID:      c.AdvertiserID,
			Status:            c.Status,
			MonthlyPriceExVat: c.MonthlyPriceExVat,
			StartDate:         c.StartDate,
			EndDate:           c.EndDate,
			Placements:        placements[c.ID],
		})
	}
	for _, l := range locations {
		fl := model.FrozenLocation{
			LocationID:          l.ID,
			City:                l.City,
			RegionCode:          l.RegionCode,
			RevenueSharePercent: l.RevenueSharePercent,
		}
		for _, sc := range screens[l.ID] {
			fl.Screens = append(fl.Screens, model.FrozenScreen{
				ScreenID:        sc.ID,
				LoopSlotSeconds: sc.LoopSlotSeconds,
				PlaysPerHour:    sc.PlaysPerHour,
			})
		}
		payload.Locations = append(payload.Locations, fl)
	}
	raw, err := model.EncodeSnapshotPayload(payload)
	if err != nil {
		return nil, false, err
	}

	tx, err := s.Snapshots.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	existing, err := s.Snapshots.GetByPeriodTx(ctx, tx, year, month)
	if err == nil {
		if err := tx.Commit(); err != nil {
			return nil, false, err
		}
		committed = true
		log.Printf("settlement: snapshot for %04d-%02d already exists (id=%d)", year, month, existing.ID)
		return existing, false, nil
	}
	if err != repository.ErrNotFound {
		return nil, false, err
	}

	snap := &model.MonthlySnapshot{
		Year:    year,
		Month:   month,
		Status:  model.SnapshotStatusOpen,
		Payload: raw,
	}
	if err := s.Snapshots.CreateTx(ctx, tx, snap); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	committed = true
	return snap, true, nil
}

// GenerateInvoices produces one invoice per advertiser with an effective
// contract in the frozen snapshot.  Amounts apply calendar-day proration
// for contracts starting or ending mid-period.  Regeneration is a guarded
// no-op with a warning; a locked snapshot is a hard 409.  The boolean
// reports whether invoices were actually generated by this call.
func (s *SettlementService) GenerateInvoices(ctx context.Context, snapshotID uint64) (int, bool, error) {
	tx, err := s.Snapshots.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	snap, err := s.Snapshots.GetByIDForUpdateTx(ctx, tx, snapshotID)
	if err != nil {
		return 0, false, err
	}
	if snap.Locked() {
		return 0, false, repository.ErrSnapshotLocked
	}
	existing, err := s.Settle.CountInvoicesTx(ctx, tx, snapshotID)
	if err != nil {
		return 0, false, err
	}
	if existing > 0 || snap.Status != model.SnapshotStatusOpen {
		if err := tx.Commit(); err != nil {
			return 0, false, err
		}
		committed = true
		log.Printf("settlement: invoices for snapshot %d already generated (%d rows), skipping", snapshotID, existing)
		return existing, false, nil
	}

	payload, err := model.DecodeSnapshotPayload(snap.Payload)
	if err != nil {
		return 0, false, err
	}
	periodStart, periodEnd := snap.PeriodBounds()

	totals := make(map[uint64]decimal.Decimal)
	advertisers := make([]uint64, 0)
	for _, fc := range payload.Contracts {
		amount := prorateMonthly(fc.MonthlyPriceExVat, fc.StartDate, fc.EndDate, periodStart, periodEnd)
		if amount.IsZero() {
			continue
		}
		if _, ok := totals[fc.AdvertiserID]; !ok {
			advertisers = append(advertisers, fc.AdvertiserID)
		}
		totals[fc.AdvertiserID] = totals[fc.AdvertiserID].Add(amount)
	}
	sort.Slice(advertisers, func(i, j int) bool { return advertisers[i] < advertisers[j] })

	invoices := make([]model.Invoice, 0, len(advertisers))
	for _, adv := range advertisers {
		invoices = append(invoices, model.Invoice{
			SnapshotID:   snapshotID,
			AdvertiserID: adv,
			PeriodStart:  periodStart,
			PeriodEnd:    periodEnd,
			AmountExVat:  totals[adv],
			Status:       model.InvoiceStatusOpen,
		})
	}
	if err := s.Settle.InsertInvoicesTx(ctx, tx, invoices); err != nil {
		return 0, false, err
	}
	if err := s.Snapshots.AdvanceStatusTx(ctx, tx, snapshotID, model.SnapshotStatusOpen, model.SnapshotStatusInvoiced); err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	committed = true
	return len(invoices), true, nil
}

// GeneratePayouts allocates the period's revenue to screens and locations
// and computes partner payouts with the carry-over threshold.  Requires
// invoices to exist; regeneration is a guarded no-op; a locked snapshot is
// a hard 409.
func (s *SettlementService) GeneratePayouts(ctx context.Context, snapshotID uint64) (int, bool, error) {
	tx, err := s.Snapshots.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	snap, err := s.Snapshots.GetByIDForUpdateTx(ctx, tx, snapshotID)
	if err != nil {
		return 0, false, err
	}
	if snap.Locked() {
		return 0, false, repository.ErrSnapshotLocked
	}
	if snap.Status == model.SnapshotStatusOpen {
		return 0, false, repository.ErrSnapshotState
	}
	existing, err := s.Settle.CountPayoutsTx(ctx, tx, snapshotID)
	if err != nil {
		return 0, false, err
	}
	if existing > 0 || snap.Status == model.SnapshotStatusPayoutsGenerated {
		if err := tx.Commit(); err != nil {
			return 0, false, err
		}
		committed = true
		log.Printf("settlement: payouts for snapshot %d already generated (%d rows), skipping", snapshotID, existing)
		return existing, false, nil
	}

	payload, err := model.DecodeSnapshotPayload(snap.Payload)
	if err != nil {
		return 0, false, err
	}
	periodStart, periodEnd := snap.PeriodBounds()

	allocations := allocateRevenue(payload, periodStart, periodEnd, snapshotID)
	if err := s.Settle.InsertAllocationsTx(ctx, tx, allocations); err != nil {
		return 0, false, err
	}

	// Per-location totals from the allocation rows.
	locationTotals := make(map[uint64]decimal.Decimal)
	for _, a := range allocations {
		locationTotals[a.LocationID] = locationTotals[a.LocationID].Add(a.AllocatedRevenue)
	}
	sharePercent := make(map[uint64]decimal.Decimal)
	for _, l := range payload.Locations {
		sharePercent[l.LocationID] = l.RevenueSharePercent
	}
	carryIn, err := s.Settle.OpenCarryOversTx(ctx, tx)
	if err != nil {
		return 0, false, err
	}

	// Every location that earned revenue this period or still owns an open
	// carried balance gets evaluated against the threshold.
	locationIDs := make([]uint64, 0, len(locationTotals))
	seen := make(map[uint64]bool)
	for id := range locationTotals {
		locationIDs = append(locationIDs, id)
		seen[id] = true
	}
	for id := range carryIn {
		if !seen[id] {
			locationIDs = append(locationIDs, id)
		}
	}
	sort.Slice(locationIDs, func(i, j int) bool { return locationIDs[i] < locationIDs[j] })

	hundred := decimal.NewFromInt(100)
	payouts := make([]model.LocationPayout, 0, len(locationIDs))
	for _, locID := range locationIDs {
		base := locationTotals[locID].Mul(sharePercent[locID]).Div(hundred).Round(2)
		carried := carryIn[locID]
		total := base.Add(carried)
		if total.IsZero() {
			continue
		}
		if total.LessThan(model.MinimumPayoutAmount) {
			if base.IsZero() {
				// Nothing new this period; the open carry entries simply
				// stay open instead of being re-rolled.
				continue
			}
			if err := s.Settle.ConsumeCarryOversTx(ctx, tx, locID, snapshotID); err != nil {
				return 0, false, err
			}
			if err := s.Settle.InsertCarryOverTx(ctx, tx, model.PayoutCarryOver{
				LocationID: locID,
				SnapshotID: snapshotID,
				Amount:     total,
			}); err != nil {
				return 0, false, err
			}
			payouts = append(payouts, model.LocationPayout{
				SnapshotID:   snapshotID,
				LocationID:   locID,
				PayoutAmount: total,
				Status:       model.PayoutStatusPending,
				CarriedOver:  true,
			})
			continue
		}
		if !carried.IsZero() {
			if err := s.Settle.ConsumeCarryOversTx(ctx, tx, locID, snapshotID); err != nil {
				return 0, false, err
			}
		}
		payouts = append(payouts, model.LocationPayout{
			SnapshotID:   snapshotID,
			LocationID:   locID,
			PayoutAmount: total,
			Status:       model.PayoutStatusPayable,
			CarriedOver:  false,
		})
	}
	if err := s.Settle.InsertPayoutsTx(ctx, tx, payouts); err != nil {
		return 0, false, err
	}
	if err := s.Snapshots.AdvanceStatusTx(ctx, tx, snapshotID, model.SnapshotStatusInvoiced, model.SnapshotStatusPayoutsGenerated); err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	committed = true
	return len(payouts), true, nil
}

// Lock finalizes a snapshot.  Locking a locked snapshot fails with
// ErrSnapshotLocked; locking out of order fails with ErrSnapshotState.
func (s *SettlementService) Lock(ctx context.Context, snapshotID uint64) (*model.MonthlySnapshot, error) {
	tx, err := s.Snapshots.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	snap, err := s.Snapshots.GetByIDForUpdateTx(ctx, tx, snapshotID)
	if err != nil {
		return nil, err
	}
	if snap.Locked() {
		return nil, repository.ErrSnapshotLocked
	}
	if snap.Status != model.SnapshotStatusPayoutsGenerated {
		return nil, repository.ErrSnapshotState
	}
	lockedAt := time.Now().UTC()
	if err := s.Snapshots.LockTx(ctx, tx, snapshotID, lockedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	snap.Status = model.SnapshotStatusLocked
	snap.LockedAt = &lockedAt
	return snap, nil
}

// prorateMonthly applies the calendar-day proration rule: a contract active
// for the whole month bills its full monthly price; otherwise the price is
// scaled by active days over days in the month, rounded half-up to cents.
func prorateMonthly(price decimal.Decimal, start time.Time, end *time.Time, periodStart, periodEnd time.Time) decimal.Decimal {
	days := overlapDays(start, end, periodStart, periodEnd)
	if days <= 0 {
		return decimal.Zero
	}
	daysInMonth := periodEnd.Day()
	if days >= daysInMonth {
		return price.Round(2)
	}
	return price.Mul(decimal.NewFromInt(int64(days))).Div(decimal.NewFromInt(int64(daysInMonth))).Round(2)
}

// overlapDays counts the days (inclusive on both ends) where [start, end]
// intersects [periodStart, periodEnd].  A nil end means open ended.
func overlapDays(start time.Time, end *time.Time, periodStart, periodEnd time.Time) int {
	from := start
	if from.Before(periodStart) {
		from = periodStart
	}
	to := periodEnd
	if end != nil && end.Before(to) {
		to = *end
	}
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours()/24) + 1
}

// allocateRevenue distributes each frozen contract's prorated revenue over
// the screens its placements ran on, weighted by screen activity
// (loop slot seconds × plays per hour × days active in the period).  The
// last screen of every contract absorbs the rounding remainder, so the
// per-screen rows of a location sum exactly to that location's total.
// Contracts without any active placement in the period bill the advertiser
// but allocate nothing; their revenue stays with the platform.
func allocateRevenue(payload model.SnapshotPayload, periodStart, periodEnd time.Time, snapshotID uint64) []model.RevenueAllocation {
	screenWeight := make(map[uint64]decimal.Decimal)
	screenLocation := make(map[uint64]uint64)
	for _, l := range payload.Locations {
		for _, sc := range l.Screens {
			screenWeight[sc.ScreenID] = decimal.NewFromInt(int64(sc.LoopSlotSeconds)).Mul(decimal.NewFromInt(int64(sc.PlaysPerHour)))
			screenLocation[sc.ScreenID] = l.LocationID
		}
	}

	type screenAgg struct {
		score   decimal.Decimal
		revenue decimal.Decimal
	}
	aggs := make(map[uint64]*screenAgg)
	order := make([]uint64, 0)

	for _, fc := range payload.Contracts {
		amount := prorateMonthly(fc.MonthlyPriceExVat, fc.StartDate, fc.EndDate, periodStart, periodEnd)
		if amount.IsZero() {
			continue
		}
		type contrib struct {
			screenID uint64
			score    decimal.Decimal
		}
		var contribs []contrib
		totalScore := decimal.Zero
		for _, p := range fc.Placements {
			if !p.IsActive {
				continue
			}
			days := overlapDays(p.StartDate, p.EndDate, periodStart, periodEnd)
			if days <= 0 {
				continue
			}
			weight := screenWeight[p.ScreenID]
			if weight.IsZero() {
				continue
			}
			score := weight.Mul(decimal.NewFromInt(int64(days)))
			contribs = append(contribs, contrib{screenID: p.ScreenID, score: score})
			totalScore = totalScore.Add(score)
		}
		if totalScore.IsZero() {
			continue
		}
		distributed := decimal.Zero
		for i, c := range contribs {
			var share decimal.Decimal
			if i == len(contribs)-1 {
				share = amount.Sub(distributed)
			} else {
				share = amount.Mul(c.score).Div(totalScore).Round(2)
				distributed = distributed.Add(share)
			}
			agg, ok := aggs[c.screenID]
			if !ok {
				agg = &screenAgg{score: decimal.Zero, revenue: decimal.Zero}
				aggs[c.screenID] = agg
				order = append(order, c.screenID)
			}
			agg.score = agg.score.Add(c.score)
			agg.revenue = agg.revenue.Add(share)
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]model.RevenueAllocation, 0, len(order))
	for _, screenID := range order {
		agg := aggs[screenID]
		if agg.revenue.IsZero() {
			continue
		}
		out = append(out, model.RevenueAllocation{
			SnapshotID:       snapshotID,
			ScreenID:         screenID,
			LocationID:       screenLocation[screenID],
			AllocationScore:  agg.score,
			AllocatedRevenue: agg.revenue,
		})
	}
	return out
}
