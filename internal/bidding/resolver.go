// Package bidding resolves a single bid submission against a consistent
// snapshot of one auction. It is pure: the caller loads the snapshot under the
// auction's exclusive lock and persists the returned Resolution in the same
// unit of work.
package bidding

import (
	"time"

	"github.com/alanyoungcy/auctionengine/internal/domain"
	"github.com/alanyoungcy/auctionengine/internal/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Snapshot is the auction state a bid is resolved against.
type Snapshot struct {
	Auction domain.Auction
	// Leader is the WINNING bid, nil when the auction has no bids.
	Leader *domain.Bid
	// BidderSeen reports whether the submitting bidder has bid before.
	BidderSeen bool
}

// Resolution is everything an accepted bid changes.
type Resolution struct {
	Auction domain.Auction
	// Insert is the new bid row. It is nil when the leader only raised its
	// own ceiling.
	Insert *domain.Bid
	// Updates are modified existing rows, at most the previous leader.
	Updates []domain.Bid
	Result  domain.BidResult
	Events  []domain.Event
}

// Resolver applies the English proxy-bidding rules, buy-now and Dutch
// acceptance, and the soft-close extension.
type Resolver struct {
	Policy ExtensionPolicy
	NewID  func() string
}

// NewResolver returns a Resolver using policy and random UUID bid ids.
func NewResolver(policy ExtensionPolicy) *Resolver {
	return &Resolver{Policy: policy, NewID: uuid.NewString}
}

// Resolve decides the outcome of req at now. Rejections are returned as
// *domain.BidError and leave snap untouched.
func (r *Resolver) Resolve(snap Snapshot, req domain.BidRequest, now time.Time) (Resolution, error) {
	a := snap.Auction

	if err := validateOrder(req); err != nil {
		return Resolution{}, err
	}
	if !a.AcceptsBidsAt(now) {
		return Resolution{}, domain.Reject(domain.KindAuctionNotActive, a.ID, req.BidderID)
	}

	res := Resolution{}
	if a.Status == domain.AuctionStatusScheduled {
		a.Status = domain.AuctionStatusActive
		res.Events = append(res.Events, domain.Event{
			Type: domain.EventAuctionActivated, AuctionID: a.ID,
			Amount: a.CurrentPrice, EndTime: a.EndTime, At: now,
		})
	}
	res.Auction = a

	var err error
	if a.Mode == domain.AuctionModeDutch {
		err = r.resolveDutch(&res, snap, req, now)
	} else {
		err = r.resolveEnglish(&res, snap, req, now)
	}
	if err != nil {
		return Resolution{}, err
	}

	res.Auction.Version++
	res.Auction.UpdatedAt = now
	res.Result.Accepted = true
	res.Result.NewEndTime = res.Auction.EndTime
	res.Result.Closed = res.Auction.Status == domain.AuctionStatusEnded
	if !res.Result.Closed {
		res.Result.MinimumNextBid = pricing.MinimumNextBid(res.Auction.CurrentPrice, res.Auction.MinBidIncrement)
	}
	return res, nil
}

func validateOrder(req domain.BidRequest) error {
	switch o := req.Order.(type) {
	case domain.ManualBid:
		if !o.Amount.IsPositive() {
			return domain.Reject(domain.KindBidTooLow, req.AuctionID, req.BidderID)
		}
	case domain.ProxyBid:
		if !o.Ceiling.IsPositive() || o.Amount.IsNegative() || o.Amount.GreaterThan(o.Ceiling) {
			return domain.Reject(domain.KindInvalidCeiling, req.AuctionID, req.BidderID)
		}
	default:
		return domain.Reject(domain.KindInvalidCeiling, req.AuctionID, req.BidderID)
	}
	return nil
}

// resolveDutch accepts the first bid at or above the instantaneous price and
// closes the auction at that price.
func (r *Resolver) resolveDutch(res *Resolution, snap Snapshot, req domain.BidRequest, now time.Time) error {
	a := &res.Auction
	price := pricing.DutchPrice(a.StartingPrice, a.ReserveValue(), a.StartTime, a.EndTime, now)

	offer := req.Order.Opening()
	if offer.IsZero() {
		offer = req.Order.Limit()
	}
	if offer.LessThan(price) {
		return domain.Reject(domain.KindBidTooLow, a.ID, req.BidderID).WithMinimum(price)
	}

	bid := r.newBid(a, req, price, now)
	setAmount(&bid, price, price)
	bid.Status = domain.BidStatusWinning
	r.countBid(a, snap, &bid)

	a.CurrentPrice = price
	r.close(res, req.BidderID, now)

	res.Insert = &bid
	res.Result.BidID = bid.ID
	res.Result.NewCurrentPrice = price
	res.Result.LeaderID = req.BidderID
	res.Result.ReserveMet = true
	res.Events = append(res.Events, accepted(bid, now))
	res.Events = append(res.Events, closedEvent(*a, now))
	return nil
}

func (r *Resolver) resolveEnglish(res *Resolution, snap Snapshot, req domain.BidRequest, now time.Time) error {
	a := &res.Auction
	opening, ceiling := req.Order.Opening(), req.Order.Limit()

	if snap.Leader != nil && snap.Leader.BidderID == req.BidderID {
		if err := r.raiseOwnCeiling(res, *snap.Leader, req, ceiling, now); err != nil {
			return err
		}
		r.extend(res, now)
		return nil
	}

	floor := pricing.MinimumNextBid(a.CurrentPrice, a.MinBidIncrement)
	shown := opening
	if shown.IsZero() {
		// Ceiling-only proxy: show the floor, or the whole ceiling if lower.
		shown = decimal.Min(floor, ceiling)
	}
	if shown.LessThan(floor) || ceiling.LessThanOrEqual(a.CurrentPrice) {
		return domain.Reject(domain.KindBidTooLow, a.ID, req.BidderID).WithMinimum(floor)
	}

	if a.BuyNowPrice != nil && shown.GreaterThanOrEqual(*a.BuyNowPrice) {
		r.buyNow(res, snap, req, now)
		return nil
	}

	bid := r.newBid(a, req, shown, now)
	if _, ok := req.Order.(domain.ProxyBid); ok {
		bid.IsAutoBid = true
	}
	r.countBid(a, snap, &bid)

	switch {
	case snap.Leader == nil:
		bid.Status = domain.BidStatusWinning
		a.CurrentPrice = shown
		r.lead(res, bid, now)

	case ceiling.GreaterThan(snap.Leader.Ceiling()):
		prev := *snap.Leader
		c := prev.Ceiling()
		price := decimal.Min(c.Add(pricing.Increment(c, a.MinBidIncrement)), ceiling)

		setAmount(&bid, price, ceiling)
		bid.Status = domain.BidStatusWinning
		a.CurrentPrice = price
		r.lead(res, bid, now)

		prev.Status = domain.BidStatusOutbid
		prev.UpdatedAt = now
		res.Updates = append(res.Updates, prev)
		res.Result.OutbidBidderID = prev.BidderID
		res.Events = append(res.Events, outbid(prev, bid.BidderID, price, now))

	default:
		// The leader's proxy counters up to just above the challenger. On a
		// tie the earlier arrival keeps the lead at the shared ceiling.
		leader := *snap.Leader
		c := leader.Ceiling()
		price := decimal.Min(ceiling.Add(pricing.Increment(ceiling, a.MinBidIncrement)), c)

		setAmount(&bid, ceiling, ceiling)
		bid.Status = domain.BidStatusOutbid
		leader.Amount = price
		leader.UpdatedAt = now
		a.CurrentPrice = price

		res.Insert = &bid
		res.Updates = append(res.Updates, leader)
		res.Result.BidID = bid.ID
		res.Result.LeaderID = leader.BidderID
		res.Result.CounterBidTriggered = true
		res.Result.OutbidBidderID = bid.BidderID
		res.Events = append(res.Events,
			accepted(bid, now),
			outbid(bid, leader.BidderID, price, now),
		)
	}

	res.Result.NewCurrentPrice = a.CurrentPrice
	res.Result.ReserveMet = a.ReserveMet(a.CurrentPrice)
	r.extend(res, now)
	return nil
}

// raiseOwnCeiling lets the leader lift its private ceiling without moving the
// standing price.
func (r *Resolver) raiseOwnCeiling(res *Resolution, leader domain.Bid, req domain.BidRequest, ceiling decimal.Decimal, now time.Time) error {
	a := &res.Auction
	if !ceiling.GreaterThan(leader.Ceiling()) {
		return domain.Reject(domain.KindSelfOutbid, a.ID, req.BidderID)
	}

	leader.MaxAutoBid = &ceiling
	leader.IsAutoBid = true
	leader.UpdatedAt = now
	res.Updates = append(res.Updates, leader)

	res.Result.BidID = leader.ID
	res.Result.LeaderID = leader.BidderID
	res.Result.NewCurrentPrice = a.CurrentPrice
	res.Result.ReserveMet = a.ReserveMet(a.CurrentPrice)
	return nil
}

// buyNow awards the auction to the bidder at the buy-now price.
func (r *Resolver) buyNow(res *Resolution, snap Snapshot, req domain.BidRequest, now time.Time) {
	a := &res.Auction
	price := *a.BuyNowPrice

	bid := r.newBid(a, req, price, now)
	setAmount(&bid, price, price)
	bid.Status = domain.BidStatusWinning
	r.countBid(a, snap, &bid)
	a.CurrentPrice = price
	r.lead(res, bid, now)

	if snap.Leader != nil {
		prev := *snap.Leader
		prev.Status = domain.BidStatusOutbid
		prev.UpdatedAt = now
		res.Updates = append(res.Updates, prev)
		res.Result.OutbidBidderID = prev.BidderID
		res.Events = append(res.Events, outbid(prev, bid.BidderID, price, now))
	}

	r.close(res, req.BidderID, now)
	res.Result.NewCurrentPrice = price
	res.Result.ReserveMet = a.ReserveMet(price)
	res.Events = append(res.Events, closedEvent(*a, now))
}

func (r *Resolver) newBid(a *domain.Auction, req domain.BidRequest, amount decimal.Decimal, now time.Time) domain.Bid {
	bid := domain.Bid{
		ID:           r.NewID(),
		AuctionID:    a.ID,
		BidderID:     req.BidderID,
		SubmissionID: req.SubmissionID,
		Status:       domain.BidStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	setAmount(&bid, amount, req.Order.Limit())
	return bid
}

// setAmount sets the standing amount and keeps the ceiling only while it
// exceeds that amount.
func setAmount(bid *domain.Bid, amount, ceiling decimal.Decimal) {
	bid.Amount = amount
	bid.MaxAutoBid = nil
	if ceiling.GreaterThan(amount) {
		bid.MaxAutoBid = &ceiling
	}
}

// countBid assigns the arrival sequence and bumps the auction counters.
func (r *Resolver) countBid(a *domain.Auction, snap Snapshot, bid *domain.Bid) {
	a.TotalBids++
	bid.Seq = int64(a.TotalBids)
	if !snap.BidderSeen {
		a.UniqueBidders++
	}
}

func (r *Resolver) lead(res *Resolution, bid domain.Bid, now time.Time) {
	res.Insert = &bid
	res.Result.BidID = bid.ID
	res.Result.LeaderID = bid.BidderID
	res.Events = append(res.Events, accepted(bid, now))
}

func (r *Resolver) close(res *Resolution, winnerID string, now time.Time) {
	res.Auction.Status = domain.AuctionStatusEnded
	res.Auction.WinnerID = winnerID
	res.Auction.EndTime = now
}

func (r *Resolver) extend(res *Resolution, now time.Time) {
	a := &res.Auction
	ext := CheckExtension(a.EndTime, r.Policy.For(a.TimesExtended), now)
	if !ext.ShouldExtend {
		return
	}
	a.EndTime = ext.NewEndTime
	a.TimesExtended = ext.TimesExtended
	res.Result.Extended = true
	res.Events = append(res.Events, domain.Event{
		Type:      domain.EventAuctionExtended,
		AuctionID: a.ID,
		Amount:    a.CurrentPrice,
		EndTime:   a.EndTime,
		At:        now,
	})
}

func accepted(bid domain.Bid, now time.Time) domain.Event {
	return domain.Event{
		Type:      domain.EventBidAccepted,
		AuctionID: bid.AuctionID,
		BidID:     bid.ID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount,
		At:        now,
	}
}

func outbid(lost domain.Bid, leaderID string, price decimal.Decimal, now time.Time) domain.Event {
	return domain.Event{
		Type:           domain.EventBidOutbid,
		AuctionID:      lost.AuctionID,
		BidID:          lost.ID,
		BidderID:       lost.BidderID,
		CounterpartyID: leaderID,
		Amount:         price,
		At:             now,
	}
}

func closedEvent(a domain.Auction, now time.Time) domain.Event {
	return domain.Event{
		Type:      domain.EventAuctionClosed,
		AuctionID: a.ID,
		BidderID:  a.WinnerID,
		Amount:    a.CurrentPrice,
		EndTime:   a.EndTime,
		At:        now,
	}
}
