package discount

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cpswap/core/events"
	"cpswap/crypto"
	"cpswap/native/fees"
	"cpswap/observability/metrics"
)

// UpdateRequest names the caller, the participant, the record handle the
// caller resolved for that participant and the requested numerator.
type UpdateRequest struct {
	Caller   [20]byte
	User     [20]byte
	Record   Address
	Discount uint64
}

// Engine is the only mutator of discount records.
type Engine struct {
	ledger    *Ledger
	authority Authority
	schedule  fees.Schedule
	emitter   events.Emitter
	metrics   *metrics.DiscountMetrics
	tracer    trace.Tracer
	logger    *slog.Logger
	nowFn     func() time.Time

	// locks serialises writers per record address. Entries are dropped once
	// no writer holds or waits on them.
	locksMu sync.Mutex
	locks   map[Address]*recordLock
}

type recordLock struct {
	mu   sync.Mutex
	refs int
}

// NewEngine constructs an engine backed by the provided storage backend.
func NewEngine(store storage, authority Authority, schedule fees.Schedule) *Engine {
	return &Engine{
		ledger:    NewLedger(store),
		authority: authority,
		schedule:  schedule,
		emitter:   events.NoopEmitter{},
		metrics:   metrics.Discount(),
		tracer:    otel.Tracer("native/discount"),
		logger:    slog.Default(),
		nowFn:     time.Now,
	}
}

// SetEmitter overrides the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the structured logger. Passing nil restores slog.Default.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetNowFunc overrides the clock used for latency metrics.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if e == nil {
		return
	}
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

// Schedule returns the fee schedule the engine validates against.
func (e *Engine) Schedule() fees.Schedule {
	return e.schedule
}

// lock acquires the writer lock for addr and returns its release function.
func (e *Engine) lock(addr Address) func() {
	e.locksMu.Lock()
	if e.locks == nil {
		e.locks = make(map[Address]*recordLock)
	}
	l, ok := e.locks[addr]
	if !ok {
		l = &recordLock{}
		e.locks[addr] = l
	}
	l.refs++
	e.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, addr)
		}
		e.locksMu.Unlock()
	}
}

func (e *Engine) heldLocks() int {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	return len(e.locks)
}

func (e *Engine) ready() error {
	if e == nil || e.ledger == nil || e.authority == nil {
		return errEngineUninitialised
	}
	return nil
}

// Authorize reports whether caller may update discount records, letting
// callers reject strangers before doing any work on their behalf.
func (e *Engine) Authorize(caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.authority.Authorize(caller); err != nil {
		e.metrics.Observe("authorize", rejectionReason(err), 0, err)
		return err
	}
	return nil
}

// UpdateUserDiscount overwrites the participant's discount numerator. Checks
// run in order: caller authority, record handle binding, ceiling. Every
// rejection leaves the record untouched.
func (e *Engine) UpdateUserDiscount(ctx context.Context, req UpdateRequest) error {
	if err := e.ready(); err != nil {
		return err
	}
	start := e.nowFn()
	ctx, span := e.tracer.Start(ctx, "discount.update",
		trace.WithAttributes(
			attribute.String("discount.user", crypto.FormatAccount(req.User)),
			attribute.String("discount.record", req.Record.Hex()),
			attribute.String("discount.numerator", strconv.FormatUint(req.Discount, 10)),
		))
	defer span.End()

	previous, err := e.update(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.Observe("update", rejectionReason(err), e.nowFn().Sub(start), err)
		e.logger.WarnContext(ctx, "discount: update rejected",
			"user", crypto.FormatAccount(req.User),
			"caller", crypto.FormatAccount(req.Caller),
			"numerator", req.Discount,
			"reason", rejectionReason(err),
			"error", err)
		return err
	}
	span.SetStatus(codes.Ok, "discount updated")
	e.metrics.Observe("update", "", e.nowFn().Sub(start), nil)
	e.metrics.RecordApplied(req.Discount)
	e.emitter.Emit(events.DiscountUpdated{
		User:        req.User,
		Record:      req.Record,
		Authority:   req.Caller,
		Previous:    previous,
		Numerator:   req.Discount,
		Denominator: e.schedule.Denominator(),
	})
	e.logger.InfoContext(ctx, "discount: updated",
		"user", crypto.FormatAccount(req.User),
		"record", req.Record.Hex(),
		"previous", previous,
		"numerator", req.Discount,
		"denominator", e.schedule.Denominator())
	return nil
}

func (e *Engine) update(req UpdateRequest) (uint64, error) {
	if err := e.authority.Authorize(req.Caller); err != nil {
		return 0, err
	}
	if req.User == ([20]byte{}) {
		return 0, ErrUserRequired
	}
	defer e.lock(req.Record)()

	record, err := e.ledger.Load(req.User, req.Record)
	if err != nil {
		return 0, err
	}
	if err := e.schedule.ValidateDiscount(req.Discount); err != nil {
		return 0, err
	}
	previous := record.DiscountNumerator
	record.DiscountNumerator = req.Discount
	if err := e.ledger.Store(req.Record, record); err != nil {
		return 0, err
	}
	return previous, nil
}

// CreateUserDiscount materialises the participant's record with a zero
// numerator. Any payer may allocate a record; only the authority may set it.
func (e *Engine) CreateUserDiscount(ctx context.Context, payer, user [20]byte) (Address, error) {
	if e == nil || e.ledger == nil {
		return Address{}, errEngineUninitialised
	}
	start := e.nowFn()
	ctx, span := e.tracer.Start(ctx, "discount.create",
		trace.WithAttributes(attribute.String("discount.user", crypto.FormatAccount(user))))
	defer span.End()

	addr, record, err := e.create(user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.Observe("create", rejectionReason(err), e.nowFn().Sub(start), err)
		e.logger.WarnContext(ctx, "discount: create rejected",
			"user", crypto.FormatAccount(user),
			"reason", rejectionReason(err),
			"error", err)
		return Address{}, err
	}
	span.SetStatus(codes.Ok, "discount record created")
	e.metrics.Observe("create", "", e.nowFn().Sub(start), nil)
	e.emitter.Emit(events.DiscountCreated{User: user, Record: addr, Bump: record.Bump, Payer: payer})
	e.logger.InfoContext(ctx, "discount: record created",
		"user", crypto.FormatAccount(user),
		"record", addr.Hex(),
		"bump", record.Bump)
	return addr, nil
}

func (e *Engine) create(user [20]byte) (Address, UserDiscount, error) {
	if user == ([20]byte{}) {
		return Address{}, UserDiscount{}, ErrUserRequired
	}
	addr, _, err := FindAddress(user)
	if err != nil {
		return Address{}, UserDiscount{}, err
	}
	defer e.lock(addr)()
	return e.ledger.Create(user)
}

// UserDiscount resolves the participant's record for read-only consumers such
// as the swap fee calculation.
func (e *Engine) UserDiscount(ctx context.Context, user [20]byte) (Address, UserDiscount, error) {
	if e == nil || e.ledger == nil {
		return Address{}, UserDiscount{}, errEngineUninitialised
	}
	_, span := e.tracer.Start(ctx, "discount.get",
		trace.WithAttributes(attribute.String("discount.user", crypto.FormatAccount(user))))
	defer span.End()
	addr, record, err := e.ledger.Resolve(user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Address{}, UserDiscount{}, err
	}
	return addr, record, nil
}

// EffectiveFee applies the participant's stored discount to baseFee. Users
// without a record pay the full fee.
func (e *Engine) EffectiveFee(ctx context.Context, user [20]byte, baseFee uint64) (fees.DiscountResult, error) {
	_, record, err := e.UserDiscount(ctx, user)
	if errors.Is(err, ErrRecordNotFound) {
		return fees.DiscountResult{BaseFee: baseFee, Effective: baseFee}, nil
	}
	if err != nil {
		return fees.DiscountResult{}, err
	}
	return e.schedule.ApplyDiscount(baseFee, record.DiscountNumerator)
}

func rejectionReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrDiscountExceedsCeiling):
		return "ceiling"
	case errors.Is(err, ErrAddressMismatch):
		return "address_mismatch"
	case errors.Is(err, ErrRecordNotFound):
		return "not_found"
	case errors.Is(err, ErrRecordExists):
		return "exists"
	case errors.Is(err, ErrRecordCorrupt):
		return "corrupt"
	case errors.Is(err, ErrUserRequired):
		return "invalid"
	default:
		return "internal"
	}
}
