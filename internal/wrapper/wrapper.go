// Package wrapper is a pay-per-call front end to the coordinator. Callers
// pay for each request up front; the wrapper forwards the request on a
// subscription it owns and hands the words back when they arrive.
package wrapper

import (
	"context"
	"fmt"
	"math"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/vrf_coordinator/internal/callback"
	"github.com/R3E-Network/vrf_coordinator/internal/coordinator"
	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
	"github.com/R3E-Network/vrf_coordinator/internal/fee"
	"github.com/R3E-Network/vrf_coordinator/internal/metrics"
	"github.com/R3E-Network/vrf_coordinator/internal/settlement"
	"github.com/R3E-Network/vrf_coordinator/internal/storage"
	"github.com/R3E-Network/vrf_coordinator/pkg/logger"
)

// Config holds wrapper configuration and collaborators. Address is the
// wrapper's own identity on the coordinator. Store must not be shared with
// the coordinator.
type Config struct {
	Address  util.Uint160
	Operator util.Uint160

	Coordinator *coordinator.Coordinator
	Store       storage.Store
	Settlement  settlement.Settlement
	Dispatcher  *callback.Dispatcher
	Publisher   coordinator.Publisher
	Metrics     *metrics.Metrics
	Logger      *logger.Logger
}

// Wrapper implements callback.Consumer for its own subscription.
type Wrapper struct {
	address  util.Uint160
	operator util.Uint160

	coord      *coordinator.Coordinator
	store      storage.Store
	settlement settlement.Settlement
	dispatcher *callback.Dispatcher
	publisher  coordinator.Publisher
	metrics    *metrics.Metrics
	log        *logger.Logger
}

var _ callback.Consumer = (*Wrapper)(nil)

// New creates the wrapper. On first start it opens a subscription on the
// coordinator with itself as owner and sole consumer; later starts reuse
// the subscription recorded in the store.
func New(ctx context.Context, cfg Config) (*Wrapper, error) {
	switch {
	case cfg.Coordinator == nil:
		return nil, fmt.Errorf("wrapper: coordinator required")
	case cfg.Store == nil:
		return nil, fmt.Errorf("wrapper: store required")
	case cfg.Settlement == nil:
		return nil, fmt.Errorf("wrapper: settlement required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("wrapper")
	}
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = callback.NewDispatcher(callback.DefaultTimeout, log.Named("wrapper-callback"))
	}

	w := &Wrapper{
		address:    cfg.Address,
		operator:   cfg.Operator,
		coord:      cfg.Coordinator,
		store:      cfg.Store,
		settlement: cfg.Settlement,
		dispatcher: dispatcher,
		publisher:  cfg.Publisher,
		metrics:    cfg.Metrics,
		log:        log,
	}

	err := w.store.Atomic(ctx, func(tx storage.Tx) error {
		st := tx.WrapperState()
		if st.SubID != 0 {
			return nil
		}
		subID, err := w.coord.CreateSubscriptionWithConsumers(ctx, w.address, w.address)
		if err != nil {
			return err
		}
		tx.SetWrapperState(storage.WrapperState{SubID: subID, Enabled: true})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("wrapper: open subscription: %w", err)
	}

	w.coord.Dispatcher().Register(w.address, w)
	return w, nil
}

// Address returns the wrapper's coordinator identity.
func (w *Wrapper) Address() util.Uint160 {
	return w.address
}

// Dispatcher returns the dispatcher callers register with to receive words.
func (w *Wrapper) Dispatcher() *callback.Dispatcher {
	return w.dispatcher
}

// =============================================================================
// Transaction plumbing
// =============================================================================

func (w *Wrapper) run(ctx context.Context, op string, fn func(tx storage.Tx) (vrf.Event, error)) error {
	var ev vrf.Event
	err := w.store.Atomic(ctx, func(tx storage.Tx) error {
		var err error
		ev, err = fn(tx)
		return err
	})
	w.finish(ctx, op, err, ev)
	return err
}

func (w *Wrapper) finish(ctx context.Context, op string, err error, ev vrf.Event) {
	w.metrics.RecordOperation("wrapper_"+op, err)
	entry := w.log.WithContext(ctx).WithField("op", op)
	if err != nil {
		entry.WithField("code", svcerrors.CodeOf(err)).Debugf("rejected: %v", err)
		return
	}
	if ev == nil {
		return
	}
	entry.WithField("event", ev.EventName()).Info("committed")
	if w.publisher != nil {
		w.publisher.Publish(ctx, ev)
	}
}

func (w *Wrapper) requireOperator(caller util.Uint160) error {
	if caller != w.operator {
		return svcerrors.ErrOnlyOperator
	}
	return nil
}

// =============================================================================
// Operator
// =============================================================================

// ValidateConfig checks a wrapper configuration record.
func ValidateConfig(cfg vrf.WrapperConfig) error {
	if cfg.MinGasPrice < 0 {
		return svcerrors.ErrInvalidConfig.WithMessage("min gas price must not be negative")
	}
	return nil
}

// SetConfig replaces the wrapper configuration.
func (w *Wrapper) SetConfig(ctx context.Context, caller util.Uint160, cfg vrf.WrapperConfig) error {
	return w.run(ctx, "set_config", func(tx storage.Tx) (vrf.Event, error) {
		if err := w.requireOperator(caller); err != nil {
			return nil, err
		}
		if err := ValidateConfig(cfg); err != nil {
			return nil, err
		}
		tx.SetWrapperConfig(cfg)
		return vrf.WrapperConfigSet{Config: cfg}, nil
	})
}

// Enable lets new requests through.
func (w *Wrapper) Enable(ctx context.Context, caller util.Uint160) error {
	return w.setEnabled(ctx, caller, true)
}

// Disable blocks new requests. Requests already forwarded still complete.
func (w *Wrapper) Disable(ctx context.Context, caller util.Uint160) error {
	return w.setEnabled(ctx, caller, false)
}

func (w *Wrapper) setEnabled(ctx context.Context, caller util.Uint160, enabled bool) error {
	op := "disable"
	if enabled {
		op = "enable"
	}
	return w.run(ctx, op, func(tx storage.Tx) (vrf.Event, error) {
		if err := w.requireOperator(caller); err != nil {
			return nil, err
		}
		st := tx.WrapperState()
		st.Enabled = enabled
		tx.SetWrapperState(st)
		if enabled {
			return vrf.WrapperEnabled{}, nil
		}
		return vrf.WrapperDisabled{}, nil
	})
}

// Withdraw pays out wrapper revenue. Value committed to in-flight requests
// cannot be withdrawn.
func (w *Wrapper) Withdraw(ctx context.Context, caller, to util.Uint160, amount int64) error {
	return w.run(ctx, "withdraw", func(tx storage.Tx) (vrf.Event, error) {
		if err := w.requireOperator(caller); err != nil {
			return nil, err
		}
		if amount < 0 {
			return nil, svcerrors.ErrInvalidAmount
		}
		st := tx.WrapperState()
		if amount > st.Held-st.Committed {
			return nil, svcerrors.ErrNotEnoughLeft.
				WithDetails("available", st.Held-st.Committed).
				WithDetails("amount", amount)
		}
		st.Held -= amount
		tx.SetWrapperState(st)
		if err := w.settlement.Transfer(ctx, to, amount); err != nil {
			return nil, err
		}
		return vrf.WrapperWithdrawn{To: to, Amount: amount}, nil
	})
}

// =============================================================================
// Requests
// =============================================================================

// RequestRandomness forwards a paid request from caller. paidValue is the
// value sent with the call and gasPrice the caller's gas price.
func (w *Wrapper) RequestRandomness(ctx context.Context, caller util.Uint160, callbackGasLimit uint32, confirmations uint16, numWords uint32, paidValue, gasPrice int64) (util.Uint256, error) {
	var (
		requestID util.Uint256
		cost      int64
	)
	err := w.run(ctx, "request_randomness", func(tx storage.Tx) (vrf.Event, error) {
		st := tx.WrapperState()
		if !st.Enabled {
			return nil, svcerrors.ErrWrapperDisabled
		}
		cfg, ok := tx.WrapperConfig()
		if !ok {
			return nil, svcerrors.ErrNotConfigured
		}
		if gasPrice < cfg.MinGasPrice {
			return nil, svcerrors.ErrGasPriceTooLow.
				WithDetails("gas_price", gasPrice).
				WithDetails("min", cfg.MinGasPrice)
		}
		price, err := w.price(ctx, cfg, gasPrice, callbackGasLimit, numWords)
		if err != nil {
			return nil, err
		}
		if paidValue < price {
			return nil, svcerrors.ErrFeeTooLow.
				WithDetails("paid", paidValue).
				WithDetails("price", price)
		}
		if numWords > uint32(cfg.MaxNumWords) {
			return nil, svcerrors.ErrNumWordsTooHigh.
				WithDetails("have", numWords).
				WithDetails("max", cfg.MaxNumWords)
		}
		if st.Held > math.MaxInt64-paidValue {
			return nil, svcerrors.ErrInvalidAmount.WithMessage("balance overflow")
		}
		forwardGas := uint64(callbackGasLimit) + uint64(cfg.WrapperGasOverhead)
		if forwardGas > math.MaxUint32 {
			return nil, svcerrors.ErrGasLimitTooBig
		}

		id, err := w.coord.RequestRandomWords(ctx, w.address, coordinator.Request{
			KeyHash:                     cfg.KeyHash,
			SubID:                       st.SubID,
			MinimumRequestConfirmations: confirmations,
			CallbackGasLimit:            uint32(forwardGas),
			NumWords:                    numWords,
		})
		if err != nil {
			return nil, err
		}

		tx.PutCallback(vrf.Callback{
			RequestID:        id,
			CallbackAddress:  caller,
			CallbackGasLimit: callbackGasLimit,
			RequestGasPrice:  gasPrice,
			Cost:             price,
			Paid:             paidValue,
		})
		st.Held += paidValue
		st.Committed += price
		st.LastRequestID = id
		tx.SetWrapperState(st)

		requestID, cost = id, price
		return vrf.WrapperRequestCreated{RequestID: id, Consumer: caller, Cost: price, Paid: paidValue}, nil
	})
	if err != nil {
		return util.Uint256{}, err
	}
	w.metrics.RecordWrapperRequest(paidValue, cost)
	return requestID, nil
}

// RawFulfillRandomWords receives words from the coordinator. It puts back
// what the coordinator charged the wrapper subscription, so the
// subscription balance is the same before and after each request, and
// passes the words to the original caller with the price it was quoted.
// Revenue is what the caller paid minus what the coordinator charged; when
// the charge exceeds the payment the difference shows up as a shortfall in
// Held - Committed and blocks withdrawals.
func (w *Wrapper) RawFulfillRandomWords(ctx context.Context, f vrf.Fulfillment) error {
	var cb vrf.Callback
	err := w.store.Atomic(ctx, func(tx storage.Tx) error {
		var ok bool
		cb, ok = tx.Callback(f.RequestID)
		if !ok {
			return svcerrors.ErrRequestNotFound.WithDetails("request_id", f.RequestID.StringLE())
		}
		if f.Payment < 0 {
			return svcerrors.ErrInvalidAmount.WithDetails("payment", f.Payment)
		}
		st := tx.WrapperState()
		if err := w.coord.Fund(ctx, st.SubID, f.Payment, f.Payment); err != nil {
			return err
		}
		tx.DeleteCallback(f.RequestID)
		st.Held -= f.Payment
		st.Committed -= cb.Cost
		tx.SetWrapperState(st)
		return nil
	})
	if err != nil {
		w.finish(ctx, "fulfill", err, nil)
		return err
	}
	if f.Payment > cb.Paid {
		w.log.WithContext(ctx).
			WithField("request_id", f.RequestID.StringLE()).
			WithField("paid", cb.Paid).
			WithField("charged", f.Payment).
			Warn("coordinator charge exceeds the caller's payment")
	}

	outcome := w.dispatcher.Deliver(ctx, cb.CallbackAddress, vrf.Fulfillment{
		RequestID:   f.RequestID,
		RandomWords: f.RandomWords,
		Payment:     cb.Cost,
	})
	w.finish(ctx, "fulfill", nil, vrf.WrapperFulfilled{
		RequestID: f.RequestID,
		Consumer:  cb.CallbackAddress,
		Cost:      cb.Cost,
		Succeeded: outcome.OK(),
	})
	return nil
}

func (w *Wrapper) price(ctx context.Context, cfg vrf.WrapperConfig, gasPrice int64, callbackGasLimit, numWords uint32) (int64, error) {
	coordCfg, err := w.coord.GetConfig(ctx)
	if err != nil {
		return 0, err
	}
	return fee.New(coordCfg.FeeTiers).WrapperPrice(cfg, gasPrice, callbackGasLimit, numWords)
}

// =============================================================================
// Queries
// =============================================================================

// GetConfig returns the wrapper configuration.
func (w *Wrapper) GetConfig(ctx context.Context) (vrf.WrapperConfig, error) {
	var cfg vrf.WrapperConfig
	err := w.store.View(ctx, func(tx storage.Tx) error {
		var ok bool
		if cfg, ok = tx.WrapperConfig(); !ok {
			return svcerrors.ErrNotConfigured
		}
		return nil
	})
	return cfg, err
}

// CalculateRequestPrice quotes a request at gasPrice.
func (w *Wrapper) CalculateRequestPrice(ctx context.Context, callbackGasLimit, numWords uint32, gasPrice int64) (int64, error) {
	cfg, err := w.GetConfig(ctx)
	if err != nil {
		return 0, err
	}
	return w.price(ctx, cfg, gasPrice, callbackGasLimit, numWords)
}

// State returns the wrapper's scalar state.
func (w *Wrapper) State(ctx context.Context) (storage.WrapperState, error) {
	var st storage.WrapperState
	err := w.store.View(ctx, func(tx storage.Tx) error {
		st = tx.WrapperState()
		return nil
	})
	return st, err
}

// LastRequestID returns the id of the most recent forwarded request.
func (w *Wrapper) LastRequestID(ctx context.Context) (util.Uint256, error) {
	st, err := w.State(ctx)
	return st.LastRequestID, err
}

// SubscriptionID returns the coordinator subscription the wrapper owns.
func (w *Wrapper) SubscriptionID(ctx context.Context) (uint64, error) {
	st, err := w.State(ctx)
	return st.SubID, err
}

// Callback returns the stored callback of an in-flight request.
func (w *Wrapper) Callback(ctx context.Context, requestID util.Uint256) (vrf.Callback, error) {
	var cb vrf.Callback
	err := w.store.View(ctx, func(tx storage.Tx) error {
		var ok bool
		if cb, ok = tx.Callback(requestID); !ok {
			return svcerrors.ErrRequestNotFound.WithDetails("request_id", requestID.StringLE())
		}
		return nil
	})
	return cb, err
}

// PendingCallbacks returns the number of in-flight requests.
func (w *Wrapper) PendingCallbacks(ctx context.Context) (int, error) {
	var n int
	err := w.store.View(ctx, func(tx storage.Tx) error {
		n = tx.CallbackCount()
		return nil
	})
	return n, err
}
