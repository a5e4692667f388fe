package coordinator

import (
	"context"
	"math/big"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/vrf_coordinator/internal/callback"
	"github.com/R3E-Network/vrf_coordinator/internal/commitment"
	"github.com/R3E-Network/vrf_coordinator/internal/crypto"
	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
	"github.com/R3E-Network/vrf_coordinator/internal/fee"
	"github.com/R3E-Network/vrf_coordinator/internal/storage"
)

// Request holds the parameters of RequestRandomWords.
type Request struct {
	KeyHash                     util.Uint256
	SubID                       uint64
	MinimumRequestConfirmations uint16
	CallbackGasLimit            uint32
	NumWords                    uint32
}

// Result describes a committed fulfillment.
type Result struct {
	RequestID   util.Uint256
	RandomWords []*big.Int
	Payment     int64
	Outcome     callback.Outcome
}

// =============================================================================
// Request
// =============================================================================

// RequestRandomWords commits a randomness request made by caller, a
// consumer of req.SubID, and returns its id.
func (c *Coordinator) RequestRandomWords(ctx context.Context, caller util.Uint160, req Request) (util.Uint256, error) {
	height, err := c.chain.BlockHeight(ctx)
	if err != nil {
		err = svcerrors.Internal("read block height", err)
		c.finish(ctx, "request_random_words", err, nil)
		return util.Uint256{}, err
	}

	var (
		requestID   util.Uint256
		outstanding int
	)
	err = c.run(ctx, "request_random_words", func(tx storage.Tx, out *events) error {
		cfg, err := config(tx)
		if err != nil {
			return err
		}
		sub, err := c.ledger.Get(tx, req.SubID)
		if err != nil {
			return err
		}
		if !sub.HasConsumer(caller) {
			return svcerrors.ErrInvalidConsumer.
				WithDetails("sub_id", req.SubID).
				WithDetails("consumer", caller.StringLE())
		}
		if req.MinimumRequestConfirmations < cfg.MinimumRequestConfirmations ||
			req.MinimumRequestConfirmations > vrf.MaxRequestConfirmations {
			return svcerrors.ErrInvalidRequestConfirmations.
				WithDetails("have", req.MinimumRequestConfirmations).
				WithDetails("min", cfg.MinimumRequestConfirmations).
				WithDetails("max", vrf.MaxRequestConfirmations)
		}
		if req.NumWords > vrf.MaxNumWords {
			return svcerrors.ErrNumWordsTooBig.
				WithDetails("have", req.NumWords).
				WithDetails("max", vrf.MaxNumWords)
		}
		if req.CallbackGasLimit > cfg.MaxGasLimit {
			return svcerrors.ErrGasLimitTooBig.
				WithDetails("have", req.CallbackGasLimit).
				WithDetails("max", cfg.MaxGasLimit)
		}

		nonce := c.ledger.NextNonce(tx, req.SubID, caller)
		id, preSeed := crypto.ComputeRequestID(req.KeyHash, caller, req.SubID, nonce)
		commitment.Commit(tx, id, vrf.RequestRecord{
			BlockHeight:      height,
			SubID:            req.SubID,
			CallbackGasLimit: req.CallbackGasLimit,
			NumWords:         req.NumWords,
			Consumer:         caller,
		})
		c.ledger.MarkRequested(tx, sub)

		requestID = id
		outstanding = tx.CommitmentCount()
		out.add(vrf.RandomWordsRequested{
			KeyHash:                     req.KeyHash,
			RequestID:                   id,
			PreSeed:                     preSeed,
			SubID:                       req.SubID,
			MinimumRequestConfirmations: req.MinimumRequestConfirmations,
			CallbackGasLimit:            req.CallbackGasLimit,
			NumWords:                    req.NumWords,
			Sender:                      caller,
			BlockHeight:                 height,
		})
		return nil
	})
	if err != nil {
		return util.Uint256{}, err
	}
	c.metrics.SetOutstanding(outstanding)
	return requestID, nil
}

// =============================================================================
// Fulfillment
// =============================================================================

// FulfillRandomWords verifies proof against the committed request rec,
// charges the subscription at gasPrice, credits the key's oracle and then
// delivers the words to the consumer. The consumer's outcome is reported in
// the result and never turns into an error.
func (c *Coordinator) FulfillRandomWords(ctx context.Context, proof vrf.Proof, rec vrf.RequestRecord, gasPrice int64) (Result, error) {
	// Chain reads happen before the store lock; a missing hash is reported
	// in validation order below.
	blockHash, hashErr := c.chain.BlockHash(ctx, rec.BlockHeight)
	if hashErr != nil && svcerrors.GetServiceError(hashErr) == nil {
		hashErr = svcerrors.Internal("read block hash", hashErr)
	}

	var (
		res         Result
		outstanding int
	)
	err := c.store.Atomic(ctx, func(tx storage.Tx) error {
		keyHash := crypto.HashOfKey(proof.PublicKey)
		key, err := c.keys.Lookup(tx, keyHash)
		if err != nil {
			return err
		}
		requestID := crypto.RequestID(keyHash, proof.PreSeed)
		if err := commitment.Verify(tx, requestID, rec); err != nil {
			return err
		}
		if hashErr != nil {
			return hashErr
		}

		seed := crypto.Seed(proof.PreSeed, blockHash)
		output, err := c.verifier.Verify(ctx, proof.PublicKey, seed, proof.Proof)
		if err != nil {
			if svcerrors.CodeOf(err) != svcerrors.ErrInvalidProof.Code {
				return svcerrors.ErrInvalidProof.WithMessage("%v", err)
			}
			return err
		}

		cfg, err := config(tx)
		if err != nil {
			return err
		}
		if gasPrice < 0 || gasPrice > key.MaxGasPrice || gasPrice > cfg.MaxGasPrice {
			return svcerrors.ErrGasPriceOverRange.
				WithDetails("gas_price", gasPrice).
				WithDetails("key_max", key.MaxGasPrice).
				WithDetails("global_max", cfg.MaxGasPrice)
		}

		sub, err := c.ledger.Get(tx, rec.SubID)
		if err != nil {
			return err
		}
		payment, err := fee.New(cfg.FeeTiers).Payment(cfg, gasPrice, rec.CallbackGasLimit, sub.RequestCount)
		if err != nil {
			return err
		}

		commitment.Consume(tx, requestID)
		if err := c.ledger.Charge(tx, rec.SubID, key.Oracle, payment); err != nil {
			return err
		}

		res = Result{
			RequestID:   requestID,
			RandomWords: crypto.RandomWords(output, rec.NumWords),
			Payment:     payment,
		}
		outstanding = tx.CommitmentCount()
		return nil
	})
	if err != nil {
		c.finish(ctx, "fulfill_random_words", err, nil)
		return Result{}, err
	}
	c.metrics.SetOutstanding(outstanding)

	res.Outcome = c.dispatcher.Deliver(ctx, rec.Consumer, vrf.Fulfillment{
		RequestID:   res.RequestID,
		RandomWords: res.RandomWords,
		Payment:     res.Payment,
	})
	c.metrics.RecordFulfillment(res.Payment, res.Outcome.OK())
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	c.finish(ctx, "fulfill_random_words", nil, events{vrf.RandomWordsFulfilled{
		RequestID:         res.RequestID,
		RandomWords:       res.RandomWords,
		SubID:             rec.SubID,
		Payment:           res.Payment,
		CallbackSucceeded: res.Outcome.OK(),
	}})
	return res, nil
}
