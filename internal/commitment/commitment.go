// Package commitment keeps one hash per outstanding request. The request
// parameters are not stored; fulfillment re-supplies them and Verify
// checks them against the hash.
package commitment

import (
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/vrf_coordinator/internal/crypto"
	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
	"github.com/R3E-Network/vrf_coordinator/internal/storage"
)

// Commit stores the commitment of rec under requestID and returns it.
func Commit(tx storage.CommitmentTx, requestID util.Uint256, rec vrf.RequestRecord) util.Uint256 {
	c := crypto.Commitment(requestID, rec)
	tx.PutCommitment(requestID, c)
	return c
}

// Verify checks that requestID is outstanding and that rec is exactly the
// record it was committed with.
func Verify(tx storage.CommitmentTx, requestID util.Uint256, rec vrf.RequestRecord) error {
	stored, ok := tx.Commitment(requestID)
	if !ok {
		return svcerrors.ErrNoCorrespondingRequest.WithDetails("request_id", requestID.StringLE())
	}
	if crypto.Commitment(requestID, rec) != stored {
		return svcerrors.ErrIncorrectCommitment.WithDetails("request_id", requestID.StringLE())
	}
	return nil
}

// Consume removes the commitment of requestID. It is called once, on the
// first successful fulfillment.
func Consume(tx storage.CommitmentTx, requestID util.Uint256) {
	tx.DeleteCommitment(requestID)
}

// Pending reports whether requestID is outstanding.
func Pending(tx storage.CommitmentTx, requestID util.Uint256) bool {
	_, ok := tx.Commitment(requestID)
	return ok
}
