package coordinator

import (
	"context"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
	"github.com/R3E-Network/vrf_coordinator/internal/fee"
	"github.com/R3E-Network/vrf_coordinator/internal/storage"
)

// ValidateConfig checks a configuration record without applying it.
func ValidateConfig(cfg vrf.GlobalConfig) error {
	if cfg.MinimumRequestConfirmations > vrf.MaxRequestConfirmations {
		return svcerrors.ErrInvalidRequestConfirmations.
			WithDetails("have", cfg.MinimumRequestConfirmations).
			WithDetails("max", vrf.MaxRequestConfirmations)
	}
	if cfg.MaxGasPrice < 0 {
		return svcerrors.ErrInvalidConfig.WithMessage("max gas price must not be negative")
	}
	return fee.ValidateTable(cfg.FeeTiers)
}

// SetConfig replaces the coordinator configuration.
func (c *Coordinator) SetConfig(ctx context.Context, caller util.Uint160, cfg vrf.GlobalConfig) error {
	return c.run(ctx, "set_config", func(tx storage.Tx, out *events) error {
		if err := c.requireOperator(caller); err != nil {
			return err
		}
		if err := ValidateConfig(cfg); err != nil {
			return err
		}
		tx.SetConfig(cfg)
		out.add(vrf.ConfigSet{Config: cfg})
		return nil
	})
}

// RegisterProvingKey binds publicKey to oracle.
func (c *Coordinator) RegisterProvingKey(ctx context.Context, caller, oracle util.Uint160, publicKey []byte, maxGasPrice int64) error {
	return c.run(ctx, "register_proving_key", func(tx storage.Tx, out *events) error {
		if err := c.requireOperator(caller); err != nil {
			return err
		}
		cfg, err := config(tx)
		if err != nil {
			return err
		}
		ev, err := c.keys.Register(tx, oracle, publicKey, maxGasPrice, cfg.MaxGasPrice)
		out.add(ev)
		return err
	})
}

// DeregisterProvingKey removes publicKey from the registry. Outstanding
// requests made against it can no longer be fulfilled.
func (c *Coordinator) DeregisterProvingKey(ctx context.Context, caller util.Uint160, publicKey []byte) error {
	return c.run(ctx, "deregister_proving_key", func(tx storage.Tx, out *events) error {
		if err := c.requireOperator(caller); err != nil {
			return err
		}
		ev, err := c.keys.Deregister(tx, publicKey)
		out.add(ev)
		return err
	})
}

// RecoverFunds sends held value that no balance accounts for to to.
func (c *Coordinator) RecoverFunds(ctx context.Context, caller, to util.Uint160) (int64, error) {
	var amount int64
	err := c.run(ctx, "recover_funds", func(tx storage.Tx, out *events) error {
		if err := c.requireOperator(caller); err != nil {
			return err
		}
		var ev vrf.Event
		amount, ev = c.ledger.RecoverFunds(tx, to)
		if amount > 0 {
			if err := c.settlement.Transfer(ctx, to, amount); err != nil {
				return err
			}
		}
		out.add(ev)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

// OracleWithdraw pays amount of caller's withdrawable balance to to.
func (c *Coordinator) OracleWithdraw(ctx context.Context, caller, to util.Uint160, amount int64) error {
	return c.run(ctx, "oracle_withdraw", func(tx storage.Tx, out *events) error {
		known, err := c.ledger.Withdraw(tx, caller, amount)
		if err != nil {
			return err
		}
		if !known {
			if !c.keys.IsOracle(tx, caller) {
				return svcerrors.ErrOnlyOracle
			}
			if amount != 0 {
				return svcerrors.ErrInsufficientBalance.
					WithDetails("balance", 0).
					WithDetails("amount", amount)
			}
		}
		if err := c.settlement.Transfer(ctx, to, amount); err != nil {
			return err
		}
		out.add(vrf.OracleWithdrawn{Oracle: caller, To: to, Amount: amount})
		return nil
	})
}
