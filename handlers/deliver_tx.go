package handlers

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"

	"github.com/blockberries/drive"
	"github.com/blockberries/drive/dpp"
	"github.com/blockberries/drive/types"
	"github.com/blockberries/drive/updatestate"
)

// eventStateTransition is the kind of the event emitted for every applied
// state transition.
const eventStateTransition = "stateTransition"

// DeliverTxHandler executes one transaction of a block.
type DeliverTxHandler func(ctx context.Context, req Request) (types.TxOutcome, error)

type deliverer struct {
	engine     dpp.Protocol
	remote     RemoteStateClient
	chainState ChainStateReader
	repo       IdentityRepository
	txs        DBTransactionRegistry
}

type applyFunc func(d *deliverer, ctx context.Context, st dpp.StateTransition) error

// appliers routes each transition type to its effect.
var appliers = map[dpp.Type]applyFunc{
	dpp.TypeDataContract:   (*deliverer).applyRemote,
	dpp.TypeDocuments:      (*deliverer).applyRemote,
	dpp.TypeIdentityCreate: (*deliverer).applyIdentityCreate,
}

// NewDeliverTxHandler returns a handler that applies document and data
// contract transitions through the remote state service and identity
// creations through the identity repository.
func NewDeliverTxHandler(
	engine dpp.Protocol,
	remote RemoteStateClient,
	chainState ChainStateReader,
	repo IdentityRepository,
	txs DBTransactionRegistry,
	limiter RateLimiter,
	rateLimitEnabled bool,
	opts ...Option,
) DeliverTxHandler {
	o := newOptions("deliver_tx", opts)
	d := &deliverer{
		engine:     engine,
		remote:     remote,
		chainState: chainState,
		repo:       repo,
		txs:        txs,
	}

	return func(ctx context.Context, req Request) (types.TxOutcome, error) {
		st, err := decodeStateTransition(ctx, engine, req.Tx)
		if err != nil {
			logRejection(o.log, err, "transaction not applied")
			return types.TxOutcome{}, err
		}

		userID := st.SubmitterID()
		log := o.log.With().Str("user_id", userID).Stringer("type", st.Type()).Logger()

		if rateLimitEnabled {
			if err := checkRateLimit(limiter, userID, chainState.LastBlockHeight()); err != nil {
				logRejection(log, err, "transaction rate limited")
				return types.TxOutcome{}, err
			}
		}

		apply, ok := appliers[st.Type()]
		if !ok {
			err := drive.NewInvalidArgumentError("Unknown State Transition", nil)
			logRejection(log, err, "transaction not applied")
			return types.TxOutcome{}, err
		}
		if err := apply(d, ctx, st); err != nil {
			logRejection(log, err, "transaction not applied")
			return types.TxOutcome{}, err
		}

		outcome := types.TxOutcome{
			Code: 0,
			Events: []types.Event{{
				Kind: eventStateTransition,
				Attributes: []types.EventAttribute{
					{Key: "type", Value: st.Type().String(), Index: true},
					{Key: "userId", Value: userID, Index: true},
				},
			}},
		}
		if rateLimitEnabled {
			outcome.Tags = []types.Tag{limiter.CreateUserTag(userID)}
		}
		log.Debug().Msg("transaction applied")
		return outcome, nil
	}
}

func (d *deliverer) applyRemote(ctx context.Context, st dpp.StateTransition) error {
	data, err := st.Serialize()
	if err != nil {
		return fmt.Errorf("could not serialize state transition: %w", err)
	}

	_, err = d.remote.ApplyStateTransition(ctx, &updatestate.ApplyStateTransitionRequest{
		BlockHeight:     d.chainState.LastBlockHeight(),
		BlockHash:       []byte{},
		StateTransition: data,
	})
	if err == nil {
		return nil
	}

	var serr *updatestate.StatusError
	if errors.As(err, &serr) && serr.Code == codes.InvalidArgument {
		return drive.NewInvalidArgumentError(serr.Message, serr.Metadata())
	}
	return err
}

// identityCreation is implemented by identity create transitions.
type identityCreation interface {
	IdentityID() string
}

func (d *deliverer) applyIdentityCreate(ctx context.Context, st dpp.StateTransition) error {
	creation, ok := st.(identityCreation)
	if !ok {
		return fmt.Errorf("state transition of type %s carries no identity", st.Type())
	}

	result, err := d.engine.StateTransition().ValidateData(ctx, st)
	if err != nil {
		return err
	}
	if !result.IsValid() {
		return drive.NewInvalidArgumentError("Invalid Identity Create Transition", map[string]any{
			"errors": result.Errors(),
		})
	}

	txn, err := d.txs.GetIdentityTransaction()
	if err != nil {
		return err
	}
	// Validation reads committed state only; identities created earlier in
	// this block live in txn.
	existing, err := d.repo.Fetch(ctx, creation.IdentityID(), txn)
	if err != nil {
		return err
	}
	if existing != nil {
		return drive.NewInvalidArgumentError("Invalid Identity Create Transition", map[string]any{
			"errors": []dpp.ConsensusError{&dpp.IdentityAlreadyExistsError{IdentityID: creation.IdentityID()}},
		})
	}

	identity, err := d.engine.Identity().ApplyStateTransition(ctx, st)
	if err != nil {
		return err
	}
	if err := d.repo.Store(ctx, identity, txn); err != nil {
		return err
	}

	stored, err := d.repo.Fetch(ctx, creation.IdentityID(), txn)
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("identity %s not found after store", creation.IdentityID())
	}
	return nil
}
