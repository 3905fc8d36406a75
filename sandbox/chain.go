package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/ports"
)

const registryABI = `[
	{"type":"function","name":"initIdentity","inputs":[{"name":"wallet","type":"address"}],"outputs":[]},
	{"type":"function","name":"createContract","inputs":[
		{"name":"employer","type":"address"},{"name":"employee","type":"address"},
		{"name":"salary","type":"uint256"},{"name":"startDate","type":"uint64"},{"name":"dueDate","type":"uint64"}],"outputs":[]},
	{"type":"function","name":"finalizeContract","inputs":[{"name":"contract","type":"address"},{"name":"escrow","type":"address"}],"outputs":[]},
	{"type":"function","name":"expireContract","inputs":[{"name":"contract","type":"address"},{"name":"escrow","type":"address"}],"outputs":[]},
	{"type":"function","name":"endContract","inputs":[
		{"name":"contract","type":"address"},{"name":"escrow","type":"address"},
		{"name":"employee","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

const (
	txGasLimit = 250_000
	chainName  = "ethereum"
)

type pendingTx struct {
	intent   core.TxIntent
	sender   common.Address
	contract common.Address
	escrow   common.Address
}

type escrowContract struct {
	employer         common.Address
	employee         common.Address
	escrow           common.Address
	salary           decimal.Decimal
	dueDate          time.Time
	state            core.ContractState
	settled          bool
	employeeSignedAt time.Time
	employerSignedAt time.Time
}

// Chain is an in-process stand-in for the chain service and its network. It
// prepares real unsigned legacy transactions against a registry address and
// applies their effects once a correctly signed copy is submitted.
type Chain struct {
	abi      abi.ABI
	chainID  *big.Int
	signer   types.Signer
	registry common.Address
	endpoint string
	gasPrice *big.Int
	logger   *slog.Logger
	now      func() time.Time

	onIdentity func(wallet string)

	mu        sync.Mutex
	nonces    map[common.Address]uint64
	created   uint64
	pending   map[common.Hash]pendingTx
	confirmed map[string]bool
	contracts map[common.Address]*escrowContract
}

var (
	_ ports.ChainService = (*Chain)(nil)
	_ ports.ChainNetwork = (*Chain)(nil)
)

// NewChain creates a chain for chainID. endpoint is advertised to clients as
// the network to submit to.
func NewChain(chainID int64, registry, endpoint string, logger *slog.Logger) (*Chain, error) {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}
	if !common.IsHexAddress(registry) {
		return nil, fmt.Errorf("invalid registry address %q", registry)
	}
	id := big.NewInt(chainID)
	return &Chain{
		abi:       parsed,
		chainID:   id,
		signer:    types.LatestSignerForChainID(id),
		registry:  common.HexToAddress(registry),
		endpoint:  endpoint,
		gasPrice:  big.NewInt(1_000_000_000),
		logger:    logger,
		now:       time.Now,
		nonces:    make(map[common.Address]uint64),
		pending:   make(map[common.Hash]pendingTx),
		confirmed: make(map[string]bool),
		contracts: make(map[common.Address]*escrowContract),
	}, nil
}

// OnIdentity registers fn to run when an identity transaction is applied
func (c *Chain) OnIdentity(fn func(wallet string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onIdentity = fn
}

// ChainID returns the network id transactions are signed for
func (c *Chain) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

func badRequest(format string, args ...any) error {
	return &core.ChainServiceError{Status: http.StatusBadRequest, Reason: fmt.Sprintf(format, args...)}
}

func address(name, v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, badRequest("invalid %s address %q", name, v)
	}
	return common.HexToAddress(v), nil
}

// Prepare builds the unsigned transaction for intent
func (c *Chain) Prepare(ctx context.Context, intent core.TxIntent) (*core.PreparedTransaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, data, err := c.plan(intent)
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    c.nonces[p.sender],
		To:       &c.registry,
		Gas:      txGasLimit,
		GasPrice: c.gasPrice,
		Data:     data,
	})
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	c.pending[c.signer.Hash(tx)] = p

	env := core.ChainTransactionEnvelope{
		UnsignedPayload: raw,
		NetworkID:       c.chainID.String(),
		NetworkEndpoint: c.endpoint,
		FeePayer:        p.sender.Hex(),
	}
	prep := &core.PreparedTransaction{Envelope: env, Descriptor: core.DescriptorFor(chainName, env)}
	if intent.Kind() == core.IntentContractCreate {
		prep.ContractAddress = p.contract.Hex()
		prep.EscrowAddress = p.escrow.Hex()
	}

	c.logger.Debug("Transaction prepared", slog.String("intent", string(intent.Kind())), slog.String("sender", p.sender.Hex()))
	return prep, nil
}

// plan validates intent against current state and encodes its call data
func (c *Chain) plan(intent core.TxIntent) (pendingTx, []byte, error) {
	switch i := intent.(type) {
	case core.DIDInitIntent:
		wallet, err := address("wallet", i.Wallet)
		if err != nil {
			return pendingTx{}, nil, err
		}
		data, err := c.abi.Pack("initIdentity", wallet)
		return pendingTx{intent: i, sender: wallet}, data, err

	case core.ContractCreateIntent:
		employer, err := address("employer", i.Employer)
		if err != nil {
			return pendingTx{}, nil, err
		}
		employee, err := address("employee", i.Employee)
		if err != nil {
			return pendingTx{}, nil, err
		}
		if !i.Salary.IsPositive() {
			return pendingTx{}, nil, badRequest("salary must be positive")
		}
		c.created++
		contract := crypto.CreateAddress(c.registry, c.created)
		escrow := crypto.CreateAddress(contract, 0)
		data, err := c.abi.Pack("createContract", employer, employee, i.Salary.BigInt(),
			uint64(i.StartDate.Unix()), uint64(i.DueDate.Unix()))
		// the applicant's signature opens the contract
		return pendingTx{intent: i, sender: employee, contract: contract, escrow: escrow}, data, err

	case core.ContractFinalizeIntent:
		ec, p, err := c.employerAction(i.Employer, i.Contract, i.Escrow, i)
		if err != nil {
			return pendingTx{}, nil, err
		}
		if ec.state != core.ContractApplicantSigned {
			return pendingTx{}, nil, &core.ChainServiceError{Status: http.StatusConflict, Reason: "applicant has not signed"}
		}
		data, err := c.abi.Pack("finalizeContract", p.contract, p.escrow)
		return p, data, err

	case core.ContractExpireIntent:
		ec, p, err := c.employerAction(i.Employer, i.Contract, i.Escrow, i)
		if err != nil {
			return pendingTx{}, nil, err
		}
		if ec.state.Terminal() {
			return pendingTx{}, nil, &core.ChainServiceError{Status: http.StatusConflict, Reason: "contract already " + string(ec.state)}
		}
		data, err := c.abi.Pack("expireContract", p.contract, p.escrow)
		return p, data, err

	case core.ContractEndIntent:
		ec, p, err := c.employerAction(i.Employer, i.Contract, i.Escrow, i)
		if err != nil {
			return pendingTx{}, nil, err
		}
		if ec.state != core.ContractCompleted || ec.settled {
			return pendingTx{}, nil, &core.ChainServiceError{Status: http.StatusConflict, Reason: "contract cannot be settled"}
		}
		data, err := c.abi.Pack("endContract", p.contract, p.escrow, ec.employee, ec.salary.BigInt())
		return p, data, err
	}
	return pendingTx{}, nil, badRequest("unsupported intent %T", intent)
}

func (c *Chain) employerAction(employer, contract, escrow string, intent core.TxIntent) (*escrowContract, pendingTx, error) {
	emp, err := address("employer", employer)
	if err != nil {
		return nil, pendingTx{}, err
	}
	addr, err := address("contract", contract)
	if err != nil {
		return nil, pendingTx{}, err
	}
	ec, ok := c.contracts[addr]
	if !ok {
		return nil, pendingTx{}, &core.ChainServiceError{Status: http.StatusNotFound, Reason: "unknown contract " + contract}
	}
	if ec.employer != emp {
		return nil, pendingTx{}, &core.ChainServiceError{Status: http.StatusForbidden, Reason: "not the contract employer"}
	}
	if escrow != "" && !strings.EqualFold(escrow, ec.escrow.Hex()) {
		return nil, pendingTx{}, badRequest("escrow does not belong to contract")
	}
	return ec, pendingTx{intent: intent, sender: emp, contract: addr, escrow: ec.escrow}, nil
}

// SendRawTransaction accepts a signed transaction prepared by this chain and applies it
func (c *Chain) SendRawTransaction(ctx context.Context, signed []byte) (string, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(signed); err != nil {
		return "", badRequest("malformed transaction: %v", err)
	}
	sender, err := types.Sender(c.signer, tx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.signer.Hash(tx)
	p, ok := c.pending[key]
	if !ok {
		return "", &core.ChainServiceError{Status: http.StatusNotFound, Reason: "transaction was not prepared here"}
	}
	if sender != p.sender {
		return "", fmt.Errorf("%w: signed by %s, expected %s", core.ErrInvalidSignature, sender.Hex(), p.sender.Hex())
	}
	delete(c.pending, key)

	c.apply(p)
	c.nonces[sender]++
	hash := tx.Hash().Hex()
	c.confirmed[hash] = true

	c.logger.Info("Transaction applied", slog.String("intent", string(p.intent.Kind())), slog.String("hash", hash))
	return hash, nil
}

func (c *Chain) apply(p pendingTx) {
	now := c.now().UTC()
	switch i := p.intent.(type) {
	case core.DIDInitIntent:
		if c.onIdentity != nil {
			c.onIdentity(p.sender.Hex())
		}
	case core.ContractCreateIntent:
		c.contracts[p.contract] = &escrowContract{
			employer:         common.HexToAddress(i.Employer),
			employee:         p.sender,
			escrow:           p.escrow,
			salary:           i.Salary,
			dueDate:          i.DueDate,
			state:            core.ContractApplicantSigned,
			employeeSignedAt: now,
		}
	case core.ContractFinalizeIntent:
		ec := c.contracts[p.contract]
		ec.state = core.ContractCompleted
		ec.employerSignedAt = now
	case core.ContractExpireIntent:
		c.contracts[p.contract].state = core.ContractExpired
	case core.ContractEndIntent:
		c.contracts[p.contract].settled = true
	}
}

// Confirmed reports whether a submitted transaction was applied. Submission
// applies immediately, so an unknown hash is one that was never submitted.
func (c *Chain) Confirmed(ctx context.Context, signature string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmed[signature], nil
}

// LoadContract reports the contract's on-chain signature state
func (c *Chain) LoadContract(ctx context.Context, contractAddress string) (map[string]any, error) {
	addr, err := address("contract", contractAddress)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ec, ok := c.contracts[addr]
	if !ok {
		return nil, &core.ChainServiceError{Status: http.StatusNotFound, Reason: "unknown contract " + contractAddress}
	}
	out := map[string]any{
		"employer":       ec.employer.Hex(),
		"employee":       ec.employee.Hex(),
		"escrow":         ec.escrow.Hex(),
		"salary":         ec.salary.String(),
		"dueDate":        ec.dueDate.Unix(),
		"state":          string(ec.state),
		"settled":        ec.settled,
		"employeeSigned": !ec.employeeSignedAt.IsZero(),
		"employerSigned": !ec.employerSignedAt.IsZero(),
	}
	if !ec.employeeSignedAt.IsZero() {
		out["employeeSignedAt"] = ec.employeeSignedAt.Unix()
	}
	if !ec.employerSignedAt.IsZero() {
		out["employerSignedAt"] = ec.employerSignedAt.Unix()
	}
	return out, nil
}
