package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/internal/obs"
	"github.com/talentbridge/trustlayer/ports"
)

const DefaultReviewWindow = 3 * 24 * time.Hour

// ContractMachine drives one party's side of the escrow signing sequence.
// The role is fixed at construction.
type ContractMachine struct {
	role     core.Role
	repo     ports.ContractRepository
	tx       *TransactionAdapter
	wallet   ports.Wallet
	notifier ports.ContractNotifier
	events   ports.EventPublisher
	logger   *slog.Logger

	reviewWindow time.Duration
	reviewPath   string
	now          func() time.Time

	// transitions on one machine never interleave
	mu sync.Mutex
}

// ContractOption configures a ContractMachine
type ContractOption func(*ContractMachine)

// WithContractNotifier sets where review links are delivered
func WithContractNotifier(n ports.ContractNotifier) ContractOption {
	return func(m *ContractMachine) { m.notifier = n }
}

// WithContractEvents publishes every stored transition
func WithContractEvents(e ports.EventPublisher) ContractOption {
	return func(m *ContractMachine) { m.events = e }
}

// WithReviewWindow sets how long a created contract stays open for review
func WithReviewWindow(d time.Duration) ContractOption {
	return func(m *ContractMachine) { m.reviewWindow = d }
}

// WithReviewPath sets the path review links point at
func WithReviewPath(path string) ContractOption {
	return func(m *ContractMachine) { m.reviewPath = path }
}

// WithContractClock replaces time.Now
func WithContractClock(now func() time.Time) ContractOption {
	return func(m *ContractMachine) { m.now = now }
}

// WithContractLogger sets the logger
func WithContractLogger(l *slog.Logger) ContractOption {
	return func(m *ContractMachine) { m.logger = l }
}

// NewContractMachine creates a machine acting as role
func NewContractMachine(role core.Role, repo ports.ContractRepository, tx *TransactionAdapter, wallet ports.Wallet, opts ...ContractOption) *ContractMachine {
	m := &ContractMachine{
		role:         role,
		repo:         repo,
		tx:           tx,
		wallet:       wallet,
		logger:       slog.Default(),
		reviewWindow: DefaultReviewWindow,
		reviewPath:   DefaultReviewPath,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Role returns the party this machine acts for
func (m *ContractMachine) Role() core.Role { return m.role }

// CreateRequest carries what the employer knows about the hire
type CreateRequest struct {
	PostID           string
	ApplicationID    string
	JobTitle         string
	ApplicantAddress string
	Salary           decimal.Decimal
}

// Create opens the contract on chain and notifies the applicant. The record is
// stored before the notification goes out and removed again if it fails.
func (m *ContractMachine) Create(ctx context.Context, req CreateRequest) (*core.ContractEscrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.create(ctx, req)
	m.record(core.ContractCreated, err)
	return c, err
}

func (m *ContractMachine) create(ctx context.Context, req CreateRequest) (*core.ContractEscrow, error) {
	if err := m.requireRole(core.RoleEmployer); err != nil {
		return nil, err
	}
	if req.ApplicationID == "" {
		return nil, core.NewContractError(core.ErrContractNotFound, errors.New("application id is required"))
	}
	existing, err := m.load(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.State != core.ContractUncreated {
		return nil, outOfOrder(existing.State, core.ContractCreated)
	}

	employer, err := m.signingWallet(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ApplicantAddress) == "" {
		return nil, core.NewContractError(core.ErrMissingCounterpartyAddress, nil)
	}
	if !req.Salary.IsPositive() {
		return nil, core.NewContractError(core.ErrInvalidSalaryAmount, fmt.Errorf("salary %s", req.Salary))
	}

	start := m.now().UTC()
	prep, err := m.tx.Prepare(ctx, core.ContractCreateIntent{
		Employer:  employer,
		Employee:  req.ApplicantAddress,
		Salary:    req.Salary,
		StartDate: start,
		DueDate:   start.Add(m.reviewWindow),
	})
	if err != nil {
		return nil, core.NewContractError(core.ErrTransactionPreparationFailed, err)
	}
	if prep.ContractAddress == "" || prep.EscrowAddress == "" {
		return nil, core.NewContractError(core.ErrTransactionPreparationFailed, errors.New("response carries no contract or escrow address"))
	}

	c := &core.ContractEscrow{
		ID:               req.ApplicationID,
		PostID:           req.PostID,
		ApplicationID:    req.ApplicationID,
		JobTitle:         req.JobTitle,
		EmployerAddress:  employer,
		ApplicantAddress: req.ApplicantAddress,
		Salary:           req.Salary,
		StartDate:        start,
		DueDate:          start.Add(m.reviewWindow),
		ContractAddress:  prep.ContractAddress,
		EscrowAddress:    prep.EscrowAddress,
		State:            core.ContractCreated,
		Pending:          prep.Descriptor,
		UpdatedAt:        start,
	}

	// the record exists before the applicant can hold a link to it
	if err := m.repo.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to store contract: %w", err)
	}
	if err := m.notify(ctx, c); err != nil {
		if derr := m.repo.Delete(ctx, c.ID); derr != nil {
			m.logger.Warn("Failed to roll back unannounced contract",
				slog.String("application", c.ApplicationID), slog.String("error", derr.Error()))
		}
		return nil, core.NewContractError(core.ErrNotificationDeliveryFailed, err)
	}
	m.publish(ctx, c)

	m.logger.Info("Contract created",
		slog.String("application", c.ApplicationID),
		slog.String("contract", c.ContractAddress),
		slog.String("escrow", c.EscrowAddress))
	return c, nil
}

func (m *ContractMachine) notify(ctx context.Context, c *core.ContractEscrow) error {
	if m.notifier == nil {
		return errors.New("no notifier configured")
	}
	msg, err := newContractRequestMessage(c, m.now())
	if err != nil {
		return err
	}
	link := ContractLink{
		Path:            m.reviewPath,
		PostID:          c.PostID,
		Role:            core.RoleApplicant,
		ApplicationID:   c.ApplicationID,
		ContractAddress: c.ContractAddress,
		EscrowAddress:   c.EscrowAddress,
	}
	return m.notifier.NotifyContractRequest(ctx, core.ContractNotificationLink{
		ApplicationID:   c.ApplicationID,
		PostID:          c.PostID,
		LinkPayload:     link.String(),
		Message:         msg,
		ContractAddress: c.ContractAddress,
		EscrowAddress:   c.EscrowAddress,
		Transaction:     c.Pending,
	})
}

// ApplicantSign signs the outstanding creation transaction once every
// checklist item is affirmed
func (m *ContractMachine) ApplicantSign(ctx context.Context, id string, checklist core.Checklist) (*core.ContractEscrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.applicantSign(ctx, id, checklist)
	m.record(core.ContractApplicantSigned, err)
	return c, err
}

func (m *ContractMachine) applicantSign(ctx context.Context, id string, checklist core.Checklist) (*core.ContractEscrow, error) {
	if err := m.requireRole(core.RoleApplicant); err != nil {
		return nil, err
	}
	c, err := m.expect(ctx, id, core.ContractApplicantSigned, core.ContractCreated)
	if err != nil {
		return nil, err
	}
	if missing := checklist.Missing(); len(missing) > 0 {
		return nil, core.NewContractError(core.ErrChecklistIncomplete, fmt.Errorf("unaffirmed: %v", missing))
	}

	address, err := m.signingWallet(ctx)
	if err != nil {
		return nil, err
	}
	if c.ApplicantAddress != "" && !strings.EqualFold(address, c.ApplicantAddress) {
		return nil, core.NewContractError(core.ErrRoleNotPermitted, fmt.Errorf("wallet %s is not the contract applicant", address))
	}
	if c.Pending == nil {
		return nil, core.NewContractError(core.ErrTransactionPreparationFailed, errors.New("no outstanding transaction"))
	}
	env, err := c.Pending.Envelope()
	if err != nil {
		return nil, core.NewContractError(core.ErrTransactionPreparationFailed, err)
	}

	if _, err := m.sign(ctx, env); err != nil {
		return nil, err
	}

	at := m.now().UTC()
	c.ApplicantSigned = true
	c.ApplicantSignedAt = &at
	c.State = core.ContractApplicantSigned
	c.Pending = nil
	c.UpdatedAt = at
	if err := m.save(ctx, c); err != nil {
		return nil, err
	}
	m.logger.Info("Applicant signed contract", slog.String("application", c.ApplicationID))
	return c, nil
}

// EmployerFinalize adds the employer's closing signature, completing the contract
func (m *ContractMachine) EmployerFinalize(ctx context.Context, id string) (*core.ContractEscrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.employerFinalize(ctx, id)
	m.record(core.ContractCompleted, err)
	return c, err
}

func (m *ContractMachine) employerFinalize(ctx context.Context, id string) (*core.ContractEscrow, error) {
	if err := m.requireRole(core.RoleEmployer); err != nil {
		return nil, err
	}
	c, err := m.expect(ctx, id, core.ContractCompleted, core.ContractApplicantSigned)
	if err != nil {
		return nil, err
	}
	if !c.ApplicantSigned || c.ApplicantSignedAt == nil {
		return nil, outOfOrder(c.State, core.ContractCompleted)
	}
	employer, err := m.signingWallet(ctx)
	if err != nil {
		return nil, err
	}

	prep, err := m.tx.Prepare(ctx, core.ContractFinalizeIntent{
		Employer: employer,
		Contract: c.ContractAddress,
		Escrow:   c.EscrowAddress,
	})
	if err != nil {
		return nil, core.NewContractError(core.ErrTransactionPreparationFailed, err)
	}
	if _, err := m.sign(ctx, prep.Envelope); err != nil {
		return nil, err
	}

	at := m.now().UTC()
	c.EmployerSigned = true
	c.EmployerSignedAt = &at
	c.State = core.ContractCompleted
	c.UpdatedAt = at
	if err := m.save(ctx, c); err != nil {
		return nil, err
	}
	m.logger.Info("Contract completed", slog.String("application", c.ApplicationID))
	return c, nil
}

// ObserveApplicantSignature moves the employer's record to ApplicantSigned
// once the chain reports the applicant's signature. It is how an employer
// learns of a signature made from another client.
func (m *ContractMachine) ObserveApplicantSignature(ctx context.Context, id string) (*core.ContractEscrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.observeApplicantSignature(ctx, id)
	m.record(core.ContractApplicantSigned, err)
	return c, err
}

func (m *ContractMachine) observeApplicantSignature(ctx context.Context, id string) (*core.ContractEscrow, error) {
	if err := m.requireRole(core.RoleEmployer); err != nil {
		return nil, err
	}
	c, err := m.expect(ctx, id, core.ContractApplicantSigned, core.ContractCreated)
	if err != nil {
		return nil, err
	}
	raw, err := m.tx.LoadContract(ctx, c.ContractAddress)
	if err != nil {
		return nil, err
	}
	flags := ChainFlags(raw)
	if flags.ApplicantSigned == nil || !*flags.ApplicantSigned {
		return nil, outOfOrder(c.State, core.ContractApplicantSigned)
	}

	at := m.now().UTC()
	if flags.ApplicantSignedAt != nil {
		at = *flags.ApplicantSignedAt
	}
	c.ApplicantSigned = true
	c.ApplicantSignedAt = &at
	c.State = core.ContractApplicantSigned
	c.Pending = nil
	c.UpdatedAt = m.now().UTC()
	if err := m.save(ctx, c); err != nil {
		return nil, err
	}
	m.logger.Info("Applicant signature observed on chain", slog.String("application", c.ApplicationID))
	return c, nil
}

// Expire cancels an unfinished contract whose due date has passed
func (m *ContractMachine) Expire(ctx context.Context, id string) (*core.ContractEscrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.expire(ctx, id)
	m.record(core.ContractExpired, err)
	return c, err
}

func (m *ContractMachine) expire(ctx context.Context, id string) (*core.ContractEscrow, error) {
	if err := m.requireRole(core.RoleEmployer); err != nil {
		return nil, err
	}
	c, err := m.expect(ctx, id, core.ContractExpired, core.ContractCreated, core.ContractApplicantSigned)
	if err != nil {
		return nil, err
	}
	if m.now().Before(c.DueDate) {
		return nil, core.NewContractError(core.ErrContractNotDue, fmt.Errorf("due %s", c.DueDate.Format(time.RFC3339)))
	}
	employer, err := m.signingWallet(ctx)
	if err != nil {
		return nil, err
	}

	prep, err := m.tx.Prepare(ctx, core.ContractExpireIntent{
		Employer: employer,
		Contract: c.ContractAddress,
		Escrow:   c.EscrowAddress,
	})
	if err != nil {
		return nil, core.NewContractError(core.ErrTransactionPreparationFailed, err)
	}
	if _, err := m.sign(ctx, prep.Envelope); err != nil {
		return nil, err
	}

	c.State = core.ContractExpired
	c.Pending = nil
	c.UpdatedAt = m.now().UTC()
	if err := m.save(ctx, c); err != nil {
		return nil, err
	}
	m.logger.Info("Contract expired", slog.String("application", c.ApplicationID))
	return c, nil
}

// Settle releases the escrowed salary of a completed contract to the
// applicant. The contract state does not change.
func (m *ContractMachine) Settle(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireRole(core.RoleEmployer); err != nil {
		return "", err
	}
	c, err := m.expect(ctx, id, core.ContractCompleted, core.ContractCompleted)
	if err != nil {
		return "", err
	}
	employer, err := m.signingWallet(ctx)
	if err != nil {
		return "", err
	}

	prep, err := m.tx.Prepare(ctx, core.ContractEndIntent{
		Employer: employer,
		Employee: c.ApplicantAddress,
		Contract: c.ContractAddress,
		Escrow:   c.EscrowAddress,
		Amount:   c.Salary,
	})
	if err != nil {
		return "", core.NewContractError(core.ErrTransactionPreparationFailed, err)
	}
	sig, err := m.sign(ctx, prep.Envelope)
	if err != nil {
		return "", err
	}
	m.logger.Info("Escrow settled", slog.String("application", c.ApplicationID), slog.String("signature", sig))
	return sig, nil
}

// Resume rebuilds the applicant's local record from a delivered contract
// link so the flow can continue at the right step. An existing record is
// returned unchanged. A link claiming the applicant already signed is only
// believed when the chain reports that signature.
func (m *ContractMachine) Resume(ctx context.Context, link ContractLink, pending *core.TransactionDescriptor) (*core.ContractEscrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireRole(core.RoleApplicant); err != nil {
		return nil, err
	}
	if link.Role != "" && link.Role != m.role {
		return nil, core.NewContractError(core.ErrRoleNotPermitted, fmt.Errorf("link addressed to %s", link.Role))
	}

	existing, err := m.load(ctx, link.ApplicationID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	if link.ContractAddress == "" || link.EscrowAddress == "" {
		return nil, core.NewContractError(core.ErrContractNotFound, errors.New("link carries no contract or escrow address"))
	}

	now := m.now().UTC()
	c := &core.ContractEscrow{
		ID:               link.ApplicationID,
		PostID:           link.PostID,
		ApplicationID:    link.ApplicationID,
		ApplicantAddress: m.wallet.Address(),
		ContractAddress:  link.ContractAddress,
		EscrowAddress:    link.EscrowAddress,
		State:            core.ContractCreated,
		Pending:          pending,
		UpdatedAt:        now,
	}
	if link.ApplicantSigned {
		raw, err := m.tx.LoadContract(ctx, link.ContractAddress)
		if err != nil {
			return nil, err
		}
		flags := ChainFlags(raw)
		if flags.ApplicantSigned != nil && *flags.ApplicantSigned {
			at := now
			if flags.ApplicantSignedAt != nil {
				at = *flags.ApplicantSignedAt
			}
			c.State = core.ContractApplicantSigned
			c.ApplicantSigned = true
			c.ApplicantSignedAt = &at
			c.Pending = nil
		} else {
			m.logger.Warn("Link claims an applicant signature the chain does not report",
				slog.String("application", link.ApplicationID))
		}
	}
	if err := m.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ReconcileReport compares the local record with the chain
type ReconcileReport struct {
	Contract *core.ContractEscrow
	Chain    core.ChainSignatureFlags
	Drift    Drift
}

// Reconcile loads the on-chain contract and reports where it disagrees with
// the local flags. The local record is never modified.
func (m *ContractMachine) Reconcile(ctx context.Context, id string) (*ReconcileReport, error) {
	c, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil || c.ContractAddress == "" {
		return nil, core.NewContractError(core.ErrContractNotFound, nil)
	}
	raw, err := m.tx.LoadContract(ctx, c.ContractAddress)
	if err != nil {
		return nil, err
	}

	flags := ChainFlags(raw)
	report := &ReconcileReport{Contract: c, Chain: flags, Drift: compareFlags(c, flags)}
	if report.Drift.Any() {
		m.logger.Warn("Contract signatures drifted from chain",
			slog.String("application", c.ApplicationID),
			slog.Bool("employer", report.Drift.Employer),
			slog.Bool("applicant", report.Drift.Applicant))
	}
	return report, nil
}

// Get returns the local record
func (m *ContractMachine) Get(ctx context.Context, id string) (*core.ContractEscrow, error) {
	c, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, core.NewContractError(core.ErrContractNotFound, nil)
	}
	return c, nil
}

func (m *ContractMachine) requireRole(want core.Role) error {
	if m.role != want {
		return core.NewContractError(core.ErrRoleNotPermitted, fmt.Errorf("%s action invoked as %s", want, m.role))
	}
	return nil
}

// expect loads id and checks it sits in one of from before moving to target
func (m *ContractMachine) expect(ctx context.Context, id string, target core.ContractState, from ...core.ContractState) (*core.ContractEscrow, error) {
	c, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, core.NewContractError(core.ErrOutOfOrderTransition,
			fmt.Errorf("%w: %s cannot move to %s", core.ErrContractNotFound, core.ContractUncreated, target))
	}
	for _, s := range from {
		if c.State == s {
			return c, nil
		}
	}
	return nil, outOfOrder(c.State, target)
}

func outOfOrder(from, to core.ContractState) error {
	return core.NewContractError(core.ErrOutOfOrderTransition, fmt.Errorf("%s cannot move to %s", from, to))
}

func (m *ContractMachine) load(ctx context.Context, id string) (*core.ContractEscrow, error) {
	c, err := m.repo.Get(ctx, id)
	if errors.Is(err, core.ErrContractNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}
	return c, nil
}

func (m *ContractMachine) save(ctx context.Context, c *core.ContractEscrow) error {
	if err := m.repo.Save(ctx, c); err != nil {
		return fmt.Errorf("failed to store contract: %w", err)
	}
	m.publish(ctx, c)
	return nil
}

func (m *ContractMachine) publish(ctx context.Context, c *core.ContractEscrow) {
	if m.events == nil {
		return
	}
	if err := m.events.PublishContract(ctx, c); err != nil {
		m.logger.Warn("Failed to publish contract event", slog.String("application", c.ApplicationID), slog.String("error", err.Error()))
	}
}

// signingWallet returns the connected address of a wallet able to sign transactions
func (m *ContractMachine) signingWallet(ctx context.Context) (string, error) {
	address := m.wallet.Address()
	if address == "" {
		var err error
		if address, err = m.wallet.Connect(ctx); err != nil || address == "" {
			return "", core.NewContractError(core.ErrWalletNotConnected, err)
		}
	}
	caps := m.wallet.Capabilities()
	if !caps.Has(ports.CanSignTransaction) && !caps.Has(ports.CanSignAndSend) {
		return "", core.NewContractError(core.ErrWalletSigningUnsupported, nil)
	}
	return address, nil
}

func (m *ContractMachine) sign(ctx context.Context, env core.ChainTransactionEnvelope) (string, error) {
	sig, err := m.tx.SignAndSubmit(ctx, env, m.wallet)
	if errors.Is(err, core.ErrWalletCapabilityMissing) {
		return "", core.NewContractError(core.ErrWalletSigningUnsupported, err)
	}
	if err != nil {
		return "", fmt.Errorf("signature failed: %w", err)
	}
	return sig, nil
}

func (m *ContractMachine) record(target core.ContractState, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	obs.ContractTransitionTotal.WithLabelValues(string(target), result).Inc()
}
