package mandate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
	"github.com/google/uuid"
)

// DefaultApprovalThreshold is the number of distinct approvals that flip a
// pending mandate to approved when none is configured.
const DefaultApprovalThreshold = 1

// Store persists mandates. Implementations must make Put atomic per
// mandate id.
type Store interface {
	PutMandate(ctx context.Context, m *schema.Mandate) error
	GetMandate(ctx context.Context, mandateID string) (*schema.Mandate, error)
	ListChain(ctx context.Context, chainID string) ([]*schema.Mandate, error)
}

// Config tunes chain behavior.
type Config struct {
	// ApprovalThreshold is the approval count that transitions a mandate
	// from pending to approved. Zero means DefaultApprovalThreshold.
	ApprovalThreshold int
}

func (c Config) threshold() int {
	if c.ApprovalThreshold <= 0 {
		return DefaultApprovalThreshold
	}
	return c.ApprovalThreshold
}

// Chain manages hash-sealed authorization mandates: creation, linking,
// signatures, the approval state machine, and one-shot execution. All
// state transitions on a mandate are serialized by a per-mandate lock,
// since approval counting is a read-modify-write on shared records.
type Chain struct {
	store  Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewChain builds a chain service over the given store.
func NewChain(store Store, cfg Config, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (c *Chain) lockFor(mandateID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[mandateID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[mandateID] = lock
	}
	return lock
}

// Create mints a pending mandate sealed with its content hash. With an
// empty previousMandateID the mandate starts a new chain at sequence 0;
// otherwise it inherits the predecessor's chain id, takes the next
// sequence number, and the predecessor's forward link is updated and
// resealed.
func (c *Chain) Create(ctx context.Context, typ schema.MandateType, content schema.MandateContent, creatorID, previousMandateID string) (*schema.Mandate, error) {
	now := c.now().UTC()
	m := &schema.Mandate{
		MandateID: uuid.NewString(),
		Type:      typ,
		Content:   content,
		Status:    schema.MandatePending,
		CreatedBy: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if previousMandateID == "" {
		m.Chain = schema.ChainLink{ChainID: uuid.NewString(), SequenceNumber: 0}
	} else {
		lock := c.lockFor(previousMandateID)
		lock.Lock()
		defer lock.Unlock()

		prev, err := c.store.GetMandate(ctx, previousMandateID)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound,
				"previous mandate %q not found", previousMandateID)
		}
		m.Chain = schema.ChainLink{
			ChainID:           prev.Chain.ChainID,
			PreviousMandateID: prev.MandateID,
			SequenceNumber:    prev.Chain.SequenceNumber + 1,
		}

		prev.Chain.NextMandateID = m.MandateID
		prev.Cryptography.Hash = ComputeHash(prev)
		prev.UpdatedAt = now
		if err := c.store.PutMandate(ctx, prev); err != nil {
			return nil, err
		}
	}

	m.Cryptography.Hash = ComputeHash(m)
	if err := c.store.PutMandate(ctx, m); err != nil {
		return nil, err
	}

	c.logger.Info("mandate created",
		"mandate_id", m.MandateID,
		"type", m.Type,
		"chain_id", m.Chain.ChainID,
		"sequence", m.Chain.SequenceNumber)
	return m, nil
}

// Get loads a mandate, expiring it first when its window has closed.
func (c *Chain) Get(ctx context.Context, mandateID string) (*schema.Mandate, error) {
	lock := c.lockFor(mandateID)
	lock.Lock()
	defer lock.Unlock()
	return c.load(ctx, mandateID)
}

// ListChain returns every mandate sharing a chain id, ordered by
// sequence number.
func (c *Chain) ListChain(ctx context.Context, chainID string) ([]*schema.Mandate, error) {
	return c.store.ListChain(ctx, chainID)
}

// Sign appends a detached signature over the mandate hash.
func (c *Chain) Sign(ctx context.Context, mandateID string, signer Signer) (*schema.Mandate, error) {
	lock := c.lockFor(mandateID)
	lock.Lock()
	defer lock.Unlock()

	m, err := c.load(ctx, mandateID)
	if err != nil {
		return nil, err
	}
	sig, err := NewSignature(signer, []byte(m.Cryptography.Hash), c.now())
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "sign mandate").WithCause(err)
	}
	return c.addSignature(ctx, m, sig)
}

// AddSignature appends an externally produced signature record after
// verifying it against the mandate hash.
func (c *Chain) AddSignature(ctx context.Context, mandateID string, sig schema.Signature) (*schema.Mandate, error) {
	lock := c.lockFor(mandateID)
	lock.Lock()
	defer lock.Unlock()

	m, err := c.load(ctx, mandateID)
	if err != nil {
		return nil, err
	}
	if err := VerifySignature(sig, []byte(m.Cryptography.Hash)); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "signature does not verify").WithCause(err)
	}
	return c.addSignature(ctx, m, sig)
}

func (c *Chain) addSignature(ctx context.Context, m *schema.Mandate, sig schema.Signature) (*schema.Mandate, error) {
	m.Cryptography.Signatures = append(m.Cryptography.Signatures, sig)
	m.UpdatedAt = c.now().UTC()
	if err := c.store.PutMandate(ctx, m); err != nil {
		return nil, err
	}
	c.logger.Debug("mandate signed",
		"mandate_id", m.MandateID,
		"algorithm", sig.Algorithm,
		"signatures", len(m.Cryptography.Signatures))
	return m, nil
}

// AddApproval records a human sign-off. It rejects non-pending mandates,
// mandates whose authorization does not require approval, and duplicate
// approvers. Reaching the configured threshold flips status to approved.
func (c *Chain) AddApproval(ctx context.Context, mandateID, approverID, role, notes string) (*schema.Mandate, error) {
	lock := c.lockFor(mandateID)
	lock.Lock()
	defer lock.Unlock()

	m, err := c.load(ctx, mandateID)
	if err != nil {
		return nil, err
	}
	if m.Status != schema.MandatePending {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"mandate %q is %s, approvals apply to pending mandates only", m.MandateID, m.Status)
	}
	if !m.Content.Authorization.RequiresApproval {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"mandate %q does not require approval", m.MandateID)
	}
	for _, a := range m.Approvals {
		if a.ApproverID == approverID {
			return nil, schema.NewErrorf(schema.ErrCodeConflict,
				"approver %q already approved mandate %q", approverID, m.MandateID)
		}
	}

	m.Approvals = append(m.Approvals, schema.Approval{
		ApproverID: approverID,
		Role:       role,
		Notes:      notes,
		Timestamp:  c.now().UTC(),
	})
	if len(m.Approvals) >= c.cfg.threshold() {
		m.Status = schema.MandateApproved
	}
	m.UpdatedAt = c.now().UTC()
	if err := c.store.PutMandate(ctx, m); err != nil {
		return nil, err
	}

	c.logger.Info("mandate approval recorded",
		"mandate_id", m.MandateID,
		"approver_id", approverID,
		"approvals", len(m.Approvals),
		"status", m.Status)
	return m, nil
}

// IsValid reports whether the mandate is unexpired, carries at least one
// signature, and its stored hash still matches the recomputed digest.
func (c *Chain) IsValid(m *schema.Mandate) bool {
	if m == nil || m.Expired(c.now()) {
		return false
	}
	if len(m.Cryptography.Signatures) == 0 {
		return false
	}
	return m.Cryptography.Hash == ComputeHash(m)
}

// CanExecute reports whether the mandate may be consumed: approved,
// unexpired, and carrying an approval when one is required.
func (c *Chain) CanExecute(m *schema.Mandate) bool {
	if m == nil || m.Status != schema.MandateApproved || m.Expired(c.now()) {
		return false
	}
	if m.Content.Authorization.RequiresApproval && len(m.Approvals) == 0 {
		return false
	}
	return true
}

// Execute consumes the mandate exactly once: it records who executed it
// and with what result, and moves status to executed. A second call
// rejects because the mandate is no longer approved.
func (c *Chain) Execute(ctx context.Context, mandateID, executorID, result string) (*schema.Mandate, error) {
	lock := c.lockFor(mandateID)
	lock.Lock()
	defer lock.Unlock()

	m, err := c.load(ctx, mandateID)
	if err != nil {
		return nil, err
	}
	if !c.CanExecute(m) {
		return nil, schema.NewErrorf(schema.ErrCodeMandateGate,
			"mandate %q cannot be executed in status %s", m.MandateID, m.Status)
	}

	now := c.now().UTC()
	m.Status = schema.MandateExecuted
	m.Execution = schema.ExecutionRecord{
		ExecutedAt: &now,
		ExecutedBy: executorID,
		Result:     result,
	}
	m.UpdatedAt = now
	if err := c.store.PutMandate(ctx, m); err != nil {
		return nil, err
	}

	c.logger.Info("mandate executed",
		"mandate_id", m.MandateID,
		"executed_by", executorID)
	return m, nil
}

// Cancel moves a non-terminal mandate to cancelled.
func (c *Chain) Cancel(ctx context.Context, mandateID string) (*schema.Mandate, error) {
	lock := c.lockFor(mandateID)
	lock.Lock()
	defer lock.Unlock()

	m, err := c.load(ctx, mandateID)
	if err != nil {
		return nil, err
	}
	if m.Status.Terminal() {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"mandate %q is already %s", m.MandateID, m.Status)
	}
	m.Status = schema.MandateCancelled
	m.UpdatedAt = c.now().UTC()
	if err := c.store.PutMandate(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// load fetches a mandate and settles expiry: a non-terminal mandate past
// its window becomes expired before the caller sees it.
func (c *Chain) load(ctx context.Context, mandateID string) (*schema.Mandate, error) {
	m, err := c.store.GetMandate(ctx, mandateID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "mandate %q not found", mandateID)
	}
	if !m.Status.Terminal() && m.Expired(c.now()) {
		m.Status = schema.MandateExpired
		m.UpdatedAt = c.now().UTC()
		if err := c.store.PutMandate(ctx, m); err != nil {
			return nil, err
		}
		c.logger.Debug("mandate expired", "mandate_id", m.MandateID)
	}
	return m, nil
}

// hashEnvelope fixes the field set and order sealed by the hash. Status,
// approvals, signatures, and execution stay outside so the seal survives
// lifecycle transitions.
type hashEnvelope struct {
	MandateID string                `json:"mandate_id"`
	Type      schema.MandateType    `json:"type"`
	Content   schema.MandateContent `json:"content"`
	Chain     schema.ChainLink      `json:"chain"`
	CreatedAt time.Time             `json:"created_at"`
}

// ComputeHash returns the hex SHA-256 digest of the mandate's sealed
// fields in canonical order.
func ComputeHash(m *schema.Mandate) string {
	raw, err := json.Marshal(hashEnvelope{
		MandateID: m.MandateID,
		Type:      m.Type,
		Content:   m.Content,
		Chain:     m.Chain,
		CreatedAt: m.CreatedAt.UTC(),
	})
	if err != nil {
		// struct marshalling of plain fields cannot fail
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
