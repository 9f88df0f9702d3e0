package mandate

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu       sync.Mutex
	mandates map[string]*schema.Mandate
}

func newMemStore() *memStore {
	return &memStore{mandates: make(map[string]*schema.Mandate)}
}

func (s *memStore) PutMandate(_ context.Context, m *schema.Mandate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *m
	s.mandates[m.MandateID] = &clone
	return nil
}

func (s *memStore) GetMandate(_ context.Context, id string) (*schema.Mandate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mandates[id]
	if !ok {
		return nil, nil
	}
	clone := *m
	return &clone, nil
}

func (s *memStore) ListChain(_ context.Context, chainID string) ([]*schema.Mandate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*schema.Mandate
	for _, m := range s.mandates {
		if m.Chain.ChainID == chainID {
			clone := *m
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Chain.SequenceNumber < out[j].Chain.SequenceNumber
	})
	return out, nil
}

func paymentContent(requiresApproval bool) schema.MandateContent {
	return schema.MandateContent{
		Intent: "pay invoice INV-42",
		Transaction: &schema.TransactionDetail{
			Amount:    125.50,
			Currency:  "USD",
			Recipient: "acct-merchant-7",
		},
		Authorization: schema.Authorization{
			MaxAmount:        500,
			RequiresApproval: requiresApproval,
		},
	}
}

func newTestChain(t *testing.T, cfg Config) (*Chain, *memStore) {
	t.Helper()
	store := newMemStore()
	return NewChain(store, cfg, nil), store
}

func TestChain_Create_SealsHash(t *testing.T) {
	chain, _ := newTestChain(t, Config{})

	m, err := chain.Create(context.Background(), schema.MandatePayment, paymentContent(true), "user-1", "")
	require.NoError(t, err)

	assert.NotEmpty(t, m.MandateID)
	assert.Equal(t, schema.MandatePending, m.Status)
	assert.Equal(t, 0, m.Chain.SequenceNumber)
	assert.NotEmpty(t, m.Chain.ChainID)
	assert.Equal(t, ComputeHash(m), m.Cryptography.Hash)
}

func TestChain_Create_LinkedInheritsChain(t *testing.T) {
	chain, store := newTestChain(t, Config{})
	ctx := context.Background()

	intent, err := chain.Create(ctx, schema.MandateIntent, paymentContent(false), "user-1", "")
	require.NoError(t, err)
	payment, err := chain.Create(ctx, schema.MandatePayment, paymentContent(true), "user-1", intent.MandateID)
	require.NoError(t, err)

	assert.Equal(t, intent.Chain.ChainID, payment.Chain.ChainID)
	assert.Equal(t, 1, payment.Chain.SequenceNumber)
	assert.Equal(t, intent.MandateID, payment.Chain.PreviousMandateID)

	// The predecessor gained a forward link and was resealed.
	prev, err := store.GetMandate(ctx, intent.MandateID)
	require.NoError(t, err)
	assert.Equal(t, payment.MandateID, prev.Chain.NextMandateID)
	assert.Equal(t, ComputeHash(prev), prev.Cryptography.Hash)

	members, err := chain.ListChain(ctx, intent.Chain.ChainID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, intent.MandateID, members[0].MandateID)
	assert.Equal(t, payment.MandateID, members[1].MandateID)
}

func TestChain_Create_UnknownPrevious(t *testing.T) {
	chain, _ := newTestChain(t, Config{})

	_, err := chain.Create(context.Background(), schema.MandateCart, paymentContent(false), "user-1", "nope")
	require.Error(t, err)
	var agErr *schema.AgentError
	require.ErrorAs(t, err, &agErr)
	assert.Equal(t, schema.ErrCodeNotFound, agErr.Code)
}

func TestChain_IsValid_DetectsTampering(t *testing.T) {
	chain, _ := newTestChain(t, Config{})
	ctx := context.Background()

	m, err := chain.Create(ctx, schema.MandatePayment, paymentContent(true), "user-1", "")
	require.NoError(t, err)
	signer, err := NewEd25519Signer("key-1")
	require.NoError(t, err)
	m, err = chain.Sign(ctx, m.MandateID, signer)
	require.NoError(t, err)

	require.True(t, chain.IsValid(m))

	m.Content.Transaction.Amount = 99_999
	assert.False(t, chain.IsValid(m), "content mutation without resealing must invalidate")
}

func TestChain_IsValid_RequiresSignature(t *testing.T) {
	chain, _ := newTestChain(t, Config{})

	m, err := chain.Create(context.Background(), schema.MandatePayment, paymentContent(true), "user-1", "")
	require.NoError(t, err)

	assert.False(t, chain.IsValid(m), "unsigned mandates are never valid")
}

func TestChain_Sign_AppendsVerifiableSignature(t *testing.T) {
	chain, _ := newTestChain(t, Config{})
	ctx := context.Background()

	m, err := chain.Create(ctx, schema.MandatePayment, paymentContent(true), "user-1", "")
	require.NoError(t, err)

	edSigner, err := NewEd25519Signer("key-ed")
	require.NoError(t, err)
	ecSigner, err := NewECDSAP256Signer("key-ec")
	require.NoError(t, err)

	m, err = chain.Sign(ctx, m.MandateID, edSigner)
	require.NoError(t, err)
	m, err = chain.Sign(ctx, m.MandateID, ecSigner)
	require.NoError(t, err)

	require.Len(t, m.Cryptography.Signatures, 2)
	for _, sig := range m.Cryptography.Signatures {
		assert.NoError(t, VerifySignature(sig, []byte(m.Cryptography.Hash)))
	}
}

func TestChain_AddSignature_RejectsBogus(t *testing.T) {
	chain, _ := newTestChain(t, Config{})
	ctx := context.Background()

	m, err := chain.Create(ctx, schema.MandatePayment, paymentContent(true), "user-1", "")
	require.NoError(t, err)

	other, err := chain.Create(ctx, schema.MandateCart, paymentContent(false), "user-1", "")
	require.NoError(t, err)
	signer, err := NewEd25519Signer("key-1")
	require.NoError(t, err)
	sig, err := NewSignature(signer, []byte(other.Cryptography.Hash), time.Now())
	require.NoError(t, err)

	_, err = chain.AddSignature(ctx, m.MandateID, sig)
	require.Error(t, err)
	var agErr *schema.AgentError
	require.ErrorAs(t, err, &agErr)
	assert.Equal(t, schema.ErrCodeValidation, agErr.Code)
}

func TestChain_AddApproval_DefaultThreshold(t *testing.T) {
	chain, _ := newTestChain(t, Config{})
	ctx := context.Background()

	m, err := chain.Create(ctx, schema.MandatePayment, paymentContent(true), "user-1", "")
	require.NoError(t, err)
	assert.False(t, chain.CanExecute(m))

	m, err = chain.AddApproval(ctx, m.MandateID, "approver-1", "finance", "looks good")
	require.NoError(t, err)

	assert.Equal(t, schema.MandateApproved, m.Status)
	assert.True(t, chain.CanExecute(m))
}

func TestChain_AddApproval_ConfiguredThreshold(t *testing.T) {
	chain, _ := newTestChain(t, Config{ApprovalThreshold: 2})
	ctx := context.Background()

	m, err := chain.Create(ctx, schema.MandatePayment, paymentContent(true), "user-1", "")
	require.NoError(t, err)

	m, err = chain.AddApproval(ctx, m.MandateID, "approver-1", "finance", "")
	require.NoError(t, err)
	assert.Equal(t, schema.MandatePending, m.Status, "one of two approvals is not enough")

	m, err = chain.AddApproval(ctx, m.MandateID, "approver-2", "compliance", "")
	require.NoError(t, err)
	assert.Equal(t, schema.MandateApproved, m.Status)
}

func TestChain_AddApproval_DuplicateApprover(t *testing.T) {
	chain, _ := newTestChain(t, Config{ApprovalThreshold: 2})
	ctx := context.Background()

	m, err := chain.Create(ctx, schema.MandatePayment, paymentContent(true), "user-1", "")
	require.NoError(t, err)
	_, err = chain.AddApproval(ctx, m.MandateID, "approver-1", "finance", "")
	require.NoError(t, err)

	_, err = chain.AddApproval(ctx, m.MandateID, "approver-1", "finance", "again")
	require.Error(t, err)
	var agErr *schema.AgentError
	require.ErrorAs(t, err, &agErr)
	assert.Equal(t, schema.ErrCodeConflict, agErr.Code)
}

func TestChain_AddApproval_NotPending(t *testing.T) {
	chain, _ := newTestChain(t, Config{})
	ctx := context.Background()

	m, err := chain.Create(ctx, schema.MandatePayment, paymentContent(true), "user-1", "")
	require.NoError(t, err)
	_, err = chain.AddApproval(ctx, m.MandateID, "approver-1", "finance", "")
	require.NoError(t, err)

	_, err = chain.AddApproval(ctx, m.MandateID, "approver-2", "finance", "")
	require.Error(t, err)
	var agErr *schema.AgentError
	require.ErrorAs(t, err, &agErr)
	assert.Equal(t, schema.ErrCodeInvalidTransition, agErr.Code)
}

func TestChain_AddApproval_NotRequired(t *testing.T) {
	chain, _ := newTestChain(t, Config{})
	ctx := context.Background()

	m, err := chain.Create(ctx, schema.MandatePayment, paymentContent(false), "user-1", "")
	require.NoError(t, err)

	_, err = chain.AddApproval(ctx, m.MandateID, "approver-1", "finance", "")
	require.Error(t, err)
	var agErr *schema.AgentError
	require.ErrorAs(t, err, &agErr)
	assert.Equal(t, schema.ErrCodeValidation, agErr.Code)
}

func TestChain_Execute_ExactlyOnce(t *testing.T) {
	chain, _ := newTestChain(t, Config{})
	ctx := context.Background()

	m, err := chain.Create(ctx, schema.MandatePayment, paymentContent(true), "user-1", "")
	require.NoError(t, err)
	_, err = chain.AddApproval(ctx, m.MandateID, "approver-1", "finance", "")
	require.NoError(t, err)

	m, err = chain.Execute(ctx, m.MandateID, "engine", "charge ok")
	require.NoError(t, err)
	assert.Equal(t, schema.MandateExecuted, m.Status)
	require.NotNil(t, m.Execution.ExecutedAt)
	assert.Equal(t, "engine", m.Execution.ExecutedBy)
	assert.Equal(t, "charge ok", m.Execution.Result)

	_, err = chain.Execute(ctx, m.MandateID, "engine", "charge again")
	require.Error(t, err)
	var agErr *schema.AgentError
	require.ErrorAs(t, err, &agErr)
	assert.Equal(t, schema.ErrCodeMandateGate, agErr.Code)
}

func TestChain_Execute_RejectsPending(t *testing.T) {
	chain, _ := newTestChain(t, Config{})
	ctx := context.Background()

	m, err := chain.Create(ctx, schema.MandatePayment, paymentContent(true), "user-1", "")
	require.NoError(t, err)

	_, err = chain.Execute(ctx, m.MandateID, "engine", "")
	require.Error(t, err)
	var agErr *schema.AgentError
	require.ErrorAs(t, err, &agErr)
	assert.Equal(t, schema.ErrCodeMandateGate, agErr.Code)
}

func TestChain_ExpiresAutomatically(t *testing.T) {
	chain, _ := newTestChain(t, Config{})
	ctx := context.Background()

	content := paymentContent(true)
	expires := time.Now().Add(time.Hour)
	content.Authorization.ExpiresAt = &expires

	m, err := chain.Create(ctx, schema.MandatePayment, content, "user-1", "")
	require.NoError(t, err)
	_, err = chain.AddApproval(ctx, m.MandateID, "approver-1", "finance", "")
	require.NoError(t, err)

	chain.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	m, err = chain.Get(ctx, m.MandateID)
	require.NoError(t, err)
	assert.Equal(t, schema.MandateExpired, m.Status)
	assert.False(t, chain.CanExecute(m))
}

func TestChain_Cancel(t *testing.T) {
	chain, _ := newTestChain(t, Config{})
	ctx := context.Background()

	m, err := chain.Create(ctx, schema.MandatePayment, paymentContent(true), "user-1", "")
	require.NoError(t, err)
	m, err = chain.Cancel(ctx, m.MandateID)
	require.NoError(t, err)
	assert.Equal(t, schema.MandateCancelled, m.Status)

	_, err = chain.Cancel(ctx, m.MandateID)
	require.Error(t, err)
	var agErr *schema.AgentError
	require.ErrorAs(t, err, &agErr)
	assert.Equal(t, schema.ErrCodeInvalidTransition, agErr.Code)
}

func TestChain_ConcurrentApprovals(t *testing.T) {
	chain, _ := newTestChain(t, Config{})
	ctx := context.Background()

	m, err := chain.Create(ctx, schema.MandatePayment, paymentContent(true), "user-1", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var okCount, rejectCount int
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := chain.AddApproval(ctx, m.MandateID, "approver-"+string(rune('a'+n)), "finance", "")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rejectCount++
			} else {
				okCount++
			}
		}(i)
	}
	wg.Wait()

	// Threshold 1: exactly one approval lands, the rest hit the
	// pending-only guard.
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 7, rejectCount)

	final, err := chain.Get(ctx, m.MandateID)
	require.NoError(t, err)
	assert.Equal(t, schema.MandateApproved, final.Status)
	assert.Len(t, final.Approvals, 1)
}
