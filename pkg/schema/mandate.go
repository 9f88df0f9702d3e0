package schema

import "time"

// MandateType classifies a mandate within the authorization chain.
type MandateType string

const (
	MandateIntent       MandateType = "intent"
	MandateCart         MandateType = "cart"
	MandatePayment      MandateType = "payment"
	MandateApproval     MandateType = "approval"
	MandateCancellation MandateType = "cancellation"
)

// MandateStatus is the lifecycle state of a mandate.
type MandateStatus string

const (
	MandatePending   MandateStatus = "pending"
	MandateApproved  MandateStatus = "approved"
	MandateExecuted  MandateStatus = "executed"
	MandateExpired   MandateStatus = "expired"
	MandateCancelled MandateStatus = "cancelled"
	MandateRejected  MandateStatus = "rejected"
)

// TransactionDetail describes the monetary action a mandate authorizes.
type TransactionDetail struct {
	Amount    float64 `json:"amount,omitempty"`
	Currency  string  `json:"currency,omitempty"`
	Recipient string  `json:"recipient,omitempty"`
	Reference string  `json:"reference,omitempty"`
}

// HourWindow restricts execution to a daily interval of whole hours,
// inclusive of Start and exclusive of End.
type HourWindow struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Authorization bounds what the mandate permits and for how long.
type Authorization struct {
	MaxAmount        float64     `json:"max_amount,omitempty"`
	ValidFrom        *time.Time  `json:"valid_from,omitempty"`
	ExpiresAt        *time.Time  `json:"expires_at,omitempty"`
	Regions          []string    `json:"regions,omitempty"`
	Hours            *HourWindow `json:"hours,omitempty"`
	RequiresApproval bool        `json:"requires_approval"`
}

// MandateContent is the business payload sealed by the mandate hash.
type MandateContent struct {
	Intent        string             `json:"intent"`
	Transaction   *TransactionDetail `json:"transaction,omitempty"`
	Authorization Authorization      `json:"authorization"`
}

// Signature is a detached signature over the mandate hash. Keys and
// signature values are base64 encoded; public keys use PKIX DER.
type Signature struct {
	Algorithm string    `json:"algorithm"`
	KeyID     string    `json:"key_id,omitempty"`
	PublicKey string    `json:"public_key"`
	Value     string    `json:"signature"`
	Timestamp time.Time `json:"timestamp"`
}

// Cryptography holds the content hash and the signatures sealing it.
type Cryptography struct {
	Hash       string      `json:"hash"`
	Signatures []Signature `json:"signatures,omitempty"`
}

// ChainLink positions a mandate inside its chain.
type ChainLink struct {
	ChainID           string `json:"chain_id"`
	PreviousMandateID string `json:"previous_mandate_id,omitempty"`
	NextMandateID     string `json:"next_mandate_id,omitempty"`
	SequenceNumber    int    `json:"sequence_number"`
}

// Approval records a single human sign-off.
type Approval struct {
	ApproverID string    `json:"approver_id"`
	Role       string    `json:"role,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ExecutionRecord captures the one-shot consumption of a mandate.
type ExecutionRecord struct {
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	ExecutedBy string     `json:"executed_by,omitempty"`
	Result     string     `json:"result,omitempty"`
}

// Mandate is a signed, chain-linked authorization artifact. Transitions are
// pending -> approved -> executed, with expired, cancelled, and rejected as
// alternative terminal states.
type Mandate struct {
	MandateID    string          `json:"mandate_id"`
	Type         MandateType     `json:"type"`
	Content      MandateContent  `json:"content"`
	Cryptography Cryptography    `json:"cryptography"`
	Chain        ChainLink       `json:"chain"`
	Status       MandateStatus   `json:"status"`
	Approvals    []Approval      `json:"approvals,omitempty"`
	Execution    ExecutionRecord `json:"execution"`
	CreatedBy    string          `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Expired reports whether the mandate's authorization window has closed.
func (m *Mandate) Expired(now time.Time) bool {
	exp := m.Content.Authorization.ExpiresAt
	return exp != nil && now.After(*exp)
}

// Terminal reports whether the status admits no further transitions.
func (s MandateStatus) Terminal() bool {
	switch s {
	case MandateExecuted, MandateExpired, MandateCancelled, MandateRejected:
		return true
	}
	return false
}
