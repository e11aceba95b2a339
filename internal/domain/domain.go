package domain

// Bounty lifecycle statuses. Completed, cancelled and disputed are terminal.
const (
	StatusOpen      = "open"
	StatusAssigned  = "assigned"
	StatusSubmitted = "submitted"
	StatusCompleted = "completed"
	StatusDisputed  = "disputed"
	StatusCancelled = "cancelled"
)

// Token transfer kinds recorded in the ledger journal.
const (
	TransferMint          = "mint"
	TransferEscrowLock    = "escrow_lock"
	TransferEscrowRelease = "escrow_release"
	TransferEscrowRefund  = "escrow_refund"
)

type Bounty struct {
	ID                int64    `json:"id"`
	Company           string   `json:"company"`
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	RequiredSkills    []string `json:"required_skills"`
	PaymentAmount     int64    `json:"payment_amount"`
	PaymentAsset      string   `json:"payment_asset"`
	Status            string   `json:"status" enum:"open,assigned,submitted,completed,disputed,cancelled"`
	AssignedDeveloper *string  `json:"assigned_developer,omitempty"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
	Deadline          string   `json:"deadline,omitempty" format:"date-time"`
}

type DeveloperProfile struct {
	Developer         string   `json:"developer"`
	Skills            []string `json:"skills"`
	Bio               string   `json:"bio,omitempty"`
	CompletedBounties int      `json:"completed_bounties"`
	Rating            int      `json:"rating"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
	UpdatedAt         string   `json:"updated_at" format:"date-time"`
}

type Balance struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  int64  `json:"amount"`
}

type TokenTransfer struct {
	ID       int64  `json:"id"`
	Asset    string `json:"asset"`
	From     string `json:"from"`
	To       string `json:"to"`
	Amount   int64  `json:"amount"`
	Kind     string `json:"kind" enum:"mint,escrow_lock,escrow_release,escrow_refund"`
	BountyID *int64 `json:"bounty_id,omitempty"`
	TS       string `json:"ts" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
