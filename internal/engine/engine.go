package engine

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"bountyboard/internal/config"
	"bountyboard/internal/domain"
	"bountyboard/internal/engine/auth"
	"bountyboard/internal/events"
	"bountyboard/internal/repo"
	"bountyboard/internal/token"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Token  *token.Ledger
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Token:  token.New(db),
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) beginTx(ctx context.Context) (*sql.Tx, error) {
	return e.DB.BeginTx(ctx, nil)
}

func terminalStatus(status string) bool {
	switch status {
	case domain.StatusCompleted, domain.StatusDisputed, domain.StatusCancelled:
		return true
	}
	return false
}

// RegisterDeveloper creates or fully replaces a developer profile. A
// re-registration resets completed bounty count and rating along with
// skills and bio.
func (e Engine) RegisterDeveloper(ctx context.Context, caller, developer string, skills []string, bio string) (domain.DeveloperProfile, error) {
	if err := auth.RequireCaller(caller, developer); err != nil {
		return domain.DeveloperProfile{}, err
	}
	now := e.timestamp()
	p := domain.DeveloperProfile{
		Developer: developer,
		Skills:    skills,
		Bio:       bio,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.Skills == nil {
		p.Skills = []string{}
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.DeveloperProfile{}, err
	}
	defer tx.Rollback()

	evtType := "developer.registered"
	if existing, err := e.Repo.GetProfileTx(ctx, tx, developer); err == nil {
		p.CreatedAt = existing.CreatedAt
		evtType = "developer.reregistered"
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.DeveloperProfile{}, err
	}
	if err := e.Repo.UpsertProfileTx(ctx, tx, p); err != nil {
		return domain.DeveloperProfile{}, err
	}
	if err := e.Events.Append(ctx, tx, evtType, "developer", developer, caller, events.EventPayload{"skills": p.Skills}); err != nil {
		return domain.DeveloperProfile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DeveloperProfile{}, err
	}
	return p, nil
}

// UpdateSkills replaces the skill list of an existing profile. Rating
// and completed bounty count are untouched.
func (e Engine) UpdateSkills(ctx context.Context, caller, developer string, skills []string) (domain.DeveloperProfile, error) {
	if err := auth.RequireCaller(caller, developer); err != nil {
		return domain.DeveloperProfile{}, err
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.DeveloperProfile{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProfileTx(ctx, tx, developer)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.DeveloperProfile{}, auth.NotRegisteredError{Developer: developer}
	}
	if err != nil {
		return domain.DeveloperProfile{}, err
	}
	if skills == nil {
		skills = []string{}
	}
	p.Skills = skills
	p.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateProfileTx(ctx, tx, p); err != nil {
		return domain.DeveloperProfile{}, err
	}
	if err := e.Events.Append(ctx, tx, "developer.skills_updated", "developer", developer, caller, events.EventPayload{"skills": skills}); err != nil {
		return domain.DeveloperProfile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DeveloperProfile{}, err
	}
	return p, nil
}

// BountyCreateOptions are parameters for posting a bounty.
type BountyCreateOptions struct {
	Company        string
	Title          string
	Description    string
	RequiredSkills []string
	PaymentAmount  int64
	PaymentAsset   string
	Deadline       string
}

// CreateBounty posts a new bounty. Payment moves from the company into
// platform custody before anything is persisted; when the company cannot
// cover the amount nothing is written and the id counter does not move.
func (e Engine) CreateBounty(ctx context.Context, caller string, opts BountyCreateOptions) (domain.Bounty, error) {
	if err := auth.RequireCaller(caller, opts.Company); err != nil {
		return domain.Bounty{}, err
	}
	if e.Config == nil {
		return domain.Bounty{}, errors.New("config not loaded")
	}
	if opts.Title == "" {
		return domain.Bounty{}, errors.New("title is required")
	}
	if opts.PaymentAmount < 1 {
		return domain.Bounty{}, errors.New("payment amount must be at least 1")
	}
	asset := opts.PaymentAsset
	if asset == "" {
		asset = e.Config.Platform.DefaultAsset
	}
	if !e.Config.KnownAsset(asset) {
		return domain.Bounty{}, errors.New("invalid payment asset")
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.Bounty{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.NextBountyIDTx(ctx, tx)
	if err != nil {
		return domain.Bounty{}, err
	}
	if err := e.Token.Transfer(ctx, tx, asset, opts.Company, e.Config.Platform.CustodyAccount, opts.PaymentAmount, domain.TransferEscrowLock, &id); err != nil {
		return domain.Bounty{}, auth.TransferFailedError{Err: err}
	}
	b := domain.Bounty{
		ID:             id,
		Company:        opts.Company,
		Title:          opts.Title,
		Description:    opts.Description,
		RequiredSkills: opts.RequiredSkills,
		PaymentAmount:  opts.PaymentAmount,
		PaymentAsset:   asset,
		Status:         domain.StatusOpen,
		CreatedAt:      e.timestamp(),
		Deadline:       opts.Deadline,
	}
	if b.RequiredSkills == nil {
		b.RequiredSkills = []string{}
	}
	if err := e.Repo.InsertBountyTx(ctx, tx, b); err != nil {
		return domain.Bounty{}, err
	}
	if err := e.Repo.AppendCompanyBountyTx(ctx, tx, b.Company, b.ID); err != nil {
		return domain.Bounty{}, err
	}
	if err := e.appendBountyEvent(ctx, tx, "bounty.created", b.ID, caller, events.EventPayload{
		"title":  b.Title,
		"amount": b.PaymentAmount,
		"asset":  b.PaymentAsset,
	}); err != nil {
		return domain.Bounty{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bounty{}, err
	}
	return b, nil
}

// AssignBounty lets a registered developer claim an open bounty.
func (e Engine) AssignBounty(ctx context.Context, caller, developer string, bountyID int64) (domain.Bounty, error) {
	if err := auth.RequireCaller(caller, developer); err != nil {
		return domain.Bounty{}, err
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.Bounty{}, err
	}
	defer tx.Rollback()

	b, err := e.Repo.GetBountyTx(ctx, tx, bountyID)
	if err != nil {
		return domain.Bounty{}, err
	}
	if b.Status != domain.StatusOpen {
		return domain.Bounty{}, auth.InvalidStateError{Op: "assign", Status: b.Status}
	}
	if _, err := e.Repo.GetProfileTx(ctx, tx, developer); errors.Is(err, repo.ErrNotFound) {
		return domain.Bounty{}, auth.NotRegisteredError{Developer: developer}
	} else if err != nil {
		return domain.Bounty{}, err
	}
	b.AssignedDeveloper = &developer
	b.Status = domain.StatusAssigned
	if err := e.Repo.UpdateBountyTx(ctx, tx, b); err != nil {
		return domain.Bounty{}, err
	}
	if err := e.Repo.AppendDeveloperBountyTx(ctx, tx, developer, bountyID); err != nil {
		return domain.Bounty{}, err
	}
	if err := e.appendBountyEvent(ctx, tx, "bounty.assigned", bountyID, caller, events.EventPayload{"developer": developer}); err != nil {
		return domain.Bounty{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bounty{}, err
	}
	return b, nil
}

// SubmitWork marks an assigned bounty as submitted for review. Only the
// assigned developer may submit; the assignment check runs before the
// status check so a stranger poking a submitted bounty sees the
// assignment error, not the state one.
func (e Engine) SubmitWork(ctx context.Context, caller, developer string, bountyID int64) (domain.Bounty, error) {
	if err := auth.RequireCaller(caller, developer); err != nil {
		return domain.Bounty{}, err
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.Bounty{}, err
	}
	defer tx.Rollback()

	b, err := e.Repo.GetBountyTx(ctx, tx, bountyID)
	if err != nil {
		return domain.Bounty{}, err
	}
	if b.AssignedDeveloper == nil || *b.AssignedDeveloper != developer {
		return domain.Bounty{}, auth.NotAssignedError{Developer: developer, BountyID: bountyID}
	}
	if b.Status != domain.StatusAssigned {
		return domain.Bounty{}, auth.InvalidStateError{Op: "submit", Status: b.Status}
	}
	b.Status = domain.StatusSubmitted
	if err := e.Repo.UpdateBountyTx(ctx, tx, b); err != nil {
		return domain.Bounty{}, err
	}
	if err := e.appendBountyEvent(ctx, tx, "bounty.submitted", bountyID, caller, events.EventPayload{"developer": developer}); err != nil {
		return domain.Bounty{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bounty{}, err
	}
	return b, nil
}

// ApproveAndRelease accepts submitted work. Escrow moves from custody to
// the developer first; only once the transfer succeeds does the bounty
// flip to completed and the developer's completed count advance. Failure
// anywhere rolls back the lot.
func (e Engine) ApproveAndRelease(ctx context.Context, caller string, bountyID int64) (domain.Bounty, error) {
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.Bounty{}, err
	}
	defer tx.Rollback()

	b, err := e.Repo.GetBountyTx(ctx, tx, bountyID)
	if err != nil {
		return domain.Bounty{}, err
	}
	if err := auth.RequireCaller(caller, b.Company); err != nil {
		return domain.Bounty{}, err
	}
	if b.Status != domain.StatusSubmitted {
		return domain.Bounty{}, auth.InvalidStateError{Op: "approve", Status: b.Status}
	}
	if b.AssignedDeveloper == nil {
		return domain.Bounty{}, auth.InvalidStateError{Op: "approve", Status: b.Status}
	}
	developer := *b.AssignedDeveloper
	if err := e.Token.Transfer(ctx, tx, b.PaymentAsset, e.Config.Platform.CustodyAccount, developer, b.PaymentAmount, domain.TransferEscrowRelease, &bountyID); err != nil {
		return domain.Bounty{}, auth.TransferFailedError{Err: err}
	}
	b.Status = domain.StatusCompleted
	if err := e.Repo.UpdateBountyTx(ctx, tx, b); err != nil {
		return domain.Bounty{}, err
	}
	p, err := e.Repo.GetProfileTx(ctx, tx, developer)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Bounty{}, auth.NotRegisteredError{Developer: developer}
	}
	if err != nil {
		return domain.Bounty{}, err
	}
	p.CompletedBounties++
	p.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateProfileTx(ctx, tx, p); err != nil {
		return domain.Bounty{}, err
	}
	if err := e.appendBountyEvent(ctx, tx, "bounty.completed", bountyID, caller, events.EventPayload{
		"developer": developer,
		"amount":    b.PaymentAmount,
		"asset":     b.PaymentAsset,
	}); err != nil {
		return domain.Bounty{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bounty{}, err
	}
	return b, nil
}

// CancelBounty withdraws an open bounty and refunds the escrowed payment
// to the company. Bounties with an assignee cannot be cancelled.
func (e Engine) CancelBounty(ctx context.Context, caller string, bountyID int64) (domain.Bounty, error) {
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.Bounty{}, err
	}
	defer tx.Rollback()

	b, err := e.Repo.GetBountyTx(ctx, tx, bountyID)
	if err != nil {
		return domain.Bounty{}, err
	}
	if err := auth.RequireCaller(caller, b.Company); err != nil {
		return domain.Bounty{}, err
	}
	if b.Status != domain.StatusOpen {
		return domain.Bounty{}, auth.InvalidStateError{Op: "cancel", Status: b.Status}
	}
	if err := e.Token.Transfer(ctx, tx, b.PaymentAsset, e.Config.Platform.CustodyAccount, b.Company, b.PaymentAmount, domain.TransferEscrowRefund, &bountyID); err != nil {
		return domain.Bounty{}, auth.TransferFailedError{Err: err}
	}
	b.Status = domain.StatusCancelled
	if err := e.Repo.UpdateBountyTx(ctx, tx, b); err != nil {
		return domain.Bounty{}, err
	}
	if err := e.appendBountyEvent(ctx, tx, "bounty.cancelled", bountyID, caller, events.EventPayload{
		"refund": b.PaymentAmount,
		"asset":  b.PaymentAsset,
	}); err != nil {
		return domain.Bounty{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bounty{}, err
	}
	return b, nil
}

// DisputeBounty freezes a bounty pending off-platform arbitration. Either
// the posting company or the assigned developer may raise it, from any
// non-terminal status. Escrow stays in custody.
func (e Engine) DisputeBounty(ctx context.Context, caller string, bountyID int64) (domain.Bounty, error) {
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.Bounty{}, err
	}
	defer tx.Rollback()

	b, err := e.Repo.GetBountyTx(ctx, tx, bountyID)
	if err != nil {
		return domain.Bounty{}, err
	}
	party := caller == b.Company ||
		(b.AssignedDeveloper != nil && caller == *b.AssignedDeveloper)
	if caller == "" || !party {
		return domain.Bounty{}, auth.UnauthorizedError{Principal: b.Company}
	}
	if terminalStatus(b.Status) {
		return domain.Bounty{}, auth.InvalidStateError{Op: "dispute", Status: b.Status}
	}
	from := b.Status
	b.Status = domain.StatusDisputed
	if err := e.Repo.UpdateBountyTx(ctx, tx, b); err != nil {
		return domain.Bounty{}, err
	}
	if err := e.appendBountyEvent(ctx, tx, "bounty.disputed", bountyID, caller, events.EventPayload{"from": from}); err != nil {
		return domain.Bounty{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bounty{}, err
	}
	return b, nil
}

// RateDeveloper records the company's rating for completed work. The new
// rating blends into the running average weighted by the developer's
// completed bounty count. Rating the same bounty twice shifts the
// average again; callers are expected to rate once.
func (e Engine) RateDeveloper(ctx context.Context, caller string, bountyID int64, rating int) (domain.DeveloperProfile, error) {
	if e.Config == nil {
		return domain.DeveloperProfile{}, errors.New("config not loaded")
	}
	if rating < e.Config.Ratings.Min || rating > e.Config.Ratings.Max {
		return domain.DeveloperProfile{}, errors.New("rating out of range")
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.DeveloperProfile{}, err
	}
	defer tx.Rollback()

	b, err := e.Repo.GetBountyTx(ctx, tx, bountyID)
	if err != nil {
		return domain.DeveloperProfile{}, err
	}
	if err := auth.RequireCaller(caller, b.Company); err != nil {
		return domain.DeveloperProfile{}, err
	}
	if b.Status != domain.StatusCompleted || b.AssignedDeveloper == nil {
		return domain.DeveloperProfile{}, auth.InvalidStateError{Op: "rate", Status: b.Status}
	}
	developer := *b.AssignedDeveloper
	p, err := e.Repo.GetProfileTx(ctx, tx, developer)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.DeveloperProfile{}, auth.NotRegisteredError{Developer: developer}
	}
	if err != nil {
		return domain.DeveloperProfile{}, err
	}
	p.Rating = blendRating(p.Rating, rating, p.CompletedBounties)
	p.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateProfileTx(ctx, tx, p); err != nil {
		return domain.DeveloperProfile{}, err
	}
	if err := e.Events.Append(ctx, tx, "developer.rated", "developer", developer, caller, events.EventPayload{
		"bounty_id": bountyID,
		"sample":    rating,
		"rating":    p.Rating,
	}); err != nil {
		return domain.DeveloperProfile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DeveloperProfile{}, err
	}
	return p, nil
}

// blendRating folds a new sample into the running average using the
// completed bounty count as the weight. A count of zero or one makes the
// sample the whole rating.
func blendRating(current, sample, completed int) int {
	if completed <= 0 {
		return sample
	}
	return (current*(completed-1) + sample) / completed
}

// MintTokens issues new tokens to an account. Only the configured issuer
// account may call it.
func (e Engine) MintTokens(ctx context.Context, caller, account, asset string, amount int64) error {
	if e.Config == nil {
		return errors.New("config not loaded")
	}
	if err := auth.RequireCaller(caller, e.Config.Platform.IssuerAccount); err != nil {
		return err
	}
	if asset == "" {
		asset = e.Config.Platform.DefaultAsset
	}
	if !e.Config.KnownAsset(asset) {
		return errors.New("invalid asset")
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Token.Mint(ctx, tx, asset, caller, account, amount); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "token.minted", "account", account, caller, events.EventPayload{
		"asset":  asset,
		"amount": amount,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// GetBounty returns a bounty by id.
func (e Engine) GetBounty(ctx context.Context, id int64) (domain.Bounty, error) {
	return e.Repo.GetBounty(ctx, id)
}

// GetDeveloper returns a developer profile.
func (e Engine) GetDeveloper(ctx context.Context, developer string) (domain.DeveloperProfile, error) {
	p, err := e.Repo.GetProfile(ctx, developer)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.DeveloperProfile{}, auth.NotRegisteredError{Developer: developer}
	}
	return p, err
}

// CompanyBounties returns the ids of bounties a company has posted.
func (e Engine) CompanyBounties(ctx context.Context, company string) ([]int64, error) {
	return e.Repo.CompanyBounties(ctx, company)
}

// DeveloperBounties returns the ids of bounties a developer has taken on.
func (e Engine) DeveloperBounties(ctx context.Context, developer string) ([]int64, error) {
	return e.Repo.DeveloperBounties(ctx, developer)
}

func (e Engine) appendBountyEvent(ctx context.Context, tx *sql.Tx, evtType string, bountyID int64, actorID string, payload events.EventPayload) error {
	return e.Events.Append(ctx, tx, evtType, "bounty", strconv.FormatInt(bountyID, 10), actorID, payload)
}
