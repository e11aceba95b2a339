package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"bountyboard/internal/config"
	"bountyboard/internal/db"
	"bountyboard/internal/domain"
	"bountyboard/internal/engine"
	"bountyboard/internal/engine/auth"
	"bountyboard/internal/migrate"
	"bountyboard/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) fund(t *testing.T, account string, amount int64) {
	t.Helper()
	issuer := env.Engine.Config.Platform.IssuerAccount
	if err := env.Engine.MintTokens(env.Ctx, issuer, account, "", amount); err != nil {
		t.Fatalf("mint %d to %s: %v", amount, account, err)
	}
}

func (env testEnv) balance(t *testing.T, account string) int64 {
	t.Helper()
	amount, err := env.Engine.Token.Balance(env.Ctx, account, env.Engine.Config.Platform.DefaultAsset)
	if err != nil {
		t.Fatalf("balance %s: %v", account, err)
	}
	return amount
}

func (env testEnv) register(t *testing.T, developer string, skills []string) {
	t.Helper()
	if _, err := env.Engine.RegisterDeveloper(env.Ctx, developer, developer, skills, ""); err != nil {
		t.Fatalf("register %s: %v", developer, err)
	}
}

func TestFundedBountyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	custody := env.Engine.Config.Platform.CustodyAccount
	env.fund(t, "acme", 1000)
	env.register(t, "dev-1", []string{"go", "sql"})

	b, err := env.Engine.CreateBounty(env.Ctx, "acme", engine.BountyCreateOptions{
		Company:       "acme",
		Title:         "Build importer",
		PaymentAmount: 400,
	})
	if err != nil {
		t.Fatalf("create bounty: %v", err)
	}
	if b.ID != 1 {
		t.Fatalf("first bounty id = %d, want 1", b.ID)
	}
	if b.Status != domain.StatusOpen {
		t.Fatalf("status = %s, want open", b.Status)
	}
	if got := env.balance(t, "acme"); got != 600 {
		t.Fatalf("company balance after escrow = %d, want 600", got)
	}
	if got := env.balance(t, custody); got != 400 {
		t.Fatalf("custody balance = %d, want 400", got)
	}

	if _, err := env.Engine.AssignBounty(env.Ctx, "dev-1", "dev-1", b.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := env.Engine.SubmitWork(env.Ctx, "dev-1", "dev-1", b.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	done, err := env.Engine.ApproveAndRelease(env.Ctx, "acme", b.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if done.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}
	if got := env.balance(t, "dev-1"); got != 400 {
		t.Fatalf("developer payout = %d, want 400", got)
	}
	if got := env.balance(t, custody); got != 0 {
		t.Fatalf("custody after release = %d, want 0", got)
	}
	// Conservation: everything minted is still held somewhere.
	total := env.balance(t, "acme") + env.balance(t, custody) + env.balance(t, "dev-1")
	if total != 1000 {
		t.Fatalf("total supply = %d, want 1000", total)
	}

	p, err := env.Engine.GetDeveloper(env.Ctx, "dev-1")
	if err != nil {
		t.Fatalf("get developer: %v", err)
	}
	if p.CompletedBounties != 1 {
		t.Fatalf("completed bounties = %d, want 1", p.CompletedBounties)
	}

	companyIDs, err := env.Engine.CompanyBounties(env.Ctx, "acme")
	if err != nil || len(companyIDs) != 1 || companyIDs[0] != b.ID {
		t.Fatalf("company index = %v (%v)", companyIDs, err)
	}
	devIDs, err := env.Engine.DeveloperBounties(env.Ctx, "dev-1")
	if err != nil || len(devIDs) != 1 || devIDs[0] != b.ID {
		t.Fatalf("developer index = %v (%v)", devIDs, err)
	}
}

func TestCreateBountyInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "acme", 100)

	_, err := env.Engine.CreateBounty(env.Ctx, "acme", engine.BountyCreateOptions{
		Company:       "acme",
		Title:         "Too expensive",
		PaymentAmount: 500,
	})
	var tfe auth.TransferFailedError
	if !errors.As(err, &tfe) {
		t.Fatalf("expected TransferFailedError, got %v", err)
	}
	// Nothing persisted and the counter did not move.
	if _, err := env.Engine.GetBounty(env.Ctx, 1); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	counter, err := env.Engine.Repo.BountyCounter(env.Ctx)
	if err != nil || counter != 0 {
		t.Fatalf("counter = %d (%v), want 0", counter, err)
	}
	if got := env.balance(t, "acme"); got != 100 {
		t.Fatalf("company balance = %d, want 100", got)
	}

	b, err := env.Engine.CreateBounty(env.Ctx, "acme", engine.BountyCreateOptions{
		Company:       "acme",
		Title:         "Affordable",
		PaymentAmount: 100,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.ID != 1 {
		t.Fatalf("id after failed attempt = %d, want 1", b.ID)
	}
}

func TestCancelRefundsEscrow(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "acme", 300)
	b, err := env.Engine.CreateBounty(env.Ctx, "acme", engine.BountyCreateOptions{
		Company: "acme", Title: "Short lived", PaymentAmount: 300,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cancelled, err := env.Engine.CancelBounty(env.Ctx, "acme", b.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
	if got := env.balance(t, "acme"); got != 300 {
		t.Fatalf("refunded balance = %d, want 300", got)
	}
	if got := env.balance(t, env.Engine.Config.Platform.CustodyAccount); got != 0 {
		t.Fatalf("custody = %d, want 0", got)
	}
}

func TestCancelAfterAssignRejected(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "acme", 200)
	env.register(t, "dev-1", nil)
	b, _ := env.Engine.CreateBounty(env.Ctx, "acme", engine.BountyCreateOptions{
		Company: "acme", Title: "Taken", PaymentAmount: 200,
	})
	if _, err := env.Engine.AssignBounty(env.Ctx, "dev-1", "dev-1", b.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	_, err := env.Engine.CancelBounty(env.Ctx, "acme", b.ID)
	var ise auth.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	if got := env.balance(t, env.Engine.Config.Platform.CustodyAccount); got != 200 {
		t.Fatalf("custody still holds escrow = %d, want 200", got)
	}
}

func TestSubmitByNonAssignedDeveloper(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "acme", 100)
	env.register(t, "dev-1", nil)
	env.register(t, "dev-2", nil)
	b, _ := env.Engine.CreateBounty(env.Ctx, "acme", engine.BountyCreateOptions{
		Company: "acme", Title: "Contested", PaymentAmount: 100,
	})
	if _, err := env.Engine.AssignBounty(env.Ctx, "dev-1", "dev-1", b.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	_, err := env.Engine.SubmitWork(env.Ctx, "dev-2", "dev-2", b.ID)
	var nae auth.NotAssignedError
	if !errors.As(err, &nae) {
		t.Fatalf("expected NotAssignedError, got %v", err)
	}
}

func TestAssignRequiresRegistration(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "acme", 100)
	b, _ := env.Engine.CreateBounty(env.Ctx, "acme", engine.BountyCreateOptions{
		Company: "acme", Title: "Open", PaymentAmount: 100,
	})
	_, err := env.Engine.AssignBounty(env.Ctx, "ghost", "ghost", b.ID)
	var nre auth.NotRegisteredError
	if !errors.As(err, &nre) {
		t.Fatalf("expected NotRegisteredError, got %v", err)
	}
}

func TestApproveByWrongCompany(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "acme", 100)
	env.register(t, "dev-1", nil)
	b, _ := env.Engine.CreateBounty(env.Ctx, "acme", engine.BountyCreateOptions{
		Company: "acme", Title: "Guarded", PaymentAmount: 100,
	})
	_, _ = env.Engine.AssignBounty(env.Ctx, "dev-1", "dev-1", b.ID)
	_, _ = env.Engine.SubmitWork(env.Ctx, "dev-1", "dev-1", b.ID)
	_, err := env.Engine.ApproveAndRelease(env.Ctx, "rival-corp", b.ID)
	var ue auth.UnauthorizedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
}

func TestDisputeTransitions(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "acme", 500)
	env.register(t, "dev-1", nil)

	// Company may dispute an open bounty.
	b1, _ := env.Engine.CreateBounty(env.Ctx, "acme", engine.BountyCreateOptions{
		Company: "acme", Title: "First", PaymentAmount: 100,
	})
	disputed, err := env.Engine.DisputeBounty(env.Ctx, "acme", b1.ID)
	if err != nil || disputed.Status != domain.StatusDisputed {
		t.Fatalf("dispute open: %v status=%s", err, disputed.Status)
	}

	// Assigned developer may dispute after submitting.
	b2, _ := env.Engine.CreateBounty(env.Ctx, "acme", engine.BountyCreateOptions{
		Company: "acme", Title: "Second", PaymentAmount: 100,
	})
	_, _ = env.Engine.AssignBounty(env.Ctx, "dev-1", "dev-1", b2.ID)
	_, _ = env.Engine.SubmitWork(env.Ctx, "dev-1", "dev-1", b2.ID)
	if _, err := env.Engine.DisputeBounty(env.Ctx, "dev-1", b2.ID); err != nil {
		t.Fatalf("dispute submitted: %v", err)
	}

	// Outsiders cannot dispute.
	b3, _ := env.Engine.CreateBounty(env.Ctx, "acme", engine.BountyCreateOptions{
		Company: "acme", Title: "Third", PaymentAmount: 100,
	})
	_, err = env.Engine.DisputeBounty(env.Ctx, "stranger", b3.ID)
	var ue auth.UnauthorizedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}

	// Terminal states reject further transitions.
	_, err = env.Engine.DisputeBounty(env.Ctx, "acme", b1.ID)
	var ise auth.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError on re-dispute, got %v", err)
	}
	_, err = env.Engine.AssignBounty(env.Ctx, "dev-1", "dev-1", b1.ID)
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError on assign of disputed, got %v", err)
	}
}

func completeBounty(t *testing.T, env testEnv, company, developer string, amount int64) domain.Bounty {
	t.Helper()
	b, err := env.Engine.CreateBounty(env.Ctx, company, engine.BountyCreateOptions{
		Company: company, Title: "Work", PaymentAmount: amount,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.Engine.AssignBounty(env.Ctx, developer, developer, b.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := env.Engine.SubmitWork(env.Ctx, developer, developer, b.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	done, err := env.Engine.ApproveAndRelease(env.Ctx, company, b.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	return done
}

func TestRatingRunningAverage(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "acme", 1000)
	env.register(t, "dev-1", nil)

	first := completeBounty(t, env, "acme", "dev-1", 100)
	p, err := env.Engine.RateDeveloper(env.Ctx, "acme", first.ID, 80)
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if p.Rating != 80 {
		t.Fatalf("first rating = %d, want 80", p.Rating)
	}

	second := completeBounty(t, env, "acme", "dev-1", 100)
	p, err = env.Engine.RateDeveloper(env.Ctx, "acme", second.ID, 100)
	if err != nil {
		t.Fatalf("rate second: %v", err)
	}
	// (80*1 + 100) / 2 with integer division.
	if p.Rating != 90 {
		t.Fatalf("blended rating = %d, want 90", p.Rating)
	}

	// Rating the same bounty again shifts the average further; the blend
	// has no memory of which bounty a sample came from.
	p, err = env.Engine.RateDeveloper(env.Ctx, "acme", second.ID, 100)
	if err != nil {
		t.Fatalf("repeat rate: %v", err)
	}
	if p.Rating != 95 {
		t.Fatalf("repeat-rating drift = %d, want 95", p.Rating)
	}
}

func TestRateDeveloperGuards(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "acme", 500)
	env.register(t, "dev-1", nil)
	b, _ := env.Engine.CreateBounty(env.Ctx, "acme", engine.BountyCreateOptions{
		Company: "acme", Title: "Unfinished", PaymentAmount: 100,
	})

	_, err := env.Engine.RateDeveloper(env.Ctx, "acme", b.ID, 50)
	var ise auth.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError for open bounty, got %v", err)
	}

	done := completeBounty(t, env, "acme", "dev-1", 100)
	if _, err := env.Engine.RateDeveloper(env.Ctx, "acme", done.ID, 101); err == nil {
		t.Fatalf("expected out of range error")
	}
	_, err = env.Engine.RateDeveloper(env.Ctx, "intruder", done.ID, 50)
	var ue auth.UnauthorizedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
}

func TestRegisterOverwriteResetsCounters(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "acme", 200)
	env.register(t, "dev-1", []string{"go"})

	done := completeBounty(t, env, "acme", "dev-1", 200)
	if _, err := env.Engine.RateDeveloper(env.Ctx, "acme", done.ID, 70); err != nil {
		t.Fatalf("rate: %v", err)
	}

	// Skills update keeps history intact.
	p, err := env.Engine.UpdateSkills(env.Ctx, "dev-1", "dev-1", []string{"go", "rust"})
	if err != nil {
		t.Fatalf("update skills: %v", err)
	}
	if p.CompletedBounties != 1 || p.Rating != 70 {
		t.Fatalf("skills update reset history: completed=%d rating=%d", p.CompletedBounties, p.Rating)
	}

	// Re-registration is a full overwrite.
	p, err = env.Engine.RegisterDeveloper(env.Ctx, "dev-1", "dev-1", []string{"zig"}, "fresh start")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if p.CompletedBounties != 0 || p.Rating != 0 {
		t.Fatalf("re-register kept history: completed=%d rating=%d", p.CompletedBounties, p.Rating)
	}
	if len(p.Skills) != 1 || p.Skills[0] != "zig" {
		t.Fatalf("skills = %v, want [zig]", p.Skills)
	}
}

func TestUpdateSkillsUnregistered(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.UpdateSkills(env.Ctx, "ghost", "ghost", []string{"go"})
	var nre auth.NotRegisteredError
	if !errors.As(err, &nre) {
		t.Fatalf("expected NotRegisteredError, got %v", err)
	}
}

func TestCallerMustBePrincipal(t *testing.T) {
	env := newTestEnv(t)
	var ue auth.UnauthorizedError

	_, err := env.Engine.RegisterDeveloper(env.Ctx, "mallory", "dev-1", nil, "")
	if !errors.As(err, &ue) {
		t.Fatalf("register: expected UnauthorizedError, got %v", err)
	}
	_, err = env.Engine.CreateBounty(env.Ctx, "mallory", engine.BountyCreateOptions{
		Company: "acme", Title: "Spoofed", PaymentAmount: 10,
	})
	if !errors.As(err, &ue) {
		t.Fatalf("create: expected UnauthorizedError, got %v", err)
	}
	err = env.Engine.MintTokens(env.Ctx, "mallory", "mallory", "", 1000)
	if !errors.As(err, &ue) {
		t.Fatalf("mint: expected UnauthorizedError, got %v", err)
	}
}

func TestPartyIndexesForUnknownParties(t *testing.T) {
	env := newTestEnv(t)
	ids, err := env.Engine.CompanyBounties(env.Ctx, "nobody")
	if err != nil {
		t.Fatalf("company bounties: %v", err)
	}
	if ids == nil || len(ids) != 0 {
		t.Fatalf("expected empty slice, got %v", ids)
	}
	ids, err = env.Engine.DeveloperBounties(env.Ctx, "nobody")
	if err != nil || len(ids) != 0 {
		t.Fatalf("developer bounties = %v (%v)", ids, err)
	}
}
