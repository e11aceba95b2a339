package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bountyboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func marshalStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func unmarshalStrings(payload string) []string {
	var v []string
	if payload != "" {
		_ = json.Unmarshal([]byte(payload), &v)
	}
	if v == nil {
		v = []string{}
	}
	return v
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

const bountyColumns = `id,company,title,COALESCE(description,'') AS description,required_skills_json,payment_amount,payment_asset,status,assigned_developer,created_at,COALESCE(deadline,'') AS deadline`

func scanBountyRow(scan func(dest ...any) error) (domain.Bounty, error) {
	var b domain.Bounty
	var skills string
	var assigned sql.NullString
	err := scan(&b.ID, &b.Company, &b.Title, &b.Description, &skills, &b.PaymentAmount, &b.PaymentAsset, &b.Status, &assigned, &b.CreatedAt, &b.Deadline)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	b.RequiredSkills = unmarshalStrings(skills)
	if assigned.Valid {
		b.AssignedDeveloper = &assigned.String
	}
	return b, nil
}

func (r Repo) GetBounty(ctx context.Context, id int64) (domain.Bounty, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+bountyColumns+` FROM bounties WHERE id=?`, id)
	return scanBountyRow(row.Scan)
}

func (r Repo) GetBountyTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Bounty, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+bountyColumns+` FROM bounties WHERE id=?`, id)
	return scanBountyRow(row.Scan)
}

func (r Repo) InsertBountyTx(ctx context.Context, tx *sql.Tx, b domain.Bounty) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO bounties(id,company,title,description,required_skills_json,payment_amount,payment_asset,status,assigned_developer,created_at,deadline)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		b.ID, b.Company, b.Title, nullable(b.Description), marshalStrings(b.RequiredSkills),
		b.PaymentAmount, b.PaymentAsset, b.Status, nullableStringPtr(b.AssignedDeveloper), b.CreatedAt, b.Deadline)
	return err
}

func (r Repo) UpdateBountyTx(ctx context.Context, tx *sql.Tx, b domain.Bounty) error {
	res, err := tx.ExecContext(ctx, `UPDATE bounties SET title=?, description=?, required_skills_json=?, payment_amount=?, payment_asset=?, status=?, assigned_developer=?, deadline=? WHERE id=?`,
		b.Title, nullable(b.Description), marshalStrings(b.RequiredSkills), b.PaymentAmount, b.PaymentAsset,
		b.Status, nullableStringPtr(b.AssignedDeveloper), b.Deadline, b.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// NextBountyIDTx advances the bounty counter and returns the new value.
// The first allocated id is 1.
func (r Repo) NextBountyIDTx(ctx context.Context, tx *sql.Tx) (int64, error) {
	if _, err := tx.ExecContext(ctx, `UPDATE bounty_counter SET value=value+1`); err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT value FROM bounty_counter`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) BountyCounter(ctx context.Context) (int64, error) {
	var v int64
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM bounty_counter`).Scan(&v)
	return v, err
}

func (r Repo) AppendCompanyBountyTx(ctx context.Context, tx *sql.Tx, company string, bountyID int64) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO company_bounties(company,bounty_id) VALUES (?,?)`, company, bountyID)
	return err
}

func (r Repo) AppendDeveloperBountyTx(ctx context.Context, tx *sql.Tx, developer string, bountyID int64) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO developer_bounties(developer,bounty_id) VALUES (?,?)`, developer, bountyID)
	return err
}

// CompanyBounties returns the ids of bounties posted by a company, in
// posting order. Unknown companies get an empty slice, not an error.
func (r Repo) CompanyBounties(ctx context.Context, company string) ([]int64, error) {
	return r.scanIndex(ctx, `SELECT bounty_id FROM company_bounties WHERE company=? ORDER BY id ASC`, company)
}

// DeveloperBounties returns the ids of bounties a developer has taken on,
// in assignment order. Unknown developers get an empty slice.
func (r Repo) DeveloperBounties(ctx context.Context, developer string) ([]int64, error) {
	return r.scanIndex(ctx, `SELECT bounty_id FROM developer_bounties WHERE developer=? ORDER BY id ASC`, developer)
}

func (r Repo) scanIndex(ctx context.Context, query, party string) ([]int64, error) {
	rows, err := r.DB.QueryContext(ctx, query, party)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type BountyFilters struct {
	Company   string
	Developer string
	Status    string
	Limit     int
	CursorID  int64
}

func (r Repo) ListBounties(ctx context.Context, f BountyFilters) ([]domain.Bounty, error) {
	var clauses []string
	var args []any
	if f.Company != "" {
		clauses = append(clauses, "company=?")
		args = append(args, f.Company)
	}
	if f.Developer != "" {
		clauses = append(clauses, "assigned_developer=?")
		args = append(args, f.Developer)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorID > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + bountyColumns + ` FROM bounties ` + where + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Bounty
	for rows.Next() {
		b, err := scanBountyRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

const profileColumns = `developer,skills_json,COALESCE(bio,'') AS bio,completed_bounties,rating,created_at,updated_at`

func scanProfileRow(scan func(dest ...any) error) (domain.DeveloperProfile, error) {
	var p domain.DeveloperProfile
	var skills string
	err := scan(&p.Developer, &skills, &p.Bio, &p.CompletedBounties, &p.Rating, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Skills = unmarshalStrings(skills)
	return p, nil
}

func (r Repo) GetProfile(ctx context.Context, developer string) (domain.DeveloperProfile, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM developer_profiles WHERE developer=?`, developer)
	return scanProfileRow(row.Scan)
}

func (r Repo) GetProfileTx(ctx context.Context, tx *sql.Tx, developer string) (domain.DeveloperProfile, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM developer_profiles WHERE developer=?`, developer)
	return scanProfileRow(row.Scan)
}

// UpsertProfileTx writes the full profile, replacing any existing row.
func (r Repo) UpsertProfileTx(ctx context.Context, tx *sql.Tx, p domain.DeveloperProfile) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO developer_profiles(developer,skills_json,bio,completed_bounties,rating,created_at,updated_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(developer) DO UPDATE SET skills_json=excluded.skills_json, bio=excluded.bio, completed_bounties=excluded.completed_bounties, rating=excluded.rating, updated_at=excluded.updated_at`,
		p.Developer, marshalStrings(p.Skills), nullable(p.Bio), p.CompletedBounties, p.Rating, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) UpdateProfileTx(ctx context.Context, tx *sql.Tx, p domain.DeveloperProfile) error {
	res, err := tx.ExecContext(ctx, `UPDATE developer_profiles SET skills_json=?, bio=?, completed_bounties=?, rating=?, updated_at=? WHERE developer=?`,
		marshalStrings(p.Skills), nullable(p.Bio), p.CompletedBounties, p.Rating, p.UpdatedAt, p.Developer)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListProfiles(ctx context.Context) ([]domain.DeveloperProfile, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+profileColumns+` FROM developer_profiles ORDER BY developer ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DeveloperProfile
	for rows.Next() {
		p, err := scanProfileRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}
