package server

import (
	"encoding/json"

	"bountyboard/internal/domain"
)

// Request payloads

type RegisterDeveloperRequest struct {
	Developer string   `json:"developer"`
	Skills    []string `json:"skills,omitempty"`
	Bio       *string  `json:"bio,omitempty"`
}

type UpdateSkillsRequest struct {
	Skills []string `json:"skills"`
}

type CreateBountyRequest struct {
	Company        string   `json:"company"`
	Title          string   `json:"title"`
	Description    *string  `json:"description,omitempty"`
	RequiredSkills []string `json:"required_skills,omitempty"`
	PaymentAmount  int64    `json:"payment_amount"`
	PaymentAsset   *string  `json:"payment_asset,omitempty"`
	Deadline       *string  `json:"deadline,omitempty" format:"date-time"`
}

type AssignBountyRequest struct {
	Developer string `json:"developer"`
}

type SubmitWorkRequest struct {
	Developer string `json:"developer"`
}

type RateDeveloperRequest struct {
	Rating int `json:"rating"`
}

type MintTokensRequest struct {
	Account string  `json:"account"`
	Asset   *string `json:"asset,omitempty"`
	Amount  int64   `json:"amount"`
}

type CreateAPIKeyRequest struct {
	ActorID string  `json:"actor_id"`
	Name    *string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type BountyResponse struct {
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
	Deadline          string   `json:"deadline,omitempty"`
}

type DeveloperResponse struct {
	Developer         string   `json:"developer"`
	Skills            []string `json:"skills"`
	Bio               string   `json:"bio,omitempty"`
	CompletedBounties int      `json:"completed_bounties"`
	Rating            int      `json:"rating"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
	UpdatedAt         string   `json:"updated_at" format:"date-time"`
}

type BountyIndexResponse struct {
	BountyIDs []int64 `json:"bounty_ids"`
}

type BalanceResponse struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  int64  `json:"amount"`
}

type TransferResponse struct {
	ID       int64  `json:"id"`
	Asset    string `json:"asset"`
	From     string `json:"from"`
	To       string `json:"to"`
	Amount   int64  `json:"amount"`
	Kind     string `json:"kind"`
	BountyID *int64 `json:"bounty_id,omitempty"`
	TS       string `json:"ts" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	Key       string `json:"key,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Source  string `json:"source"`
}

type paginatedBounties struct {
	Items      []BountyResponse `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func bountyResponse(b domain.Bounty) BountyResponse {
	return BountyResponse{
		ID:                b.ID,
		Company:           b.Company,
		Title:             b.Title,
		Description:       b.Description,
		RequiredSkills:    nonNilSlice(b.RequiredSkills),
		PaymentAmount:     b.PaymentAmount,
		PaymentAsset:      b.PaymentAsset,
		Status:            b.Status,
		AssignedDeveloper: b.AssignedDeveloper,
		CreatedAt:         b.CreatedAt,
		Deadline:          b.Deadline,
	}
}

func developerResponse(p domain.DeveloperProfile) DeveloperResponse {
	return DeveloperResponse{
		Developer:         p.Developer,
		Skills:            nonNilSlice(p.Skills),
		Bio:               p.Bio,
		CompletedBounties: p.CompletedBounties,
		Rating:            p.Rating,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func balanceResponse(b domain.Balance) BalanceResponse {
	return BalanceResponse{Account: b.Account, Asset: b.Asset, Amount: b.Amount}
}

func transferResponse(t domain.TokenTransfer) TransferResponse {
	return TransferResponse{
		ID:       t.ID,
		Asset:    t.Asset,
		From:     t.From,
		To:       t.To,
		Amount:   t.Amount,
		Kind:     t.Kind,
		BountyID: t.BountyID,
		TS:       t.TS,
	}
}

func eventResponse(e domain.Event) EventResponse {
	resp := EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
	}
	if e.Payload != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(e.Payload), &payload); err == nil {
			resp.Payload = payload
		}
	}
	return resp
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Name: k.Name, CreatedAt: k.CreatedAt}
}

func nonNilSlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
