package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bountyboard/internal/domain"
	"bountyboard/internal/engine"
	"bountyboard/internal/engine/auth"
	"bountyboard/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_state"`
	Message string         `json:"message" example:"cannot cancel bounty in status assigned"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"status\":\"assigned\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Bounty Board API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Bounty Board API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerDevelopers(group, cfg.Engine)
	registerBounties(group, cfg.Engine)
	registerCompanies(group, cfg.Engine)
	registerTokens(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerMe(group)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ue auth.UnauthorizedError
	if errors.As(err, &ue) {
		return newAPIError(http.StatusForbidden, "unauthorized", err.Error(), map[string]any{"principal": ue.Principal})
	}
	var nae auth.NotAssignedError
	if errors.As(err, &nae) {
		return newAPIError(http.StatusForbidden, "not_assigned", err.Error(), map[string]any{"developer": nae.Developer, "bounty_id": nae.BountyID})
	}
	var nre auth.NotRegisteredError
	if errors.As(err, &nre) {
		return newAPIError(http.StatusUnprocessableEntity, "developer_not_registered", err.Error(), map[string]any{"developer": nre.Developer})
	}
	var ise auth.InvalidStateError
	if errors.As(err, &ise) {
		return newAPIError(http.StatusConflict, "invalid_state", err.Error(), map[string]any{"status": ise.Status})
	}
	var tfe auth.TransferFailedError
	if errors.As(err, &tfe) {
		return newAPIError(http.StatusUnprocessableEntity, "transfer_failed", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "out of range") || strings.Contains(lowered, "must be"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "invalid_state"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	devLoginPath := path.Join(basePath, "auth/dev/login")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	if !strings.HasPrefix(devLoginPath, "/") {
		devLoginPath = "/" + devLoginPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath || route == devLoginPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Bounty Board API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerDevelopers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-developer",
		Method:        http.MethodPost,
		Path:          "/developers",
		Summary:       "Register developer profile",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body RegisterDeveloperRequest `json:"body"`
	}) (*struct {
		Body DeveloperResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Developer == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "developer is required", nil)
		}
		caller, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.RegisterDeveloper(ctx, caller, input.Body.Developer, input.Body.Skills, stringOrEmpty(input.Body.Bio))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeveloperResponse `json:"body"`
		}{Body: developerResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-developer-skills",
		Method:      http.MethodPatch,
		Path:        "/developers/{developer}/skills",
		Summary:     "Replace developer skills",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Developer string              `path:"developer"`
		Body      UpdateSkillsRequest `json:"body"`
	}) (*struct {
		Body DeveloperResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		caller, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateSkills(ctx, caller, input.Developer, input.Body.Skills)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeveloperResponse `json:"body"`
		}{Body: developerResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-developer",
		Method:      http.MethodGet,
		Path:        "/developers/{developer}",
		Summary:     "Get developer profile",
		Errors:      []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Developer string `path:"developer"`
	}) (*struct {
		Body DeveloperResponse `json:"body"`
	}, error) {
		p, err := e.GetDeveloper(ctx, input.Developer)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeveloperResponse `json:"body"`
		}{Body: developerResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-developers",
		Method:      http.MethodGet,
		Path:        "/developers",
		Summary:     "List developer profiles",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []DeveloperResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListProfiles(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]DeveloperResponse, 0, len(items))
		for _, p := range items {
			res = append(res, developerResponse(p))
		}
		return &struct {
			Body []DeveloperResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "developer-bounties",
		Method:      http.MethodGet,
		Path:        "/developers/{developer}/bounties",
		Summary:     "Bounties a developer has taken on",
	}, func(ctx context.Context, input *struct {
		Developer string `path:"developer"`
	}) (*struct {
		Body BountyIndexResponse `json:"body"`
	}, error) {
		ids, err := e.DeveloperBounties(ctx, input.Developer)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BountyIndexResponse `json:"body"`
		}{Body: BountyIndexResponse{BountyIDs: ids}}, nil
	})
}

func registerBounties(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-bounty",
		Method:        http.MethodPost,
		Path:          "/bounties",
		Summary:       "Post a bounty with escrowed payment",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateBountyRequest `json:"body"`
	}) (*struct {
		Body BountyResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Company == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "company is required", nil)
		}
		caller, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.BountyCreateOptions{
			Company:        input.Body.Company,
			Title:          input.Body.Title,
			Description:    stringOrEmpty(input.Body.Description),
			RequiredSkills: input.Body.RequiredSkills,
			PaymentAmount:  input.Body.PaymentAmount,
			PaymentAsset:   stringOrEmpty(input.Body.PaymentAsset),
			Deadline:       stringOrEmpty(input.Body.Deadline),
		}
		b, err := e.CreateBounty(ctx, caller, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BountyResponse `json:"body"`
		}{Body: bountyResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-bounty",
		Method:      http.MethodGet,
		Path:        "/bounties/{id}",
		Summary:     "Get bounty",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body BountyResponse `json:"body"`
	}, error) {
		b, err := e.GetBounty(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BountyResponse `json:"body"`
		}{Body: bountyResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-bounties",
		Method:      http.MethodGet,
		Path:        "/bounties",
		Summary:     "List bounties",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Company   string `query:"company"`
		Developer string `query:"developer"`
		Status    string `query:"status" enum:",open,assigned,submitted,completed,disputed,cancelled"`
		Limit     int    `query:"limit" default:"50"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body paginatedBounties `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.ListBounties(ctx, repo.BountyFilters{
			Company:   input.Company,
			Developer: input.Developer,
			Status:    input.Status,
			Limit:     limit + 1,
			CursorID:  cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedBounties{Items: []BountyResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit].ID, 10)
			items = items[:limit]
		}
		for _, b := range items {
			resp.Items = append(resp.Items, bountyResponse(b))
		}
		return &struct {
			Body paginatedBounties `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-bounty",
		Method:      http.MethodPost,
		Path:        "/bounties/{id}/assign",
		Summary:     "Claim an open bounty",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64               `path:"id"`
		Body AssignBountyRequest `json:"body"`
	}) (*struct {
		Body BountyResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		caller, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.AssignBounty(ctx, caller, input.Body.Developer, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BountyResponse `json:"body"`
		}{Body: bountyResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-work",
		Method:      http.MethodPost,
		Path:        "/bounties/{id}/submit",
		Summary:     "Submit work for review",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64             `path:"id"`
		Body SubmitWorkRequest `json:"body"`
	}) (*struct {
		Body BountyResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		caller, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.SubmitWork(ctx, caller, input.Body.Developer, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BountyResponse `json:"body"`
		}{Body: bountyResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-bounty",
		Method:      http.MethodPost,
		Path:        "/bounties/{id}/approve",
		Summary:     "Approve submitted work and release escrow",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body BountyResponse `json:"body"`
	}, error) {
		caller, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.ApproveAndRelease(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BountyResponse `json:"body"`
		}{Body: bountyResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-bounty",
		Method:      http.MethodPost,
		Path:        "/bounties/{id}/cancel",
		Summary:     "Cancel an open bounty and refund escrow",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body BountyResponse `json:"body"`
	}, error) {
		caller, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.CancelBounty(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BountyResponse `json:"body"`
		}{Body: bountyResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dispute-bounty",
		Method:      http.MethodPost,
		Path:        "/bounties/{id}/dispute",
		Summary:     "Freeze a bounty pending arbitration",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body BountyResponse `json:"body"`
	}, error) {
		caller, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.DisputeBounty(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BountyResponse `json:"body"`
		}{Body: bountyResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rate-developer",
		Method:      http.MethodPost,
		Path:        "/bounties/{id}/rating",
		Summary:     "Rate the developer for completed work",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64                `path:"id"`
		Body RateDeveloperRequest `json:"body"`
	}) (*struct {
		Body DeveloperResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		caller, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.RateDeveloper(ctx, caller, input.ID, input.Body.Rating)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeveloperResponse `json:"body"`
		}{Body: developerResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "bounty-transfers",
		Method:      http.MethodGet,
		Path:        "/bounties/{id}/transfers",
		Summary:     "Token movements for a bounty",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body []TransferResponse `json:"body"`
	}, error) {
		if _, err := e.GetBounty(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Token.Transfers(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]TransferResponse, 0, len(items))
		for _, t := range items {
			res = append(res, transferResponse(t))
		}
		return &struct {
			Body []TransferResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerCompanies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "company-bounties",
		Method:      http.MethodGet,
		Path:        "/companies/{company}/bounties",
		Summary:     "Bounties a company has posted",
	}, func(ctx context.Context, input *struct {
		Company string `path:"company"`
	}) (*struct {
		Body BountyIndexResponse `json:"body"`
	}, error) {
		ids, err := e.CompanyBounties(ctx, input.Company)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BountyIndexResponse `json:"body"`
		}{Body: BountyIndexResponse{BountyIDs: ids}}, nil
	})
}

func registerTokens(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "account-balances",
		Method:      http.MethodGet,
		Path:        "/accounts/{account}/balances",
		Summary:     "Token balances of an account",
	}, func(ctx context.Context, input *struct {
		Account string `path:"account"`
	}) (*struct {
		Body []BalanceResponse `json:"body"`
	}, error) {
		items, err := e.Token.Balances(ctx, input.Account)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]BalanceResponse, 0, len(items))
		for _, b := range items {
			res = append(res, balanceResponse(b))
		}
		return &struct {
			Body []BalanceResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mint-tokens",
		Method:      http.MethodPost,
		Path:        "/tokens/mint",
		Summary:     "Issue tokens to an account",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body MintTokensRequest `json:"body"`
	}) (*struct{}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Account == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "account is required", nil)
		}
		caller, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.MintTokens(ctx, caller, input.Body.Account, stringOrEmpty(input.Body.Asset), input.Body.Amount); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:",bounty,developer,account"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		secret := uuid.NewString()
		key := domain.APIKey{
			ID:      uuid.NewString(),
			ActorID: input.Body.ActorID,
			Name:    stringOrEmpty(input.Body.Name),
			KeyHash: repo.HashAPIKey(secret),
		}
		if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
			return nil, handleError(err)
		}
		resp := apiKeyResponse(key)
		resp.Key = secret
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListAPIKeys(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]APIKeyResponse, 0, len(items))
		for _, k := range items {
			res = append(res, apiKeyResponse(k))
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.ActorID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{ActorID: p.ActorID, Source: p.Source}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
