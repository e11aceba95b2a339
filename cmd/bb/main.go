package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bountyboard/internal/app"
	"bountyboard/internal/config"
	"bountyboard/internal/db"
	"bountyboard/internal/domain"
	"bountyboard/internal/engine"
	"bountyboard/internal/repo"
	"bountyboard/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bb",
	Short: "Bounty Board CLI",
	Long: `Bounty Board runs an escrow-backed bounty marketplace on a local ledger.
Core concepts:
- Workspace: your .bountyboard directory holding the SQLite database.
- Companies post bounties; the payment is locked in the custody account at creation.
- Developers register a profile, claim open bounties, and submit work for review.
- Approval releases the escrowed tokens to the developer; cancelling an open
  bounty refunds the company; disputes freeze the bounty for arbitration.
- Ratings: companies score completed work 0-100; the profile keeps a running average.
- Event log: every state change is recorded, view with 'bb log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BOUNTYBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(developerCmd())
	rootCmd.AddCommand(bountyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func developerCmd() *cobra.Command {
	dev := &cobra.Command{
		Use:   "developer",
		Short: "Manage developer profiles",
		Long:  "Developers register a profile with skills before they can claim bounties. Re-registering replaces the whole profile, ratings included.",
	}
	dev.AddCommand(developerRegisterCmd())
	dev.AddCommand(developerSkillsCmd())
	dev.AddCommand(developerShowCmd())
	dev.AddCommand(developerListCmd())
	dev.AddCommand(developerBountiesCmd())
	return dev
}

func developerRegisterCmd() *cobra.Command {
	var skills []string
	var bio string
	cmd := &cobra.Command{
		Use:   "register <developer>",
		Short: "Register or replace a developer profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			developer := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RegisterDeveloper(ctx, viper.GetString("actor-id"), developer, skills, bio)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringArrayVar(&skills, "skill", []string{}, "skill (repeatable)")
	cmd.Flags().StringVar(&bio, "bio", "", "short bio")
	return cmd
}

func developerSkillsCmd() *cobra.Command {
	var skills []string
	cmd := &cobra.Command{
		Use:   "skills <developer>",
		Short: "Replace the skill list of a registered developer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			developer := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateSkills(ctx, viper.GetString("actor-id"), developer, skills)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringArrayVar(&skills, "skill", []string{}, "skill (repeatable)")
	return cmd
}

func developerShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <developer>",
		Short: "Show a developer profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			developer := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetDeveloper(ctx, developer)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func developerListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List developer profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProfiles(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Developer", "Skills", "Completed", "Rating"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.Developer, strings.Join(p.Skills, ","), p.CompletedBounties, p.Rating})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func developerBountiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bounties <developer>",
		Short: "Bounties a developer has taken on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			developer := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ids, err := e.DeveloperBounties(ctx, developer)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"developer": developer, "bounty_ids": ids})
			})
		},
	}
	return cmd
}

func bountyCmd() *cobra.Command {
	bounty := &cobra.Command{
		Use:   "bounty",
		Short: "Manage bounties",
		Long:  "Bounties flow open -> assigned -> submitted -> completed. Open bounties can be cancelled for a refund; any live bounty can be disputed.",
	}
	bounty.AddCommand(bountyCreateCmd())
	bounty.AddCommand(bountyShowCmd())
	bounty.AddCommand(bountyListCmd())
	bounty.AddCommand(bountyAssignCmd())
	bounty.AddCommand(bountySubmitCmd())
	bounty.AddCommand(bountyApproveCmd())
	bounty.AddCommand(bountyCancelCmd())
	bounty.AddCommand(bountyDisputeCmd())
	bounty.AddCommand(bountyRateCmd())
	bounty.AddCommand(bountyTransfersCmd())
	bounty.AddCommand(bountyOfCompanyCmd())
	return bounty
}

func bountyCreateCmd() *cobra.Command {
	var opts engine.BountyCreateOptions
	var skills []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Post a bounty and lock the payment in escrow",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.RequiredSkills = skills
			if opts.Company == "" {
				opts.Company = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.CreateBounty(ctx, viper.GetString("actor-id"), opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Company, "company", "", "posting company (defaults to --actor-id)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringArrayVar(&skills, "skill", []string{}, "required skill (repeatable)")
	cmd.Flags().Int64Var(&opts.PaymentAmount, "amount", 0, "payment amount in tokens")
	cmd.Flags().StringVar(&opts.PaymentAsset, "asset", "", "payment asset (defaults to config)")
	cmd.Flags().StringVar(&opts.Deadline, "deadline", "", "deadline (RFC3339)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func bountyShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a bounty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBountyID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.GetBounty(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	return cmd
}

func bountyListCmd() *cobra.Command {
	var f repo.BountyFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bounties",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListBounties(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Company", "Title", "Amount", "Status", "Developer"})
				for _, b := range items {
					developer := ""
					if b.AssignedDeveloper != nil {
						developer = *b.AssignedDeveloper
					}
					tw.AppendRow(table.Row{b.ID, b.Company, b.Title, fmt.Sprintf("%d %s", b.PaymentAmount, b.PaymentAsset), b.Status, developer})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Company, "company", "", "company filter")
	cmd.Flags().StringVar(&f.Developer, "developer", "", "assigned developer filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func bountyAssignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Claim an open bounty as the calling developer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBountyID(args[0])
			if err != nil {
				return err
			}
			actor := viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.AssignBounty(ctx, actor, actor, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	return cmd
}

func bountySubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit work for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBountyID(args[0])
			if err != nil {
				return err
			}
			actor := viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.SubmitWork(ctx, actor, actor, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	return cmd
}

func bountyApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve submitted work and release the escrow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBountyID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.ApproveAndRelease(ctx, viper.GetString("actor-id"), id)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	return cmd
}

func bountyCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel an open bounty and refund the escrow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBountyID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.CancelBounty(ctx, viper.GetString("actor-id"), id)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	return cmd
}

func bountyDisputeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispute <id>",
		Short: "Freeze a bounty pending arbitration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBountyID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.DisputeBounty(ctx, viper.GetString("actor-id"), id)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	return cmd
}

func bountyRateCmd() *cobra.Command {
	var rating int
	cmd := &cobra.Command{
		Use:   "rate <id>",
		Short: "Rate the developer for completed work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBountyID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RateDeveloper(ctx, viper.GetString("actor-id"), id, rating)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().IntVar(&rating, "rating", 0, "score 0-100")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}

func bountyTransfersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfers <id>",
		Short: "Token movements for a bounty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBountyID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.GetBounty(ctx, id); err != nil {
					return err
				}
				items, err := e.Token.Transfers(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func bountyOfCompanyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "of-company <company>",
		Short: "Bounties a company has posted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			company := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ids, err := e.CompanyBounties(ctx, company)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"company": company, "bounty_ids": ids})
			})
		},
	}
	return cmd
}

func tokenCmd() *cobra.Command {
	tok := &cobra.Command{
		Use:   "token",
		Short: "Token ledger",
		Long:  "Inspect balances and issue tokens. Minting is restricted to the configured issuer account.",
	}
	tok.AddCommand(tokenMintCmd())
	tok.AddCommand(tokenBalanceCmd())
	return tok
}

func tokenMintCmd() *cobra.Command {
	var account, asset string
	var amount int64
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Issue tokens to an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if account == "" {
				return fmt.Errorf("--account required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.MintTokens(ctx, viper.GetString("actor-id"), account, asset, amount); err != nil {
					return err
				}
				balances, err := e.Token.Balances(ctx, account)
				if err != nil {
					return err
				}
				return printJSONOrTable(balances)
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "destination account")
	cmd.Flags().StringVar(&asset, "asset", "", "asset (defaults to config)")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func tokenBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance <account>",
		Short: "Show token balances of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				balances, err := e.Token.Balances(ctx, account)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(balances)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Account", "Asset", "Amount"})
				for _, b := range balances {
					tw.AppendRow(table.Row{b.Account, b.Asset, b.Amount})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect platform config",
		Long:  "Config names the custody and issuer accounts, the default asset, and the rating range. Stored in bountyboard.yml in the workspace.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default bountyboard.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The record of everything that happened: registrations, bounty transitions, token mints.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	keys := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  "API keys authenticate HTTP callers via the X-Api-Key header. Only the hash is stored; the secret is printed once at creation.",
	}
	keys.AddCommand(apikeyCreateCmd())
	keys.AddCommand(apikeyListCmd())
	keys.AddCommand(apikeyDeleteCmd())
	return keys
}

func apikeyCreateCmd() *cobra.Command {
	var actor, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				actor = viper.GetString("actor-id")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				secret := uuid.NewString()
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actor,
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"id":       key.ID,
					"actor_id": key.ActorID,
					"name":     key.Name,
					"key":      secret,
				})
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id (defaults to --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "filter by actor id")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, conn, err := app.OpenEngine(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer conn.Close()
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("BOUNTYBOARD_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" && !allowLegacy {
				return fmt.Errorf("BOUNTYBOARD_JWT_SECRET is required for bearer auth (or pass --allow-legacy-actor-header)")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Bounty Board API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-actor-header", false, "accept X-Actor-Id without credentials (dev only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	e, conn, err := app.OpenEngine(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	e, conn, err := app.OpenEngine(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e.Repo)
}

func parseBountyID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid bounty id %q", arg)
	}
	return id, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
