package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/karras2025-collab/it-freelance-exchange/internal/app"
	"github.com/karras2025-collab/it-freelance-exchange/internal/config"
	"github.com/karras2025-collab/it-freelance-exchange/internal/db"
	"github.com/karras2025-collab/it-freelance-exchange/internal/domain"
	"github.com/karras2025-collab/it-freelance-exchange/internal/engine"
	"github.com/karras2025-collab/it-freelance-exchange/internal/repo"
	"github.com/karras2025-collab/it-freelance-exchange/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "fx",
	Short: "IT freelance exchange CLI",
	Long: `fx runs a freelance exchange: clients post jobs, freelancers respond
with offers, accepted offers become deals with a private chat channel.
Subscription plans gate what a freelancer can do each ISO week:
- FREE caps offers at 3 per week and has no chat.
- PRO removes the weekly cap.
- PREMIUM removes the cap and unlocks chat on active deals.
State lives in the .fx workspace directory; the same engine backs both
the CLI and 'fx serve'.`,
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
	viper.SetEnvPrefix("FX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(quotaCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(offerCmd())
	rootCmd.AddCommand(dealCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func actorFlag() (string, error) {
	actorID := strings.TrimSpace(viper.GetString("actor-id"))
	if actorID == "" {
		return "", fmt.Errorf("--actor-id required (or set FX_ACTOR_ID)")
	}
	return actorID, nil
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default exchange.yml into the workspace",
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
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSON(e.Config)
			})
		},
	})
	return cfg
}

func planCmd() *cobra.Command {
	plan := &cobra.Command{Use: "plan", Short: "Plan catalog and subscriptions"}
	plan.AddCommand(planListCmd())
	plan.AddCommand(planSubscribeCmd())
	return plan
}

func planListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List subscription plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				plans := e.Catalog.Plans()
				if viper.GetBool("json") {
					return printJSON(plans)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Price/mo", "Weekly offers", "Chat"})
				for _, p := range plans {
					offers := "unlimited"
					if p.WeeklyOfferCap != nil {
						offers = fmt.Sprintf("%d", *p.WeeklyOfferCap)
					}
					chat := "no"
					if p.ChatEnabled {
						chat = "yes"
					}
					tw.AppendRow(table.Row{p.ID, p.Name, fmt.Sprintf("%d %s", p.PriceMonthly, p.Currency), offers, chat})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func planSubscribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe <plan-id>",
		Short: "Move the acting freelancer onto a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := actorFlag()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sub, err := e.ChangeSubscription(ctx, actorID, strings.ToUpper(args[0]))
				if err != nil {
					return err
				}
				return printJSON(sub)
			})
		},
	}
	return cmd
}

func actorCmd() *cobra.Command {
	actor := &cobra.Command{Use: "actor", Short: "Manage actors"}
	actor.AddCommand(actorCreateCmd())
	actor.AddCommand(actorShowCmd())
	actor.AddCommand(actorListCmd())
	return actor
}

func actorCreateCmd() *cobra.Command {
	var id, role, name, email, company, plan string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RegisterActor(ctx, engine.ActorCreateOptions{
					ID:          id,
					Role:        domain.Role(strings.ToUpper(role)),
					DisplayName: name,
					Email:       email,
					Company:     company,
					PlanID:      strings.ToUpper(plan),
				})
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "actor id (generated when empty)")
	cmd.Flags().StringVar(&role, "role", "", "CLIENT or FREELANCER")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&company, "company", "", "company")
	cmd.Flags().StringVar(&plan, "plan", "", "initial plan for freelancers")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func actorShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetActor(ctx, args[0])
				if err != nil {
					return err
				}
				out := struct {
					domain.Actor
					Subscription *domain.Subscription `json:"subscription,omitempty"`
				}{Actor: a}
				if a.Role == domain.RoleFreelancer {
					sub, err := e.Repo.GetSubscription(ctx, a.ID)
					if err != nil && !errors.Is(err, repo.ErrNotFound) {
						return err
					}
					if err == nil {
						out.Subscription = &sub
					}
				}
				return printJSON(out)
			})
		},
	}
}

func actorListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListActors(ctx, domain.Role(strings.ToUpper(role)))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Role", "Name", "Company"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Role, a.DisplayName, a.Company})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "filter by role")
	return cmd
}

func quotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show the acting actor's entitlement for this week",
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := actorFlag()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ent, err := e.ResolveEntitlement(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ent)
				}
				remaining := "unlimited"
				if ent.RemainingOffers != nil {
					remaining = fmt.Sprintf("%d", *ent.RemainingOffers)
				}
				chat := "no"
				if ent.HasMessaging {
					chat = "yes"
				}
				fmt.Printf("plan: %s\nremaining offers: %s\nchat: %s\n", ent.PlanID, remaining, chat)
				return nil
			})
		},
	}
}

func jobCmd() *cobra.Command {
	job := &cobra.Command{Use: "job", Short: "Manage jobs"}
	job.AddCommand(jobCreateCmd())
	job.AddCommand(jobListCmd())
	job.AddCommand(jobShowCmd())
	job.AddCommand(jobStatusCmd("publish", domain.JobPublished, "Publish a draft or paused job"))
	job.AddCommand(jobStatusCmd("pause", domain.JobPaused, "Pause a published job"))
	job.AddCommand(jobStatusCmd("close", domain.JobClosed, "Close a job permanently"))
	return job
}

func jobCreateCmd() *cobra.Command {
	var title, description, category, budgetType, budgetValue, deadline string
	var skills []string
	var draft bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Post a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := actorFlag()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.CreateJob(ctx, engine.JobCreateOptions{
					ClientID:    actorID,
					Title:       title,
					Description: description,
					Category:    category,
					Skills:      skills,
					BudgetType:  strings.ToUpper(budgetType),
					BudgetValue: budgetValue,
					Deadline:    deadline,
					Draft:       draft,
				})
				if err != nil {
					return err
				}
				return printJSON(j)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "job title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringSliceVar(&skills, "skills", nil, "required skills")
	cmd.Flags().StringVar(&budgetType, "budget-type", "", "FIXED, HOURLY or DISCUSS")
	cmd.Flags().StringVar(&budgetValue, "budget-value", "", "budget amount or range")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC3339)")
	cmd.Flags().BoolVar(&draft, "draft", false, "create as draft instead of publishing")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func jobListCmd() *cobra.Command {
	var f repo.JobFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				jobs, err := e.ListJobs(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Category", "Budget", "Status", "Offers"})
				for _, j := range jobs {
					budget := j.BudgetType
					if j.BudgetValue != "" {
						budget = fmt.Sprintf("%s %s", j.BudgetType, j.BudgetValue)
					}
					tw.AppendRow(table.Row{j.ID, j.Title, j.Category, budget, j.Status, j.OfferCount})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().StringVar(&f.ClientID, "client", "", "client filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func jobShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.GetJob(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(j)
			})
		},
	}
}

func jobStatusCmd(use, status, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := actorFlag()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.SetJobStatus(ctx, args[0], status, actorID)
				if err != nil {
					return err
				}
				return printJSON(j)
			})
		},
	}
}

func offerCmd() *cobra.Command {
	offer := &cobra.Command{Use: "offer", Short: "Manage offers"}
	offer.AddCommand(offerSendCmd())
	offer.AddCommand(offerListCmd())
	offer.AddCommand(offerActionCmd("view", "Mark an offer viewed", func(ctx context.Context, e engine.Engine, id, actor string) (any, error) {
		return e.MarkOfferViewed(ctx, id, actor)
	}))
	offer.AddCommand(offerActionCmd("accept", "Accept an offer, creating a deal", func(ctx context.Context, e engine.Engine, id, actor string) (any, error) {
		return e.AcceptOffer(ctx, id, actor)
	}))
	offer.AddCommand(offerActionCmd("reject", "Reject an offer", func(ctx context.Context, e engine.Engine, id, actor string) (any, error) {
		return e.RejectOffer(ctx, id, actor)
	}))
	return offer
}

func offerSendCmd() *cobra.Command {
	var jobID, price, eta, message string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Submit an offer on a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := actorFlag()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.SubmitOffer(ctx, engine.OfferSubmitOptions{
					JobID:        jobID,
					FreelancerID: actorID,
					Price:        price,
					ETA:          eta,
					Message:      message,
				})
				if err != nil {
					return err
				}
				return printJSON(o)
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id")
	cmd.Flags().StringVar(&price, "price", "", "proposed price")
	cmd.Flags().StringVar(&eta, "eta", "", "estimated delivery")
	cmd.Flags().StringVar(&message, "message", "", "cover message")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func offerListCmd() *cobra.Command {
	var jobID string
	var mine bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List offers for a job you own, or your own with --mine",
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := actorFlag()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var offers []domain.Offer
				var err error
				switch {
				case mine:
					offers, err = e.ListOffersForFreelancer(ctx, actorID)
				case jobID != "":
					offers, err = e.ListOffersForJob(ctx, jobID, actorID)
				default:
					return fmt.Errorf("--job or --mine required")
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(offers)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Job", "Freelancer", "Price", "Status"})
				for _, o := range offers {
					tw.AppendRow(table.Row{o.ID, o.JobID, o.FreelancerID, o.Price, o.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id")
	cmd.Flags().BoolVar(&mine, "mine", false, "list the acting freelancer's offers")
	return cmd
}

func offerActionCmd(use, short string, fn func(context.Context, engine.Engine, string, string) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := actorFlag()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				out, err := fn(ctx, e, args[0], actorID)
				if err != nil {
					return err
				}
				return printJSON(out)
			})
		},
	}
}

func dealCmd() *cobra.Command {
	deal := &cobra.Command{Use: "deal", Short: "Manage deals"}
	deal.AddCommand(dealListCmd())
	deal.AddCommand(dealShowCmd())
	deal.AddCommand(dealStatusCmd("complete", domain.DealCompleted, "Mark a deal completed"))
	deal.AddCommand(dealStatusCmd("cancel", domain.DealCancelled, "Cancel a deal"))
	return deal
}

func dealListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the acting actor's deals",
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := actorFlag()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				deals, err := e.ListDealsForActor(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(deals)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Job", "Client", "Freelancer", "Status"})
				for _, d := range deals {
					tw.AppendRow(table.Row{d.ID, d.JobID, d.ClientID, d.FreelancerID, d.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func dealShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a deal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := actorFlag()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.GetDeal(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}
}

func dealStatusCmd(use, status, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := actorFlag()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.SetDealStatus(ctx, args[0], status, actorID)
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}
}

func chatCmd() *cobra.Command {
	chat := &cobra.Command{Use: "chat", Short: "Deal channels"}
	chat.AddCommand(chatSendCmd())
	chat.AddCommand(chatShowCmd())
	return chat
}

func chatSendCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "send <deal-id>",
		Short: "Post a message on a deal channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := actorFlag()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.PostMessage(ctx, args[0], actorID, message)
				if err != nil {
					return err
				}
				return printJSON(m)
			})
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "message body")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func chatShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <deal-id>",
		Short: "Read a deal channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := actorFlag()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				msgs, err := e.ListMessages(ctx, args[0], actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(msgs)
				}
				for _, m := range msgs {
					fmt.Printf("[%s] %s: %s\n", m.CreatedAt, m.SenderID, m.Body)
				}
				return nil
			})
		},
	}
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys for fx serve"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyRevokeCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the acting actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := actorFlag()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Repo.GetActor(ctx, actorID); err != nil {
					return err
				}
				secret := uuid.New().String() + uuid.New().String()
				k := domain.APIKey{
					ID:        uuid.New().String(),
					ActorID:   actorID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				tx, err := e.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := e.Repo.InsertAPIKey(ctx, tx, k); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				// the secret is only printed once
				fmt.Printf("id: %s\nkey: %s\n", k.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the acting actor's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, err := actorFlag()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func apikeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Audit log"}
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
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx, err := app.Bootstrap(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer appCtx.Close()
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("FX_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" && !allowLegacy {
				return fmt.Errorf("FX_JWT_SECRET is required unless --allow-legacy-actor-header is set")
			}
			handler, err := server.New(server.Config{Engine: appCtx.Engine, BasePath: basePath, Auth: authCfg})
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
			fmt.Printf("Serving exchange API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-actor-header", false, "accept X-Actor-Id without credentials (local use)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	appCtx, err := app.Bootstrap(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer appCtx.Close()
	return fn(ctx, appCtx.Engine)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
