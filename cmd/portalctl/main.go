package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/auth"
	"github.com/staffportal/staffportal/pkg/bootstrap"
	"github.com/staffportal/staffportal/pkg/config"
	"github.com/staffportal/staffportal/pkg/eventbus"
	"github.com/staffportal/staffportal/pkg/livehub"
	"github.com/staffportal/staffportal/pkg/model"
	"github.com/staffportal/staffportal/pkg/notification"
	"github.com/staffportal/staffportal/pkg/pipeline"
	redisclient "github.com/staffportal/staffportal/pkg/store/redis"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:           "portalctl",
	Short:         "Staff portal pipeline administration",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(stagesCmd())
	rootCmd.AddCommand(cardsCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env is the opened configuration and storage a command runs against.
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	backend *bootstrap.Backend
}

func withBackend(ctx context.Context, fn func(context.Context, *env) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := bootstrap.NewLogger(config.LoggingConfig{Level: "warn", Format: "console"})
	if err != nil {
		return err
	}
	defer logger.Sync()

	backend, err := bootstrap.OpenBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	return fn(ctx, &env{cfg: cfg, logger: logger, backend: backend})
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, e *env) error {
				if e.backend.Postgres == nil {
					return fmt.Errorf("migrate needs database.driver postgres")
				}
				if err := e.backend.Postgres.AutoMigrate(); err != nil {
					return err
				}
				fmt.Println("schema up to date")
				return nil
			})
		},
	}
}

func stagesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "stages", Short: "Manage pipeline stages"}
	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Upsert the configured stages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, e *env) error {
				registry := pipeline.NewStageRegistry(e.backend.Repositories.Stages, e.logger)
				stages := pipeline.StagesFromConfig(e.cfg.Pipeline.Stages)
				if err := registry.SeedStages(ctx, stages); err != nil {
					return err
				}
				fmt.Printf("seeded %d stages\n", len(stages))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stages in board order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, e *env) error {
				stages, err := pipeline.NewStageRegistry(e.backend.Repositories.Stages, e.logger).ListStages(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(stages)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Order", "ID", "Name"})
				for _, s := range stages {
					tw.AppendRow(table.Row{s.Order, s.ID, s.Name})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

func cardsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cards", Short: "Manage pipeline cards"}

	var applicationID, silo, stage, applicant, business, amount, tags string
	add := &cobra.Command{
		Use:   "add",
		Short: "Place an application on the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			if applicationID == "" || silo == "" || stage == "" {
				return fmt.Errorf("--application, --silo and --stage are required")
			}
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount: %w", err)
			}
			return withBackend(cmd.Context(), func(ctx context.Context, e *env) error {
				ok, err := pipeline.NewStageRegistry(e.backend.Repositories.Stages, e.logger).Exists(ctx, stage)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: %s", pipeline.ErrInvalidStage, stage)
				}
				card := &model.PipelineCard{
					ApplicationID: applicationID,
					Silo:          silo,
					StageID:       stage,
					ApplicantName: applicant,
					BusinessName:  business,
					Amount:        value,
				}
				if tags != "" {
					card.Tags = strings.Split(tags, ",")
				}
				if err := e.backend.Repositories.Cards.Create(ctx, card); err != nil {
					return err
				}
				fmt.Printf("card %s created for application %s\n", card.ID, card.ApplicationID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&applicationID, "application", "", "application id")
	add.Flags().StringVar(&silo, "silo", "", "tenant silo")
	add.Flags().StringVar(&stage, "stage", "", "initial stage id")
	add.Flags().StringVar(&applicant, "applicant", "", "applicant name")
	add.Flags().StringVar(&business, "business", "", "business name")
	add.Flags().StringVar(&amount, "amount", "0", "requested amount")
	add.Flags().StringVar(&tags, "tags", "", "comma separated tags")
	cmd.AddCommand(add)

	var from, to, actorID string
	move := &cobra.Command{
		Use:   "move <application-id>",
		Short: "Move a card as the system actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, e *env) error {
				repos := e.backend.Repositories
				emitter, closeEmitter, err := liveEmitter(e)
				if err != nil {
					return err
				}
				defer closeEmitter()

				svc := pipeline.NewService(repos, notification.NewService(repos.Notifications, e.logger), emitter,
					pipeline.Options{StrictFromStage: e.cfg.Pipeline.StrictFromStage}, e.logger)
				card, err := svc.MoveCard(ctx, pipeline.MoveRequest{
					ApplicationID: args[0],
					FromStage:     from,
					ToStage:       to,
					Actor:         pipeline.Actor{UserID: actorID},
				})
				if err != nil {
					return err
				}
				fmt.Printf("application %s is now in %s\n", card.ApplicationID, card.StageID)
				return nil
			})
		},
	}
	move.Flags().StringVar(&from, "from", "", "current stage id")
	move.Flags().StringVar(&to, "to", "", "target stage id")
	move.Flags().StringVar(&actorID, "actor", model.AuditActorSystem, "actor recorded in the audit log")
	cmd.AddCommand(move)

	return cmd
}

func boardCmd() *cobra.Command {
	var silo string
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Print the pipeline board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, e *env) error {
				repos := e.backend.Repositories
				svc := pipeline.NewService(repos, notification.NewService(repos.Notifications, e.logger), noopEmitter{}, pipeline.Options{}, e.logger)
				board, err := svc.GetBoard(ctx, silo)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(board)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Stage", "Application", "Silo", "Applicant", "Business", "Amount"})
				for _, column := range board {
					if len(column.Cards) == 0 {
						tw.AppendRow(table.Row{column.StageName, "-", "", "", "", ""})
						continue
					}
					for _, card := range column.Cards {
						tw.AppendRow(table.Row{column.StageName, card.ApplicationID, card.Silo, card.ApplicantName, card.BusinessName, card.Amount.StringFixed(2)})
					}
					tw.AppendSeparator()
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&silo, "silo", "", "tenant silo (all silos when empty)")
	return cmd
}

func tokenCmd() *cobra.Command {
	var userID, silo, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a staff token for testing the API and WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" || silo == "" {
				return fmt.Errorf("--user and --silo are required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			token, err := auth.NewTokenManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, cfg.Auth.TokenTTL).Generate(userID, silo, role)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&silo, "silo", "", "tenant silo")
	cmd.Flags().StringVar(&role, "role", "staff", "role claim")
	return cmd
}

// liveEmitter publishes through the redis bus so connected clients of every
// api-server see CLI moves. Without redis there is nobody to notify.
func liveEmitter(e *env) (livehub.Emitter, func() error, error) {
	if !e.cfg.Redis.Enabled() {
		return noopEmitter{}, func() error { return nil }, nil
	}
	client, err := redisclient.NewClient(&e.cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	return eventbus.NewBus(client.Client(), e.cfg.Live.Channel, e.logger), client.Close, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type noopEmitter struct{}

func (noopEmitter) EmitPipelineUpdate(ctx context.Context, silo, applicationID string)   {}
func (noopEmitter) EmitDocumentUpdate(ctx context.Context, silo, applicationID string)   {}
func (noopEmitter) EmitChatMessage(ctx context.Context, silo, applicationID, msg string) {}

var _ livehub.Emitter = noopEmitter{}
