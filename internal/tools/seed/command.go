package seed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/finsight/identity-service/internal/config"
	"github.com/finsight/identity-service/internal/database"
	"github.com/finsight/identity-service/internal/tools/common"
	"github.com/finsight/identity-service/internal/tools/ui"
)

type options struct {
	envFile             string
	bootstrapAdminEmail string
	ci                  bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "seed", Short: "Database seed tooling"}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().StringVar(&opts.bootstrapAdminEmail, "bootstrap-admin-email", "", "override bootstrap admin email")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newApplyCommand(opts), newDryRunCommand(opts), newVerifyEmailCommand(opts))
	return cmd
}

func newApplyCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Apply development fixture users",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := run(opts, "seed apply", func(ctx context.Context) ([]string, error) {
				_, db, email, err := loadConfigDB(opts)
				if err != nil {
					return nil, err
				}
				report, err := database.SeedSync(db, email)
				if err != nil {
					return nil, err
				}
				details := []string{fmt.Sprintf("created %d fixture users", report.CreatedUsers)}
				if report.PromotedAdmin {
					details = append(details, "promoted bootstrap admin: "+email)
				}
				if report.Noop {
					details = append(details, "no changes needed")
				}
				return details, nil
			})
			if opts.ci {
				common.PrintCIResult(err == nil, "seed apply", details, err)
			}
			if err != nil {
				os.Exit(3)
			}
			return nil
		},
	}
}

func newDryRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dry-run",
		Short: "Show what seeding would do",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := run(opts, "seed dry-run", func(ctx context.Context) ([]string, error) {
				_, _, email, err := loadConfigDB(opts)
				if err != nil {
					return nil, err
				}
				details := []string{
					"would ensure fixture users: alice@example.com, bob@example.com",
					"fixture users are created pre-verified with role user",
				}
				if email != "" {
					details = append(details, "would promote to admin if present: "+email)
				}
				return details, nil
			})
			if opts.ci {
				common.PrintCIResult(err == nil, "seed dry-run", details, err)
			}
			if err != nil {
				os.Exit(3)
			}
			return nil
		},
	}
}

func newVerifyEmailCommand(opts *options) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "verify-email",
		Short: "Mark an account email as verified",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := run(opts, "seed verify-email", func(ctx context.Context) ([]string, error) {
				if strings.TrimSpace(email) == "" {
					return nil, fmt.Errorf("email is required")
				}
				_, db, _, err := loadConfigDB(opts)
				if err != nil {
					return nil, err
				}
				if err := database.VerifyEmail(db, email); err != nil {
					return nil, err
				}
				return []string{"marked email verified: " + strings.TrimSpace(strings.ToLower(email))}, nil
			})
			if opts.ci {
				common.PrintCIResult(err == nil, "seed verify-email", details, err)
			}
			if err != nil {
				os.Exit(3)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email to mark verified")
	return cmd
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		return fn(context.Background())
	}
	return ui.Run(title, fn)
}

func loadConfigDB(opts *options) (*config.Config, *gorm.DB, string, error) {
	if err := common.LoadEnvFile(opts.envFile); err != nil {
		return nil, nil, "", err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, "", err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, "", err
	}
	email := cfg.BootstrapAdminEmail
	if opts.bootstrapAdminEmail != "" {
		email = strings.TrimSpace(strings.ToLower(opts.bootstrapAdminEmail))
	}
	return cfg, db, email, nil
}
