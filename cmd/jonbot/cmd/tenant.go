package cmd

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	appconfig "github.com/savaki/jonbot/pkg/config"
	"github.com/savaki/jonbot/pkg/models"
	"github.com/savaki/jonbot/pkg/tenant"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Inspect or edit per-team configuration",
	Long: `Inspect or edit per-team configuration in the configured store.
Omit the team id to address the default (single-workspace) document.`,
}

var tenantShowCmd = &cobra.Command{
	Use:   "show [team-id]",
	Short: "Show a team's configuration with secrets masked",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTenantShow,
}

var tenantSetCmd = &cobra.Command{
	Use:   "set [team-id]",
	Short: "Update fields of a team's configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTenantSet,
}

var (
	setAPIKey     string
	setToken      string
	setResolution string
	setStyle      string
)

func init() {
	tenantSetCmd.Flags().StringVar(&setAPIKey, "api-key", "", "image generation API key")
	tenantSetCmd.Flags().StringVar(&setToken, "token", "", "Slack bot token (xoxb-...)")
	tenantSetCmd.Flags().StringVar(&setResolution, "resolution", "", "output resolution, e.g. 1024x1024")
	tenantSetCmd.Flags().StringVar(&setStyle, "style", "", "style hint: auto, photo, illustration, anime, painting")

	tenantCmd.AddCommand(tenantShowCmd)
	tenantCmd.AddCommand(tenantSetCmd)
	rootCmd.AddCommand(tenantCmd)
}

func teamArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func tenantStore(ctx context.Context) (tenant.Store, error) {
	cfg, err := appconfig.Process()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}

	var awsCfg aws.Config
	if cfg.ConfigStore == appconfig.StoreDynamoDB {
		if awsCfg, err = loadAWSConfig(ctx, cfg.AWSRegion); err != nil {
			return nil, err
		}
	}
	return openStore(cfg, awsCfg)
}

func runTenantShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := tenantStore(ctx)
	if err != nil {
		return err
	}

	teamID := teamArg(args)
	cfg, err := tenant.Load(ctx, store, teamID)
	if err != nil {
		return err
	}

	printTenant(teamID, cfg)
	return nil
}

func runTenantSet(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if !flags.Changed("api-key") && !flags.Changed("token") && !flags.Changed("resolution") && !flags.Changed("style") {
		return fmt.Errorf("nothing to set; pass at least one of --api-key, --token, --resolution, --style")
	}

	var (
		resolution models.Resolution
		style      models.Style
		err        error
	)
	if flags.Changed("resolution") {
		if resolution, err = models.ParseResolution(setResolution); err != nil {
			return err
		}
	}
	if flags.Changed("style") {
		if style, err = models.ParseStyle(setStyle); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	store, err := tenantStore(ctx)
	if err != nil {
		return err
	}

	teamID := teamArg(args)
	cfg, err := tenant.Update(ctx, store, teamID, func(cfg *models.TenantConfig) {
		if flags.Changed("api-key") {
			cfg.GenerationAPIKey = setAPIKey
		}
		if flags.Changed("token") {
			cfg.PlatformAccessToken = setToken
		}
		if flags.Changed("resolution") {
			cfg.Resolution = resolution
		}
		if flags.Changed("style") {
			cfg.Style = style
		}
	})
	if err != nil {
		return err
	}

	fmt.Println(color.GreenString("✓ Saved"))
	printTenant(teamID, cfg)
	return nil
}

func printTenant(teamID string, cfg models.TenantConfig) {
	if teamID == "" {
		teamID = "(default)"
	}
	label := color.New(color.FgCyan).SprintFunc()

	fmt.Printf("%s %s\n", label("Team:      "), teamID)
	fmt.Printf("%s %s\n", label("API key:   "), orUnset(models.MaskSecret(cfg.GenerationAPIKey)))
	fmt.Printf("%s %s\n", label("Bot token: "), orUnset(models.MaskSecret(cfg.PlatformAccessToken)))
	fmt.Printf("%s %s\n", label("Resolution:"), cfg.Resolution.OrDefault())
	fmt.Printf("%s %s\n", label("Style:     "), cfg.Style.OrDefault())
}

func orUnset(s string) string {
	if s == "" {
		return color.YellowString("(not set)")
	}
	return s
}
