package cli

import (
	"fmt"
	"path/filepath"

	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/webhook"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/events"
	"github.com/felixgeelhaar/sitepulse/pkg/storage"
	"github.com/spf13/cobra"
)

// eventTypeWebhookTest is sent by 'webhook test'.
const eventTypeWebhookTest = "webhook.test"

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Inspect outgoing webhooks and failed deliveries",
	Long: `Outgoing webhooks are configured under webhooks: in .sitepulse/config.yaml.
Each delivery is signed with HMAC-SHA256 in the X-SitePulse-Signature header
when a secret is set. Deliveries that exhaust their retries are kept in
.sitepulse/deadletters.jsonl.`,
}

var (
	webhookJSON  bool
	webhookClear bool
)

var webhookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured webhooks",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadConfig()
		if err != nil {
			return err
		}
		defer env.Close()

		out := cmd.OutOrStdout()
		if webhookJSON {
			redacted := make([]events.WebhookEndpoint, len(env.cfg.Webhooks))
			for i, ep := range env.cfg.Webhooks {
				if ep.Secret != "" {
					ep.Secret = "********"
				}
				redacted[i] = ep
			}
			return writeJSON(out, redacted)
		}
		if len(env.cfg.Webhooks) == 0 {
			fmt.Fprintln(out, "No webhooks configured.")
			return nil
		}
		rows := make([][]string, 0, len(env.cfg.Webhooks))
		for _, ep := range env.cfg.Webhooks {
			filters := "all"
			if len(ep.EventFilters) > 0 {
				filters = fmt.Sprint(ep.EventFilters)
			}
			rows = append(rows, []string{ep.Name, ep.URL, fmt.Sprint(ep.Enabled), filters, fmt.Sprint(ep.Secret != "")})
		}
		fmt.Fprintln(out, renderTable([]string{"Name", "URL", "Enabled", "Events", "Signed"}, rows))
		return nil
	},
}

var webhookTestCmd = &cobra.Command{
	Use:   "test <name>",
	Short: "Send a test event to one webhook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadConfig()
		if err != nil {
			return err
		}
		defer env.Close()

		var target *events.WebhookEndpoint
		for _, ep := range env.cfg.Webhooks {
			if ep.Name == args[0] {
				target = &ep
				break
			}
		}
		if target == nil {
			return NewCLIError(fmt.Sprintf("webhook %q not found", args[0]), "Run 'sitepulse webhook list'", nil)
		}
		target.Enabled = true
		target.EventFilters = nil

		store := deadLetterStore(env.repo)
		before, err := store.ReadAll()
		if err != nil {
			return err
		}

		n := webhook.NewNotifier([]events.WebhookEndpoint{*target}, store, env.logger)
		n.Notify(cmd.Context(), events.NewEvent(eventTypeWebhookTest, events.AggregateTypePortfolio, "test", map[string]interface{}{
			"message": "SitePulse webhook test",
		}))
		n.Wait()

		after, err := store.ReadAll()
		if err != nil {
			return err
		}
		if len(after) > len(before) {
			last := after[len(after)-1]
			return NewCLIError(fmt.Sprintf("delivery to %s failed after %d attempt(s)", target.Name, last.Attempts), "Check the URL and that the receiver returns 2xx", fmt.Errorf("%s", last.Error))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Delivered test event to %s\n", target.Name)
		return nil
	},
}

var webhookDeadLettersCmd = &cobra.Command{
	Use:   "deadletters",
	Short: "Show or clear failed webhook deliveries",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadConfig()
		if err != nil {
			return err
		}
		defer env.Close()

		store := deadLetterStore(env.repo)
		out := cmd.OutOrStdout()
		if webhookClear {
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(out, "Dead letters cleared.")
			return nil
		}

		letters, err := store.ReadAll()
		if err != nil {
			return err
		}
		if webhookJSON {
			if letters == nil {
				letters = []events.DeadLetter{}
			}
			return writeJSON(out, letters)
		}
		if len(letters) == 0 {
			fmt.Fprintln(out, "No dead letters.")
			return nil
		}
		rows := make([][]string, 0, len(letters))
		for _, dl := range letters {
			rows = append(rows, []string{
				dl.Timestamp.Local().Format("2006-01-02 15:04:05"),
				dl.WebhookName,
				dl.EventType,
				fmt.Sprint(dl.Attempts),
				truncate(dl.Error, 50),
			})
		}
		fmt.Fprintln(out, renderTable([]string{"When", "Webhook", "Event", "Attempts", "Error"}, rows))
		return nil
	},
}

func deadLetterStore(repo *storage.FilesystemRepository) *webhook.DeadLetterStore {
	return webhook.NewDeadLetterStore(filepath.Join(repo.Dir(), storage.DeadLetterFile))
}

func init() {
	webhookListCmd.Flags().BoolVar(&webhookJSON, "json", false, "Output in JSON format")
	webhookDeadLettersCmd.Flags().BoolVar(&webhookJSON, "json", false, "Output in JSON format")
	webhookDeadLettersCmd.Flags().BoolVar(&webhookClear, "clear", false, "Delete all dead letters")
	webhookCmd.AddCommand(webhookListCmd, webhookTestCmd, webhookDeadLettersCmd)
	RootCmd.AddCommand(webhookCmd)
}
