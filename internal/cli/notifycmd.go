package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"rvol-scanner/internal/models"
	"rvol-scanner/internal/notify"
)

func newNotifyCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification utilities",
	}

	testCmd := &cobra.Command{
		Use:   "test",
		Short: "Send a test notification through the configured channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireStore(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			message, _ := cmd.Flags().GetString("message")
			if message == "" {
				message = fmt.Sprintf("Test notification sent at %s", time.Now().UTC().Format(time.RFC3339))
			}

			err := app.Sink.Send(cmd.Context(), notify.Message{
				Channel:   models.ChannelTelegram,
				Text:      message,
				DedupeKey: fmt.Sprintf("test-%s", uuid.NewString()),
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{"status": "sent", "message": message})
			}
			output.Success("Test notification recorded")
			return nil
		},
	}
	testCmd.Flags().String("message", "", "message text (default: timestamped test line)")
	cmd.AddCommand(testCmd)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent notification records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireStore(); err != nil {
				return err
			}
			output := NewOutput(cmd)

			limit, _ := cmd.Flags().GetInt("limit")
			records, err := app.Store.GetNotifications(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(records)
			}
			if len(records) == 0 {
				output.Dim("No notifications")
				return nil
			}

			table := NewTable(output, "TIME", "CHANNEL", "TICKER", "STATUS", "MESSAGE")
			for _, n := range records {
				status := output.Green(string(n.Status))
				if n.Status == models.NotifyError {
					status = output.Red(string(n.Status))
				}
				msg := n.Message
				if len(msg) > 48 {
					msg = msg[:45] + "..."
				}
				table.AddRow(
					n.SentAt.Local().Format("2006-01-02 15:04"),
					string(n.Channel),
					n.Ticker,
					status,
					msg,
				)
			}
			table.Render()
			return nil
		},
	}
	historyCmd.Flags().Int("limit", 20, "maximum records to list")
	cmd.AddCommand(historyCmd)

	return cmd
}
