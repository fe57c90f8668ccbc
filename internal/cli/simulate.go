package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"market-pulse-alerts/internal/app"
)

var (
	simulateKind    string
	simulateSubject string
	simulateTitle   string
	simulateBody    string
	simulateScore   float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Inject a synthetic alert through the dispatch pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateTitle == "" {
			return errors.New("--title must not be empty")
		}
		if simulateScore < 0 || simulateScore > 100 {
			return errors.New("--score must be between 0 and 100")
		}

		opts := app.SimulateOptions{
			Kind:    simulateKind,
			Subject: simulateSubject,
			Title:   simulateTitle,
			Body:    simulateBody,
			Score:   simulateScore,
		}

		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateKind, "kind", "NEWS_ITEM", "Alert kind")
	simulateCmd.Flags().StringVar(&simulateSubject, "subject", "", "Alert subject (e.g. ticker symbol)")
	simulateCmd.Flags().StringVar(&simulateTitle, "title", "", "Alert title")
	simulateCmd.Flags().StringVar(&simulateBody, "body", "", "Alert body")
	simulateCmd.Flags().Float64Var(&simulateScore, "score", 50, "Alert score (0-100)")
}
