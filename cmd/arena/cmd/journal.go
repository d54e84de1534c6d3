package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/arena/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the trade journal",
	Long: `Query trades, order events and performance from a SQLite journal.

Examples:
  arena journal trades steady
  arena journal trade trd_01J9Z...
  arena journal orders steady
  arena journal performance steady --db ./arena.db`,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades <agent-id>",
	Short: "List an agent's trades",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrades,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Show one trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalOrdersCmd = &cobra.Command{
	Use:   "orders <agent-id>",
	Short: "List an agent's order lifecycle events",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalOrders,
}

var journalPerformanceCmd = &cobra.Command{
	Use:   "performance <agent-id>",
	Short: "Show an agent's latest performance snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalPerformance,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradesCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalOrdersCmd)
	journalCmd.AddCommand(journalPerformanceCmd)

	journalCmd.PersistentFlags().StringVar(&journalDBPath, "db", "./arena.db", "path to SQLite journal")
}

func openJournal() (*journal.SQLite, error) {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	trades, err := j.ListTrades(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		fmt.Printf("No trades for %s\n", args[0])
		return nil
	}
	fmt.Println(renderTrades(trades))

	var pnl, fees float64
	for _, t := range trades {
		pnl += t.RealizedPnL
		fees += t.Fee
	}
	fmt.Printf("%d trades, realized P&L %+.2f, fees %.2f\n", len(trades), pnl, fees)
	return nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	t, err := j.GetTrade(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Trade:    %s\n", t.ID)
	fmt.Printf("Agent:    %s\n", t.AgentID)
	fmt.Printf("Order:    %s\n", t.OrderID)
	fmt.Printf("Time:     %s\n", t.Time.Format("2006-01-02 15:04:05"))
	fmt.Printf("Fill:     %s %.6g %s @ %.2f\n", t.Side, t.Quantity, t.Symbol, t.Price)
	fmt.Printf("Fee:      %.2f\n", t.Fee)
	fmt.Printf("P&L:      %+.2f (closing=%v)\n", t.RealizedPnL, t.Closing)
	if t.Reason != "" {
		fmt.Printf("Reason:   %s\n", t.Reason)
	}
	return nil
}

func runJournalOrders(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	events, err := j.ListOrderEvents(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	for _, e := range events {
		from := e.From
		if from == "" {
			from = "-"
		}
		fmt.Printf("%s  %-28s %-4s %-9s %10.6g  %s -> %s  %s\n",
			e.Time.Format("2006-01-02 15:04:05"), e.OrderID, e.Side, e.Symbol, e.Quantity, from, e.To, e.Reason)
	}
	fmt.Printf("%d events\n", len(events))
	return nil
}

func runJournalPerformance(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	p, err := j.LatestPerformance(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Println(renderPerformance(p))
	return nil
}
