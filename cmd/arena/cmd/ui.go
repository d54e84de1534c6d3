package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/rustyeddy/arena/agent"
	"github.com/rustyeddy/arena/competition"
	"github.com/rustyeddy/arena/journal"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	gainStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Padding(0, 1)
	lossStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Padding(0, 1)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Padding(0, 1)
)

const returnCol = 3

func renderRanking(c competition.Competition, r competition.Ranking, reg *agent.Registry) string {
	rows := make([][]string, 0, len(r.Entries))
	halted := make(map[int]bool)
	for i, en := range r.Entries {
		status := "-"
		if h, err := reg.Get(en.AgentID); err == nil {
			status = string(h.Status())
			halted[i] = h.Status() == agent.Liquidated || h.Status() == agent.Stopped
		}
		if en.Eliminated {
			status = "eliminated"
			halted[i] = true
		}
		row := []string{
			fmt.Sprintf("%d", en.Rank),
			en.AgentID,
			fmt.Sprintf("%.4f", en.Score),
			fmt.Sprintf("%+.2f%%", 100*en.TotalReturn),
			fmt.Sprintf("%.2f", en.SharpeRatio),
			fmt.Sprintf("%.2f%%", 100*en.MaxDrawdown),
			fmt.Sprintf("%.0f", en.RiskScore),
			status,
		}
		if c.Kind == competition.League {
			row = append(row, en.Tier.String())
		}
		if r.Final {
			row = append(row, "$"+en.Payout.StringFixed(2))
		}
		rows = append(rows, row)
	}

	headers := []string{"#", "Agent", "Score", "Return", "Sharpe", "Max DD", "Risk", "Status"}
	if c.Kind == competition.League {
		headers = append(headers, "Tier")
	}
	if r.Final {
		headers = append(headers, "Payout")
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case halted[row]:
				return mutedStyle
			case col == returnCol && strings.HasPrefix(rows[row][col], "-"):
				return lossStyle
			case col == returnCol:
				return gainStyle
			}
			return cellStyle
		})

	title := fmt.Sprintf("%s · %s · %s · pool $%s", c.Name, c.Kind, c.Status, c.PrizePool.StringFixed(2))
	return titleStyle.Render(title) + "\n" + t.String()
}

func renderTrades(recs []journal.TradeRecord) string {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			fmt.Sprintf("%d", r.Seq),
			r.Time.Format("2006-01-02 15:04:05"),
			r.Symbol,
			string(r.Side),
			fmt.Sprintf("%.6g", r.Quantity),
			fmt.Sprintf("%.2f", r.Price),
			fmt.Sprintf("%.2f", r.Fee),
			fmt.Sprintf("%+.2f", r.RealizedPnL),
			r.Reason,
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Seq", "Time", "Symbol", "Side", "Qty", "Price", "Fee", "P&L", "Reason").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

func renderPerformance(p journal.PerformanceRecord) string {
	lines := []string{
		fmt.Sprintf("as of          %s", p.AsOf.Format("2006-01-02 15:04:05")),
		fmt.Sprintf("total return   %+.2f%%", 100*p.TotalReturn),
		fmt.Sprintf("sharpe         %.3f", p.SharpeRatio),
		fmt.Sprintf("sortino        %.3f", p.SortinoRatio),
		fmt.Sprintf("max drawdown   %.2f%%", 100*p.MaxDrawdown),
		fmt.Sprintf("volatility     %.2f%%", 100*p.Volatility),
		fmt.Sprintf("win rate       %.1f%% (%d/%d)", 100*p.WinRate, p.WinningTrades, p.TotalTrades),
		fmt.Sprintf("profit factor  %.2f", p.ProfitFactor),
	}
	return titleStyle.Render(p.AgentID) + "\n" + cellStyle.Render(strings.Join(lines, "\n"))
}
