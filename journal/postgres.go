package journal

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// PostgresOption configures the Postgres ledger.
type PostgresOption struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
	Config     *gorm.Config
}

// Postgres is the ledger backend for shared deployments.
type Postgres struct {
	db *gorm.DB
}

var (
	_ Journal    = (*Postgres)(nil)
	_ AgentStore = (*Postgres)(nil)
)

func NewPostgres(option PostgresOption) (*Postgres, error) {
	config := option.Config
	if config == nil {
		config = &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	}

	db, err := gorm.Open(postgres.Open(option.dsn()), config)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&tradeRow{}, &equityRow{}, &orderEventRow{}, &performanceRow{}, &agentRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) RecordTrade(t TradeRecord) error {
	row := tradeRow{
		TradeID: t.ID, Seq: int64(t.Seq), AgentID: t.AgentID, OrderID: t.OrderID,
		Symbol: t.Symbol, Side: string(t.Side), Quantity: t.Quantity, Price: t.Price,
		Fee: t.Fee, RealizedPnL: t.RealizedPnL, Closing: t.Closing, Time: t.Time.UTC(), Reason: t.Reason,
	}
	return p.db.Create(&row).Error
}

func (p *Postgres) RecordEquity(e EquitySnapshot) error {
	row := equityRow{AgentID: e.AgentID, Time: e.Time.UTC(), Capital: e.Capital, Balance: e.Balance, MarginUsed: e.MarginUsed}
	return p.db.Create(&row).Error
}

func (p *Postgres) RecordOrder(o OrderRecord) error {
	row := orderEventRow{
		OrderID: o.OrderID, AgentID: o.AgentID, Symbol: o.Symbol, Side: string(o.Side), Type: string(o.Type),
		Quantity: o.Quantity, LimitPrice: o.LimitPrice, FromStatus: o.From, ToStatus: o.To,
		Reason: o.Reason, Time: o.Time.UTC(),
	}
	return p.db.Create(&row).Error
}

func (p *Postgres) RecordPerformance(r PerformanceRecord) error {
	row := performanceRow{
		AgentID: r.AgentID, AsOf: r.AsOf.UTC(), Sharpe: r.SharpeRatio, Sortino: r.SortinoRatio,
		MaxDrawdown: r.MaxDrawdown, CurrentDrawdown: r.CurrentDrawdown, Volatility: r.Volatility,
		TotalReturn: r.TotalReturn, WinRate: r.WinRate, ProfitFactor: r.ProfitFactor,
		TotalTrades: r.TotalTrades, WinningTrades: r.WinningTrades,
	}
	return p.db.Create(&row).Error
}

func (p *Postgres) SaveAgent(ctx context.Context, a AgentRecord) error {
	row := agentRowFrom(a)
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "agent_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"capital", "peak_capital", "status"}),
	}).Create(&row).Error
}

func (p *Postgres) LoadAgents(ctx context.Context) ([]AgentRecord, error) {
	var rows []agentRow
	if err := p.db.WithContext(ctx).Order("agent_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]AgentRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (opt PostgresOption) dsn() string {
	if opt.ConnString != "" {
		return opt.ConnString
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()
	return u.String()
}

type tradeRow struct {
	TradeID     string `gorm:"primaryKey"`
	Seq         int64  `gorm:"index:idx_trades_agent_seq,priority:2"`
	AgentID     string `gorm:"index:idx_trades_agent_seq,priority:1"`
	OrderID     string
	Symbol      string
	Side        string
	Quantity    float64
	Price       float64
	Fee         float64
	RealizedPnL float64 `gorm:"column:realized_pnl"`
	Closing     bool
	Time        time.Time
	Reason      string
}

func (tradeRow) TableName() string { return "trades" }

type equityRow struct {
	ID         uint      `gorm:"primaryKey"`
	AgentID    string    `gorm:"index:idx_equity_agent_time,priority:1"`
	Time       time.Time `gorm:"index:idx_equity_agent_time,priority:2"`
	Capital    float64
	Balance    float64
	MarginUsed float64
}

func (equityRow) TableName() string { return "equity" }

type orderEventRow struct {
	ID         uint   `gorm:"primaryKey"`
	OrderID    string `gorm:"index"`
	AgentID    string `gorm:"index"`
	Symbol     string
	Side       string
	Type       string
	Quantity   float64
	LimitPrice float64
	FromStatus string
	ToStatus   string
	Reason     string
	Time       time.Time
}

func (orderEventRow) TableName() string { return "order_events" }

type performanceRow struct {
	ID              uint      `gorm:"primaryKey"`
	AgentID         string    `gorm:"index:idx_performance_agent_time,priority:1"`
	AsOf            time.Time `gorm:"index:idx_performance_agent_time,priority:2"`
	Sharpe          float64
	Sortino         float64
	MaxDrawdown     float64
	CurrentDrawdown float64
	Volatility      float64
	TotalReturn     float64
	WinRate         float64
	ProfitFactor    float64
	TotalTrades     int
	WinningTrades   int
}

func (performanceRow) TableName() string { return "performance" }

type agentRow struct {
	AgentID        string `gorm:"primaryKey"`
	OwnerID        string
	Name           string
	Profile        string
	Symbols        string
	Decider        string
	InitialCapital float64
	Capital        float64
	PeakCapital    float64
	Status         string
	CreatedAt      time.Time
}

func (agentRow) TableName() string { return "agents" }

func agentRowFrom(a AgentRecord) agentRow {
	return agentRow{
		AgentID: a.ID, OwnerID: a.OwnerID, Name: a.Name, Profile: a.Profile,
		Symbols: strings.Join(a.Symbols, ","), Decider: a.Decider,
		InitialCapital: a.InitialCapital, Capital: a.Capital, PeakCapital: a.PeakCapital,
		Status: a.Status, CreatedAt: a.CreatedAt.UTC(),
	}
}

func (r agentRow) record() AgentRecord {
	rec := AgentRecord{
		ID: r.AgentID, OwnerID: r.OwnerID, Name: r.Name, Profile: r.Profile, Decider: r.Decider,
		InitialCapital: r.InitialCapital, Capital: r.Capital, PeakCapital: r.PeakCapital,
		Status: r.Status, CreatedAt: r.CreatedAt,
	}
	if r.Symbols != "" {
		rec.Symbols = strings.Split(r.Symbols, ",")
	}
	return rec
}
