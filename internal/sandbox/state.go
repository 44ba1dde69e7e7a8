package sandbox

import (
	"fmt"
	"time"

	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

// ib is an introducing broker with its commission figures and accounts
type ib struct {
	record   models.IBCommission
	accounts []int64
}

// account is a seeded client with its trading history
type account struct {
	client     models.Client
	positions  []models.Position
	deals      []models.Deal
	percentage *float64
	rules      map[string]models.ClientRule
}

func seedIBs(now time.Time) []*ib {
	synced := now.Add(-10 * time.Minute)
	mk := func(id int64, name, email string, pct, total, avail float64, accounts ...int64) *ib {
		return &ib{
			record: models.IBCommission{
				ID:                  id,
				Name:                name,
				Email:               email,
				Percentage:          pct,
				TotalCommission:     total,
				AvailableCommission: avail,
				LastSyncedAt:        &synced,
			},
			accounts: accounts,
		}
	}

	return []*ib{
		mk(1, "Northwind Partners", "northwind@ib.example", 30, 12840.50, 3120.25, 100101, 100102, 100103),
		mk(2, "Blue Harbor Capital", "blueharbor@ib.example", 25, 8420.00, 1500.00, 100201, 100202),
		mk(3, "Summit Referrals", "summit@ib.example", 40, 21005.75, 9050.10, 100301),
		mk(4, "Quiet Lake Media", "quietlake@ib.example", 15, 0, 0),
	}
}

func seedAccounts(ibs []*ib, now time.Time) map[int64]*account {
	symbols := []string{"EURUSD", "XAUUSD", "GBPJPY", "US30"}
	groups := []string{"real\\standard", "real\\pro"}
	countries := []string{"AE", "GB", "IN", "SG"}

	accounts := make(map[int64]*account)
	n := 0
	for _, b := range ibs {
		for _, login := range b.accounts {
			n++
			balance := float64(5000 * n)
			acc := &account{
				client: models.Client{
					Login:    login,
					Name:     fmt.Sprintf("Client %d", login),
					Email:    fmt.Sprintf("client%d@mail.example", login),
					Group:    groups[n%len(groups)],
					Country:  countries[n%len(countries)],
					Leverage: 100 * (1 + n%5),
					Balance:  balance,
					Equity:   balance + float64(n*37),
					Margin:   float64(n * 120),
				},
				rules: make(map[string]models.ClientRule),
			}

			symbol := symbols[n%len(symbols)]
			acc.positions = []models.Position{{
				Position:     login*10 + 1,
				Login:        login,
				Symbol:       symbol,
				Action:       []string{"buy", "sell"}[n%2],
				Volume:       0.1 * float64(n),
				PriceOpen:    1.0 + float64(n)/100,
				PriceCurrent: 1.0 + float64(n)/90,
				Profit:       float64(n * 37),
				TimeCreate:   now.Add(-time.Duration(n) * time.Hour),
			}}
			acc.deals = []models.Deal{
				{Deal: login*100 + 1, Login: login, Action: "balance", Profit: balance, Comment: "initial deposit", Time: now.Add(-30 * 24 * time.Hour)},
				{Deal: login*100 + 2, Login: login, Symbol: symbol, Action: "buy", Volume: 0.5, Price: 1.1, Profit: float64(n * 12), Commission: -3.5, Time: now.Add(-48 * time.Hour)},
				{Deal: login*100 + 3, Login: login, Symbol: symbol, Action: "sell", Volume: 0.5, Price: 1.2, Profit: float64(-n * 4), Commission: -3.5, Time: now.Add(-24 * time.Hour)},
			}
			accounts[login] = acc
		}
	}
	return accounts
}

func seedRules() []models.Rule {
	return []models.Rule{
		{Code: "no_hedge", Name: "No hedging", Description: "Opposite positions on one symbol are rejected"},
		{Code: "max_lot", Name: "Maximum lot size", Description: "Caps the volume of a single order"},
		{Code: "scalp_window", Name: "Scalping window", Description: "Positions must stay open for a minimum time"},
	}
}

func clientFields() []models.ClientField {
	return []models.ClientField{
		{Key: "login", Label: "Login", Type: "number"},
		{Key: "name", Label: "Name", Type: "string"},
		{Key: "email", Label: "Email", Type: "string"},
		{Key: "group", Label: "Group", Type: "string"},
		{Key: "country", Label: "Country", Type: "string"},
		{Key: "leverage", Label: "Leverage", Type: "number"},
		{Key: "balance", Label: "Balance", Type: "money"},
		{Key: "equity", Label: "Equity", Type: "money"},
		{Key: "credit", Label: "Credit", Type: "money"},
		{Key: "margin", Label: "Margin", Type: "money"},
	}
}
