package transform

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/mmcdole/tablesync/internal/domain"
	"github.com/shopspring/decimal"
)

func TestNormalizeCPF(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"123.456.789-09", "12345678909"},
		{"1234", "00000001234"},
		{"9912345678909", "12345678909"},
		{"", ""},
		{"abc", ""},
		{nil, ""},
		{json.Number("12345678909"), "12345678909"},
	}
	for _, tt := range tests {
		if got := NormalizeCPF(tt.in); got != tt.want {
			t.Errorf("NormalizeCPF(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseBRNumber(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"1.234,56", "1234.56"},
		{"1,5", "1.5"},
		{"17.90", "17.9"},
		{"", "0"},
		{"n/d", "0"},
		{nil, "0"},
		{12.5, "12.5"},
		{3, "3"},
		{json.Number("42.10"), "42.1"},
	}
	for _, tt := range tests {
		got := ParseBRNumber(tt.in)
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ParseBRNumber(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseBRDate(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"05/03/2024 14:30:00", "2024-03-05T14:30:00", true},
		{"5/3/24", "2024-03-05T00:00:00", true},
		{"2024-03-05T14:30:00+00:00", "2024-03-05T14:30:00+00:00", true},
		{"", "", false},
		{"03-05-2024", "", false},
		{"aa/bb/cccc", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseBRDate(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseBRDate(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}

	if got, _ := ParseBRDateOnly("05/03/2024 14:30:00"); got != "2024-03-05" {
		t.Errorf("ParseBRDateOnly = %q", got)
	}
}

func TestCountMachines(t *testing.T) {
	got := CountMachines("Lavadora 01, Secadora 02, Lavadora 03")
	if got != (Machines{Wash: 2, Dry: 1, Total: 3}) {
		t.Errorf("CountMachines = %+v", got)
	}
	if got := CountMachines(""); got != (Machines{}) {
		t.Errorf("CountMachines(\"\") = %+v", got)
	}
}

func TestClassifyTransaction(t *testing.T) {
	ten := decimal.NewFromInt(10)
	tests := []struct {
		name     string
		machines string
		payment  string
		gross    decimal.Decimal
		want     string
	}{
		{"recharge", "Recarga", "Pix", ten, TypeRecharge},
		{"wallet payment", "Lavadora 01", "Saldo da Carteira", ten, TypeWallet},
		{"zero gross", "Lavadora 01", "Pix", decimal.Zero, TypeWallet},
		{"normal", "Lavadora 01", "Crédito", ten, TypeNormal},
		{"nothing", "", "Pix", ten, TypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyTransaction(tt.machines, tt.payment, tt.gross); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCashback(t *testing.T) {
	gross := decimal.RequireFromString("20.00")
	paid := decimal.RequireFromString("20.00")

	cb, net := Cashback("2024-07-01T10:00:00", gross, paid, DefaultCashbackRate, DefaultCashbackStartDate)
	if !cb.Equal(decimal.RequireFromString("1.5")) || !net.Equal(decimal.RequireFromString("18.5")) {
		t.Errorf("cashback = %s net = %s", cb, net)
	}

	cb, net = Cashback("2024-05-31T10:00:00", gross, paid, DefaultCashbackRate, DefaultCashbackStartDate)
	if !cb.IsZero() || !net.Equal(paid) {
		t.Errorf("before start: cashback = %s net = %s", cb, net)
	}
}

func TestTransactionsComputesDerivedFields(t *testing.T) {
	rec := Transactions(domain.Row{
		"id":                json.Number("7"),
		"data_hora":         "01/07/2024 09:15:00",
		"valor_venda":       "20,00",
		"valor_pago":        "20,00",
		"maquinas":          "Lavadora 01, Secadora 02",
		"meio_de_pagamento": "Crédito",
		"doc_cliente":       "123.456.789-09",
	})

	checks := map[string]any{
		"timestamp":       "2024-07-01T09:15:00",
		"type":            TypeNormal,
		"is_recharge":     false,
		"wash_count":      1,
		"dry_count":       1,
		"total_services":  2,
		"gross_value":     20.0,
		"cashback_amount": 1.5,
		"net_value":       18.5,
		"customer_doc":    "12345678909",
		"store":           nil,
	}
	for k, want := range checks {
		if rec[k] != want {
			t.Errorf("%s = %v (%T), want %v (%T)", k, rec[k], rec[k], want, want)
		}
	}
}

func TestTransactionsKeepsStoredDerivedFields(t *testing.T) {
	rec := Transactions(domain.Row{
		"data_hora":        "2024-07-01T09:15:00",
		"valor_venda":      10.0,
		"valor_pago":       10.0,
		"maquinas":         "Recarga",
		"transaction_type": TypeRecharge,
		"cashback_amount":  0.0,
		"net_value":        10.0,
	})
	if rec["type"] != TypeRecharge || rec["is_recharge"] != true {
		t.Errorf("record = %v", rec)
	}
	if rec["cashback_amount"] != 0.0 || rec["net_value"] != 10.0 {
		t.Errorf("stored cashback not kept: %v", rec)
	}
}

func TestTransactionsWithSettings(t *testing.T) {
	row := domain.Row{
		"data_hora":   "01/07/2024 09:15:00",
		"valor_venda": "20,00",
		"valor_pago":  "20,00",
		"maquinas":    "Lavadora 01",
	}

	ten := TransactionsWith(SettingsFromRecord(domain.Record{"cashback_percent": 10.0}))(row)
	if ten["cashback_amount"] != 2.0 || ten["net_value"] != 18.0 {
		t.Errorf("10%%: cashback = %v net = %v", ten["cashback_amount"], ten["net_value"])
	}

	late := TransactionsWith(SettingsFromRecord(domain.Record{"cashback_start_date": "2024-08-01"}))(row)
	if late["cashback_amount"] != 0.0 || late["net_value"] != 20.0 {
		t.Errorf("before start: cashback = %v net = %v", late["cashback_amount"], late["net_value"])
	}

	if got := Transactions(row)["cashback_amount"]; got != 1.5 {
		t.Errorf("default cashback = %v, want 1.5", got)
	}
}

func TestSettingsFromRecord(t *testing.T) {
	s := SettingsFromRecord(AppSettings(domain.Row{"cashback_percent": "12,5", "cashback_start_date": "01/02/2025"}))
	if !s.Rate.Equal(decimal.RequireFromString("0.125")) || s.StartDate != "2025-02-01" {
		t.Errorf("settings = %+v", s)
	}

	s = SettingsFromRecord(domain.Record{"cashback_percent": json.Number("5")})
	if !s.Rate.Equal(decimal.RequireFromString("0.05")) || s.StartDate != DefaultCashbackStartDate {
		t.Errorf("json.Number settings = %+v", s)
	}

	if s := SettingsFromRecord(nil); !s.Rate.Equal(DefaultCashbackRate) || s.StartDate != DefaultCashbackStartDate {
		t.Errorf("empty settings = %+v", s)
	}
}

func TestCustomers(t *testing.T) {
	rec := Customers(domain.Row{
		"id":                1.0,
		"doc":               "1234",
		"nome":              "  Maria  ",
		"email":             "",
		"saldo_carteira":    "1.234,50",
		"transaction_count": json.Number("12"),
		"total_spent":       310.456,
		"first_visit":       "2023-01-02",
		"last_visit":        "10/02/2024",
	})

	checks := map[string]any{
		"doc":               "00000001234",
		"name":              "Maria",
		"email":             nil,
		"wallet_balance":    1234.5,
		"transaction_count": 12,
		"total_spent":       310.46,
		"first_visit":       "2023-01-02",
		"last_visit":        "2024-02-10",
	}
	for k, want := range checks {
		if rec[k] != want {
			t.Errorf("%s = %v (%T), want %v", k, rec[k], rec[k], want)
		}
	}
}

func TestAppSettingsDefaults(t *testing.T) {
	rec := AppSettings(domain.Row{"id": "default"})
	if rec["cashback_percent"] != 7.5 || rec["cashback_start_date"] != DefaultCashbackStartDate {
		t.Errorf("defaults = %v", rec)
	}

	rec = AppSettings(domain.Row{"cashback_percent": 10.0, "cashback_start_date": "2025-01-01"})
	if rec["cashback_percent"] != 10.0 || rec["cashback_start_date"] != "2025-01-01" {
		t.Errorf("explicit = %v", rec)
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "passthrough", "customers", "Transactions", "app_settings"} {
		if _, ok := ByName(name); !ok {
			t.Errorf("ByName(%q) not found", name)
		}
	}
	if _, ok := ByName("nope"); ok {
		t.Error("ByName(nope) should fail")
	}

	fn, _ := ByName("")
	rec := fn(domain.Row{"a": 1})
	if rec["a"] != 1 {
		t.Errorf("passthrough = %v", rec)
	}
}
