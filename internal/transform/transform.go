// Package transform holds the table-specific row transformers. Every
// transformer is a pure domain.TransformFunc.
package transform

import (
	"strings"

	"github.com/mmcdole/tablesync/internal/domain"
	"github.com/shopspring/decimal"
)

// Cashback defaults used when app_settings is unavailable
var (
	DefaultCashbackRate      = decimal.RequireFromString("0.075")
	DefaultCashbackStartDate = "2024-06-01"
)

var registry = map[string]domain.TransformFunc{
	"passthrough":  Passthrough,
	"customers":    Customers,
	"transactions": Transactions,
	"app_settings": AppSettings,
}

// ByName returns the transformer registered under name. An empty name
// selects Passthrough.
func ByName(name string) (domain.TransformFunc, bool) {
	if name == "" {
		return Passthrough, true
	}
	fn, ok := registry[strings.ToLower(name)]
	return fn, ok
}

// Passthrough copies a row unchanged.
func Passthrough(row domain.Row) domain.Record {
	rec := make(domain.Record, len(row))
	for k, v := range row {
		rec[k] = v
	}
	return rec
}

// Customers normalizes a customers row.
func Customers(row domain.Row) domain.Record {
	firstVisit, _ := ParseBRDateOnly(row["first_visit"])
	lastVisit, _ := ParseBRDateOnly(row["last_visit"])
	registered, _ := ParseBRDate(row["data_cadastro"])

	return domain.Record{
		"id":                row["id"],
		"doc":               NormalizeCPF(row["doc"]),
		"name":              nullable(row["nome"]),
		"phone":             nullable(row["telefone"]),
		"email":             nullable(row["email"]),
		"registered_at":     nullable(registered),
		"first_visit":       nullable(firstVisit),
		"last_visit":        nullable(lastVisit),
		"wallet_balance":    money(ParseBRNumber(row["saldo_carteira"])),
		"transaction_count": toInt(row["transaction_count"]),
		"total_spent":       money(ParseBRNumber(row["total_spent"])),
	}
}

// CashbackSettings are the cashback rules applied to computed transactions.
type CashbackSettings struct {
	Rate      decimal.Decimal // fraction of the gross value, 0.075 for 7.5%
	StartDate string          // YYYY-MM-DD, purchases before it earn nothing
}

// DefaultCashbackSettings returns the rules used when app_settings is
// unavailable.
func DefaultCashbackSettings() CashbackSettings {
	return CashbackSettings{Rate: DefaultCashbackRate, StartDate: DefaultCashbackStartDate}
}

// SettingsFromRecord reads cashback rules from an AppSettings record. Missing
// or unparseable fields keep their defaults.
func SettingsFromRecord(rec domain.Record) CashbackSettings {
	s := DefaultCashbackSettings()
	if v := rec["cashback_percent"]; v != nil {
		if pct := ParseBRNumber(v); !pct.IsNegative() {
			s.Rate = pct.Div(decimal.NewFromInt(100))
		}
	}
	if start, ok := ParseBRDateOnly(rec["cashback_start_date"]); ok {
		s.StartDate = start
	}
	return s
}

// Transactions normalizes a transactions row with the default cashback rules.
func Transactions(row domain.Row) domain.Record {
	return transactions(row, DefaultCashbackSettings())
}

// TransactionsWith returns a transactions transformer that computes cashback
// with settings.
func TransactionsWith(settings CashbackSettings) domain.TransformFunc {
	return func(row domain.Row) domain.Record {
		return transactions(row, settings)
	}
}

// transactions normalizes a transactions row. Derived fields missing from
// the row (type, machine counts, cashback) are computed.
func transactions(row domain.Row, settings CashbackSettings) domain.Record {
	timestamp, _ := ParseBRDate(row["data_hora"])
	gross := ParseBRNumber(row["valor_venda"])
	paid := ParseBRNumber(row["valor_pago"])
	machineList := toString(row["maquinas"])
	payment := toString(row["meio_de_pagamento"])
	machines := CountMachines(machineList)

	txType := toString(row["transaction_type"])
	if txType == "" {
		txType = ClassifyTransaction(machineList, payment, gross)
	}

	cashback := ParseBRNumber(row["cashback_amount"])
	net := ParseBRNumber(row["net_value"])
	if row["cashback_amount"] == nil && row["net_value"] == nil {
		cashback, net = Cashback(timestamp, gross, paid, settings.Rate, settings.StartDate)
	}

	return domain.Record{
		"id":              row["id"],
		"timestamp":       nullable(timestamp),
		"customer_doc":    NormalizeCPF(row["doc_cliente"]),
		"customer_name":   nullable(row["nome_cliente"]),
		"store":           nullable(row["loja"]),
		"payment_method":  nullable(payment),
		"machines":        nullable(machineList),
		"type":            txType,
		"is_recharge":     txType == TypeRecharge,
		"wash_count":      machines.Wash,
		"dry_count":       machines.Dry,
		"total_services":  machines.Total,
		"gross_value":     money(gross),
		"paid_value":      money(paid),
		"net_value":       money(net),
		"cashback_amount": money(cashback),
	}
}

// Cashback computes cashback and net value for a purchase. Purchases before
// startDate or without a positive gross value earn nothing.
func Cashback(timestamp string, gross, paid, rate decimal.Decimal, startDate string) (cashback, net decimal.Decimal) {
	date, _, _ := strings.Cut(timestamp, "T")
	if date == "" || date < startDate || !gross.IsPositive() {
		return decimal.Zero, paid
	}
	cashback = gross.Mul(rate).Round(2)
	return cashback, paid.Sub(cashback).Round(2)
}

// AppSettings normalizes the app_settings row, filling defaults.
func AppSettings(row domain.Row) domain.Record {
	percent := ParseBRNumber(row["cashback_percent"])
	if row["cashback_percent"] == nil {
		percent = DefaultCashbackRate.Mul(decimal.NewFromInt(100))
	}
	start, ok := ParseBRDateOnly(row["cashback_start_date"])
	if !ok {
		start = DefaultCashbackStartDate
	}
	return domain.Record{
		"id":                  row["id"],
		"cashback_percent":    percent.InexactFloat64(),
		"cashback_start_date": start,
	}
}
