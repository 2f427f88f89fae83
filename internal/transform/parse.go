package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

var nonDigits = regexp.MustCompile(`\D`)

// NormalizeCPF returns an 11-digit CPF: non-digits removed, short values
// zero-padded, long values trimmed to the last 11 digits. Empty input or
// input without digits yields "".
func NormalizeCPF(v any) string {
	s := toString(v)
	if s == "" {
		return ""
	}
	digits := nonDigits.ReplaceAllString(s, "")
	switch {
	case digits == "":
		return ""
	case len(digits) < 11:
		return strings.Repeat("0", 11-len(digits)) + digits
	case len(digits) > 11:
		return digits[len(digits)-11:]
	}
	return digits
}

// ParseBRNumber parses numbers in Brazilian format ("1.234,56", "1,5") as
// well as plain JSON numbers. Unparseable or empty input yields zero.
func ParseBRNumber(v any) decimal.Decimal {
	switch n := v.(type) {
	case nil:
		return decimal.Zero
	case float64:
		return decimal.NewFromFloat(n)
	case float32:
		return decimal.NewFromFloat32(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	}

	s := strings.TrimSpace(toString(v))
	if s == "" {
		return decimal.Zero
	}
	switch {
	case strings.Contains(s, ".") && strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseBRDate converts "DD/MM/YYYY[ HH:MM:SS]" to "YYYY-MM-DDTHH:MM:SS".
// Values that are already ISO formatted are returned unchanged.
func ParseBRDate(v any) (string, bool) {
	s := strings.TrimSpace(toString(v))
	if s == "" {
		return "", false
	}
	if len(s) >= 10 && s[4] == '-' && s[7] == '-' {
		return s, true
	}

	datePart, timePart, found := strings.Cut(s, " ")
	if !found || strings.TrimSpace(timePart) == "" {
		timePart = "00:00:00"
	}
	parts := strings.Split(datePart, "/")
	if len(parts) != 3 {
		return "", false
	}
	day, month, year := parts[0], parts[1], parts[2]
	if len(year) == 2 {
		year = "20" + year
	}
	for _, p := range []string{day, month, year} {
		if _, err := strconv.Atoi(p); err != nil {
			return "", false
		}
	}
	return fmt.Sprintf("%s-%s-%sT%s", year, pad2(month), pad2(day), strings.TrimSpace(timePart)), true
}

// ParseBRDateOnly is ParseBRDate truncated to the date.
func ParseBRDateOnly(v any) (string, bool) {
	iso, ok := ParseBRDate(v)
	if !ok {
		return "", false
	}
	date, _, _ := strings.Cut(iso, "T")
	return date, true
}

// Machines counts washers and dryers in a machine list.
type Machines struct {
	Wash  int
	Dry   int
	Total int
}

// CountMachines counts "lavadora" and "secadora" entries in a
// comma-separated machine list.
func CountMachines(s string) Machines {
	if s == "" {
		return Machines{}
	}
	var m Machines
	for _, machine := range strings.Split(strings.ToLower(s), ",") {
		if strings.Contains(machine, "lavadora") {
			m.Wash++
		}
		if strings.Contains(machine, "secadora") {
			m.Dry++
		}
	}
	m.Total = m.Wash + m.Dry
	return m
}

// Transaction types
const (
	TypeNormal   = "TYPE_1" // machines paid with money
	TypeWallet   = "TYPE_2" // machines paid from the wallet balance
	TypeRecharge = "TYPE_3" // wallet recharge
	TypeUnknown  = "UNKNOWN"
)

// ClassifyTransaction derives the transaction type from its machine list,
// payment method and gross value.
func ClassifyTransaction(machines, paymentMethod string, gross decimal.Decimal) string {
	machines = strings.ToLower(machines)
	paymentMethod = strings.ToLower(paymentMethod)

	if strings.Contains(machines, "recarga") {
		return TypeRecharge
	}
	if strings.Contains(paymentMethod, "saldo da carteira") {
		return TypeWallet
	}
	if gross.IsZero() && machines != "" {
		return TypeWallet
	}
	if machines != "" && gross.IsPositive() {
		return TypeNormal
	}
	return TypeUnknown
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// nullable returns nil for empty strings so records keep the remote's nulls
func nullable(v any) any {
	s := strings.TrimSpace(toString(v))
	if s == "" {
		return nil
	}
	return s
}

func toInt(v any) int {
	return int(ParseBRNumber(v).IntPart())
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
