package model

import "strings"

// StatementCode identifies which financial statement a structural node belongs to.
type StatementCode string

// Statement codes.
const (
	StatementBalanceSheet StatementCode = "BS"
	StatementIncome       StatementCode = "IS"
	StatementCashFlow     StatementCode = "CF"
	StatementEquity       StatementCode = "EQ"
	StatementOther        StatementCode = "OT"
)

// statementAliases maps upstream statement type names onto codes.
var statementAliases = map[string]StatementCode{
	"bs":                   StatementBalanceSheet,
	"balance_sheet":        StatementBalanceSheet,
	"balance sheet":        StatementBalanceSheet,
	"financial_position":   StatementBalanceSheet,
	"is":                   StatementIncome,
	"income_statement":     StatementIncome,
	"income statement":     StatementIncome,
	"operations":           StatementIncome,
	"comprehensive_income": StatementIncome,
	"cf":                   StatementCashFlow,
	"cash_flow":            StatementCashFlow,
	"cash flow":            StatementCashFlow,
	"cash_flows":           StatementCashFlow,
	"eq":                   StatementEquity,
	"equity":               StatementEquity,
	"stockholders_equity":  StatementEquity,
	"ot":                   StatementOther,
	"other":                StatementOther,
}

// ParseStatementCode resolves a code or statement type name. Unrecognized
// names map to StatementOther and ok is false.
func ParseStatementCode(s string) (code StatementCode, ok bool) {
	c, found := statementAliases[strings.ToLower(strings.TrimSpace(s))]
	if !found {
		return StatementOther, false
	}
	return c, true
}

// Valid reports whether c is one of the fixed statement codes.
func (c StatementCode) Valid() bool {
	switch c {
	case StatementBalanceSheet, StatementIncome, StatementCashFlow, StatementEquity, StatementOther:
		return true
	}
	return false
}

// Period describes the reporting window of a fact.
type Period struct {
	Type  string `json:"type,omitempty"` // instant or duration
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// StructuralFact is one fact as delivered by the upstream filing mapper.
type StructuralFact struct {
	ID         string            `json:"id"`
	ParentID   string            `json:"parent_id,omitempty"`
	Concept    string            `json:"concept"`
	ContextRef string            `json:"context_ref"`
	Value      *float64          `json:"value"`
	Order      float64           `json:"order"`
	Depth      int               `json:"depth,omitempty"`
	Period     Period            `json:"period"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
	Abstract   bool              `json:"abstract,omitempty"`
	Nil        bool              `json:"nil,omitempty"`
	Label      string            `json:"label,omitempty"`
}

// Statement groups the facts of one financial statement.
type Statement struct {
	Code  StatementCode    `json:"code"`
	Type  string           `json:"type,omitempty"`
	Name  string           `json:"name,omitempty"`
	Facts []StructuralFact `json:"facts"`
}

// LocalName strips a namespace prefix from a concept name
// ("us-gaap:AssetsCurrent" becomes "AssetsCurrent").
func LocalName(concept string) string {
	if i := strings.LastIndexByte(concept, ':'); i >= 0 {
		return concept[i+1:]
	}
	return concept
}
