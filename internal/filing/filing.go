// Package filing loads the structural mapper output and verification
// report for one filing.
package filing

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ratio-cli/internal/model"
)

const dateLayout = "2006-01-02"

// Parse decodes and normalizes a filing from r.
func Parse(r io.Reader) (*model.FilingInput, error) {
	var in model.FilingInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, eris.Wrap(err, "filing: decode")
	}
	if err := Normalize(&in); err != nil {
		return nil, err
	}
	return &in, nil
}

// LoadFile parses the filing stored at path.
func LoadFile(path string) (*model.FilingInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "filing: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	in, err := Parse(f)
	if err != nil {
		return nil, eris.Wrapf(err, "filing: load %s", path)
	}
	return in, nil
}

// Normalize resolves statement codes and validates identifiers and dates.
// Statements with an unrecognized code or type are kept as other.
func Normalize(in *model.FilingInput) error {
	if in.FilingID == "" {
		return eris.New("filing: filing_id is required")
	}
	if err := checkDate(in.PeriodEnd); err != nil {
		return eris.Wrap(err, "filing: period_end")
	}
	for i := range in.Statements {
		st := &in.Statements[i]
		st.Code = resolveCode(st)
		for j := range st.Facts {
			fact := &st.Facts[j]
			if fact.ID == "" {
				return eris.Errorf("filing: statement %s fact %d: id is required", st.Code, j)
			}
			if fact.Concept == "" {
				return eris.Errorf("filing: statement %s fact %s: concept is required", st.Code, fact.ID)
			}
			for _, d := range []string{fact.Period.Start, fact.Period.End} {
				if err := checkDate(d); err != nil {
					return eris.Wrapf(err, "filing: statement %s fact %s", st.Code, fact.ID)
				}
			}
		}
	}
	return nil
}

func resolveCode(st *model.Statement) model.StatementCode {
	if st.Code != "" {
		if c, ok := model.ParseStatementCode(string(st.Code)); ok {
			return c
		}
	}
	c, _ := model.ParseStatementCode(st.Type)
	return c
}

func checkDate(s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return eris.Errorf("invalid date %q", s)
	}
	return nil
}
