package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sells-group/ratio-cli/internal/model"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeSummary prints one line per ratio with display-rounded values.
func writeSummary(w io.Writer, r *model.FilingResult, places int) error {
	fmt.Fprintf(w, "%s  %s  industry=%s  verification=%g\n", r.FilingID, r.Company, r.Industry.Category, r.VerificationScore)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RATIO\tTIER\tSTATUS\tVALUE\tCONFIDENCE\tNOTE")
	for _, rr := range r.Ratios {
		value := "-"
		if v, ok := rr.Rounded(places); ok {
			value = fmt.Sprintf("%.*f", places, v)
		}
		note := rr.Reason
		switch {
		case rr.Verdict != "":
			note = string(rr.Verdict)
		case rr.Validation == model.ValidationOutlier, rr.Validation == model.ValidationCheckFailed:
			note = string(rr.Validation)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%.0f\t%s\n", rr.RatioID, rr.Tier, rr.Status, value, rr.Confidence, note)
	}
	return tw.Flush()
}
