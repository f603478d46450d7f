package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// WriteText writes the report in the TBSA console layout.
func WriteText(w io.Writer, r *Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "TBSA compliance run %s\n", r.RunID)
	fmt.Fprintf(&b, "Target: %s (TBSA %s)\n", r.Target, r.TBSAVersion)

	for _, l := range r.Lines {
		b.WriteString("\n")
		fmt.Fprintf(&b, "TEST: %s | DESCRIPTION: %s | UT: %s\n", l.Test, l.Title, l.RefTag)
		b.WriteString(resultLine(l))
		b.WriteString("\n")
	}

	s := r.Summary
	b.WriteString("\n")
	fmt.Fprintf(&b, "Test Summary: %d passed, %d failed, %d skipped, %d indeterminate, %d total\n",
		s.Pass, s.Fail, s.Skip, s.Indeterminate, s.Total())
	if r.Digest != "" {
		fmt.Fprintf(&b, "Digest: %s\n", r.Digest)
	}
	if r.Token != "" {
		fmt.Fprintf(&b, "Attestation: %s\n", r.Token)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// resultLine renders e.g. "RESULT: FAIL (NOT_FOUND) checkpoint 2 [CONFIG_NOT_FOUND]".
func resultLine(l Line) string {
	var b strings.Builder
	fmt.Fprintf(&b, "RESULT: %s", l.Result)
	switch l.Result {
	case "PASS":
	case "FAIL":
		fmt.Fprintf(&b, " (%s) checkpoint %d", l.Code, l.Checkpoint)
	default:
		fmt.Fprintf(&b, " (%s)", l.Code)
	}
	if l.Category != "" {
		fmt.Fprintf(&b, " [%s]", l.Category)
	}
	if l.Defect != "" {
		fmt.Fprintf(&b, ": %s", l.Defect)
	}
	if len(l.Trace) > 0 {
		cps := make([]string, len(l.Trace))
		for i, cp := range l.Trace {
			cps[i] = fmt.Sprintf("%d", cp)
		}
		fmt.Fprintf(&b, "\n  checkpoints: %s", strings.Join(cps, " "))
	}
	return b.String()
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// ReadJSON decodes a report written by WriteJSON.
func ReadJSON(rd io.Reader) (*Report, error) {
	var r Report
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}
