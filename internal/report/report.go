// Package report turns run records into the compliance report: one line per
// test, a summary, a content digest and an optional signed attestation.
//
// The digest is SHA-256 over RFC 8785 canonical JSON of the report with every
// string NFC-normalized, so equal runs produce equal digests regardless of
// map order or Unicode composition in target-provided names. Durations and
// timestamps are not part of the digest.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/tbsa/internal/harness"
)

// DigestPrefix is prepended to every report digest.
const DigestPrefix = "sha256:"

// Line is the report entry for one test.
type Line struct {
	Test       string   `json:"test"`
	Group      string   `json:"group"`
	ID         uint32   `json:"id"`
	Title      string   `json:"title"`
	RefTag     string   `json:"ref_tag"`
	Result     string   `json:"result"`
	Code       string   `json:"code"`
	Checkpoint uint32   `json:"checkpoint,omitempty"`
	Category   string   `json:"category,omitempty"`
	Defect     string   `json:"defect,omitempty"`
	Trace      []uint32 `json:"trace"`
}

// Report is a complete compliance run.
type Report struct {
	RunID       string          `json:"run_id"`
	Target      string          `json:"target"`
	TBSAVersion string          `json:"tbsa_version"`
	Lines       []Line          `json:"results"`
	Summary     harness.Summary `json:"summary"`

	// Digest and Token are set by Seal and Sign.
	Digest string `json:"digest,omitempty"`
	Token  string `json:"token,omitempty"`
}

// New builds a report from records in run order.
func New(runID, target, version string, records []harness.Record) *Report {
	rep := &Report{
		RunID:       runID,
		Target:      target,
		TBSAVersion: version,
		Lines:       make([]Line, 0, len(records)),
		Summary:     harness.Summarize(records),
	}
	for _, r := range records {
		rep.Lines = append(rep.Lines, NewLine(r))
	}
	return rep
}

// NewLine converts one record.
func NewLine(r harness.Record) Line {
	l := Line{
		Test:     r.Identity.Key(),
		Group:    r.Identity.Group.String(),
		ID:       r.Identity.ID,
		Title:    r.Identity.Title,
		RefTag:   r.Identity.RefTag,
		Result:   string(r.Result),
		Code:     r.Verdict.Code.String(),
		Category: string(r.Category),
		Trace:    make([]uint32, len(r.Trace)),
	}
	if r.Result == harness.ResultFail {
		l.Checkpoint = uint32(r.Verdict.Checkpoint)
	}
	if r.Defect != nil {
		l.Defect = r.Defect.Message
	}
	for i, cp := range r.Trace {
		l.Trace[i] = uint32(cp)
	}
	return l
}

// Canonical returns the bytes the digest is computed over.
func (r *Report) Canonical() ([]byte, error) {
	c := r.normalized()
	c.Digest = ""
	c.Token = ""

	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	out, err := jcs.Transform(data)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize report: %w", err)
	}
	return out, nil
}

// ComputeDigest returns the digest of the report content.
func (r *Report) ComputeDigest() (string, error) {
	data, err := r.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return DigestPrefix + hex.EncodeToString(sum[:]), nil
}

// Seal computes and stores the digest.
func (r *Report) Seal() error {
	d, err := r.ComputeDigest()
	if err != nil {
		return err
	}
	r.Digest = d
	return nil
}

// normalized returns a copy with every string in NFC.
func (r *Report) normalized() Report {
	c := *r
	c.RunID = norm.NFC.String(r.RunID)
	c.Target = norm.NFC.String(r.Target)
	c.TBSAVersion = norm.NFC.String(r.TBSAVersion)
	c.Lines = make([]Line, len(r.Lines))
	for i, l := range r.Lines {
		l.Test = norm.NFC.String(l.Test)
		l.Group = norm.NFC.String(l.Group)
		l.Title = norm.NFC.String(l.Title)
		l.RefTag = norm.NFC.String(l.RefTag)
		l.Result = norm.NFC.String(l.Result)
		l.Code = norm.NFC.String(l.Code)
		l.Category = norm.NFC.String(l.Category)
		l.Defect = norm.NFC.String(l.Defect)
		c.Lines[i] = l
	}
	return c
}
