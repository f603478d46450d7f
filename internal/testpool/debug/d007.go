// Package debug holds the DEBUG group of compliance tests: debug policy
// management and certificate-based debug unlock.
package debug

import (
	"context"
	"math"

	"github.com/roach88/tbsa/internal/harness"
	"github.com/roach88/tbsa/internal/status"
	"github.com/roach88/tbsa/internal/target"
	"github.com/roach88/tbsa/internal/val"
)

// Checkpoints of d007.
const (
	d007Header status.Checkpoint = iota + 1
	d007Present
	d007Descriptor
	d007Algorithm
	d007Certificate
	d007Unique
)

// ApprovedUnlockAlgo reports whether a certificate unlock token may use algo.
// Only asymmetric algorithms are approved.
func ApprovedUnlockAlgo(algo target.Algorithm) bool {
	return algo == target.AlgoRSA || algo == target.AlgoECC
}

type d007Workspace struct {
	ids   []target.UniqueID
	valid []bool
}

func (w *d007Workspace) Reset() {
	w.ids = w.ids[:0]
	w.valid = w.valid[:0]
}

// D007 checks that every DPM unlocks with an approved asymmetric algorithm
// and that certificate-based unlock tokens are valid and device-unique.
type D007 struct {
	ws d007Workspace
}

// NewD007 creates the test.
func NewD007() *D007 {
	return &D007{}
}

func (t *D007) Identity() harness.Identity {
	return harness.Identity{
		Group:  harness.GroupDebug,
		ID:     7,
		Title:  "Check that certificate unlock token use an approved asymmetric algorithm",
		RefTag: "R230_TBSA_DEBUG",
	}
}

func (t *D007) Setup(api val.API) {
	api.TestInitialize(&t.ws)
	api.SetStatus(status.PassVerdict())
}

func (t *D007) Execute(ctx context.Context, api val.API) {
	rec, code := api.TargetGetConfig(target.CreateID(target.GroupDPM, target.KindHeader, 0))
	if api.ErrCheckSet(d007Header, code) {
		return
	}
	hdr, ok := rec.(target.DPMHeader)
	if !ok {
		api.ErrCheckSet(d007Header, status.DataMismatch)
		return
	}

	if hdr.Num == 0 {
		api.Print(val.PrintError, "no DPM present in the platform")
		api.ErrCheckSet(d007Present, status.NotFound)
		return
	}

	if hdr.Num > math.MaxUint16 {
		api.Print(val.PrintError, "DPM count exceeds instance range", "num", hdr.Num)
		api.ErrCheckSet(d007Present, status.InvalidArgs)
		return
	}

	for i := uint32(0); i < hdr.Num; i++ {
		rec, code := api.TargetGetConfig(target.CreateID(target.GroupDPM, target.KindDPM, uint16(i)))
		if api.ErrCheckSet(d007Descriptor, code) {
			return
		}
		desc, ok := rec.(target.DPMDesc)
		if !ok {
			api.ErrCheckSet(d007Descriptor, status.DataMismatch)
			return
		}

		if !ApprovedUnlockAlgo(desc.UnlockAlgo) {
			api.Print(val.PrintError, "unapproved unlock algorithm", "dpm", i, "algo", string(desc.UnlockAlgo))
			api.ErrCheckSet(d007Algorithm, status.IncorrectValue)
			return
		}

		if desc.UnlockToken != target.TokenCertificate {
			t.ws.ids = append(t.ws.ids, "")
			t.ws.valid = append(t.ws.valid, false)
			continue
		}

		if api.ErrCheckSet(d007Certificate, api.CryptoValidateCertificate(desc.Certificate, desc.PublicKey)) {
			return
		}
		id, code := api.CryptoGetUniqueID(desc.Certificate, desc.PublicKey)
		if api.ErrCheckSet(d007Certificate, code) {
			return
		}
		t.ws.ids = append(t.ws.ids, id)
		t.ws.valid = append(t.ws.valid, true)
	}

	if i, j, dup := FirstDuplicate(t.ws.ids, t.ws.valid); dup {
		api.Print(val.PrintError, "certificate unique ID shared", "dpm", i, "other", j, "id", string(t.ws.ids[i]))
		api.ErrCheckSet(d007Unique, status.DataMismatch)
		return
	}

	api.SetStatus(status.PassVerdict())
}

func (t *D007) Teardown(api val.API) {}
