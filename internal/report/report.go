// Package report assembles the final measurement registers and the
// per-event transcript into the text/JSON shapes spec.md §6 defines,
// plus the aggregate identity digests the teacher tools expose as
// CalculateMrAggregated/CalculateMrImage.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/tdxpredict/tdx-measure/internal/eventlog"
	"github.com/tdxpredict/tdx-measure/internal/hasher"
)

// Registers holds the four top-level measurement values a run produces.
// A nil field means that register was suppressed (--platform-only omits
// RTMR1/RTMR2, --runtime-only omits MRTD/RTMR0) and must not appear in
// any rendered output.
type Registers struct {
	MRTD  *hasher.Register
	RTMR0 *hasher.Register
	RTMR1 *hasher.Register
	RTMR2 *hasher.Register
}

// Text renders the four-line report spec.md §6 specifies, skipping any
// register that was suppressed.
func Text(r Registers) string {
	out := ""
	for _, f := range []struct {
		name string
		val  *hasher.Register
	}{
		{"MRTD", r.MRTD},
		{"RTMR0", r.RTMR0},
		{"RTMR1", r.RTMR1},
		{"RTMR2", r.RTMR2},
	} {
		if f.val == nil {
			continue
		}
		out += fmt.Sprintf("%s: %x\n", f.name, *f.val)
	}
	return out
}

// jsonReport mirrors spec.md §6's JSON shape; omitempty drops suppressed
// registers from the encoded object entirely.
type jsonReport struct {
	MRTD  string `json:"mrtd,omitempty"`
	RTMR0 string `json:"rtmr0,omitempty"`
	RTMR1 string `json:"rtmr1,omitempty"`
	RTMR2 string `json:"rtmr2,omitempty"`
}

// JSON renders r as indented JSON, suppressed registers absent.
func JSON(r Registers) ([]byte, error) {
	out := jsonReport{}
	if r.MRTD != nil {
		out.MRTD = fmt.Sprintf("%x", *r.MRTD)
	}
	if r.RTMR0 != nil {
		out.RTMR0 = fmt.Sprintf("%x", *r.RTMR0)
	}
	if r.RTMR1 != nil {
		out.RTMR1 = fmt.Sprintf("%x", *r.RTMR1)
	}
	if r.RTMR2 != nil {
		out.RTMR2 = fmt.Sprintf("%x", *r.RTMR2)
	}
	return json.MarshalIndent(out, "", "  ")
}

// TranscriptEvent is one line of the --transcript output: a single
// RTMR_EXTEND (or MRTD fold) operation, named and indexed for human
// review.
type TranscriptEvent struct {
	Index       int    `json:"index"`
	Register    string `json:"register"`
	Type        string `json:"type"`
	Digest      string `json:"digest"`
	Description string `json:"description"`
	Data        string `json:"data,omitempty"`
}

// Transcript flattens a sequence of event logs, in the order their
// registers are reported (MRTD, RTMR0, RTMR1, RTMR2 conventionally),
// into one continuously-indexed trace. Data is hex-encoded; a future
// ACPI disassembler can replace that encoding for ACPI-typed events
// without touching this function's contract, per spec.md §4.12's
// best-effort transcript decoding.
func Transcript(logs ...*eventlog.Log) []TranscriptEvent {
	var events []TranscriptEvent
	index := 0
	for _, log := range logs {
		if log == nil {
			continue
		}
		for _, e := range log.Events {
			te := TranscriptEvent{
				Index:       index,
				Register:    log.Register,
				Type:        e.Name,
				Digest:      hex.EncodeToString(e.Digest[:]),
				Description: e.Name,
			}
			if e.Data != nil {
				te.Data = hex.EncodeToString(e.Data)
			}
			events = append(events, te)
			index++
		}
	}
	return events
}

// CalculateMrAggregated computes sha256(mrtd||rtmr0||rtmr1||rtmr2||keyProvider),
// grounded on the teacher tools' CalculateMrAggregated. All four
// registers must be present; keyProvider may be nil (treated as empty).
func CalculateMrAggregated(r Registers, keyProvider []byte) (string, error) {
	if r.MRTD == nil || r.RTMR0 == nil || r.RTMR1 == nil || r.RTMR2 == nil {
		return "", fmt.Errorf("report: mr_aggregated requires all four registers")
	}
	h := sha256.New()
	h.Write(r.MRTD[:])
	h.Write(r.RTMR0[:])
	h.Write(r.RTMR1[:])
	h.Write(r.RTMR2[:])
	h.Write(keyProvider)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CalculateMrImage computes sha256(mrtd||rtmr1||rtmr2), grounded on the
// teacher tools' CalculateMrImage.
func CalculateMrImage(r Registers) (string, error) {
	if r.MRTD == nil || r.RTMR1 == nil || r.RTMR2 == nil {
		return "", fmt.Errorf("report: mr_image requires mrtd, rtmr1 and rtmr2")
	}
	h := sha256.New()
	h.Write(r.MRTD[:])
	h.Write(r.RTMR1[:])
	h.Write(r.RTMR2[:])
	return hex.EncodeToString(h.Sum(nil)), nil
}
