// Package rtmr implements the RTMR engine and the direct/indirect boot
// orchestrators that sequence events into it. The engine itself is a
// small interpreter: replay a list of already-computed event digests,
// each tagged with its destination register, folding each register
// independently from its zero state — the generalized form of the
// teacher tools' measureLog, which folded one fixed list per call.
//
// The orchestrators (direct.go, platform.go, indirect.go) build the
// event lists for a given boot chain in the exact order spec.md §4.4,
// §4.5 and §4.6 require; ordering is load-bearing, not an
// implementation detail, so every orchestrator returns an eventlog.Log
// per register rather than just the folded value, to support
// transcript output and the "ordering as a first-class contract" test
// strategy.
package rtmr

import (
	"github.com/tdxpredict/tdx-measure/internal/eventlog"
	"github.com/tdxpredict/tdx-measure/internal/hasher"
)

// Registers holds the four folded TDX measurement registers.
type Registers struct {
	MRTD  hasher.Register
	RTMR0 hasher.Register
	RTMR1 hasher.Register
	RTMR2 hasher.Register
}

// Logs holds the per-register event logs an orchestrator produced,
// for transcript rendering alongside Registers.
type Logs struct {
	RTMR0 *eventlog.Log
	RTMR1 *eventlog.Log
	RTMR2 *eventlog.Log
}

// Fold replays each log independently, the RTMR engine's entire job:
// r_k <- RTMR_EXTEND(r_k, event.Digest) for every event destined for
// register k, in the order the orchestrator appended them.
func Fold(logs Logs) (rtmr0, rtmr1, rtmr2 hasher.Register) {
	if logs.RTMR0 != nil {
		rtmr0 = logs.RTMR0.Fold()
	}
	if logs.RTMR1 != nil {
		rtmr1 = logs.RTMR1.Fold()
	}
	if logs.RTMR2 != nil {
		rtmr2 = logs.RTMR2.Fold()
	}
	return rtmr0, rtmr1, rtmr2
}
