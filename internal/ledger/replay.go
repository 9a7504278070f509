package ledger

import (
	"github.com/angelmondragon/stockledger/pkg/db/models"
)

// ChainBreak describes a movement that does not continue from its predecessor,
// or whose own arithmetic does not add up.
type ChainBreak struct {
	MovementID     int64  `json:"movement_id"`
	ExpectedBefore int    `json:"expected_before"`
	QuantityBefore int    `json:"quantity_before"`
	QuantityAfter  int    `json:"quantity_after"`
	Delta          int    `json:"delta"`
	Problem        string `json:"problem"`
}

// ReplayResult is the outcome of folding a subject's movements in commit order.
type ReplayResult struct {
	Entries  int          `json:"entries"`
	Start    int          `json:"start"`
	Final    int          `json:"final"`
	Breaks   []ChainBreak `json:"breaks,omitempty"`
	Complete bool         `json:"complete"`
}

// Replay walks movements in the order given, starting from the first
// quantity_before, and applies each delta. A subject with no movements
// replays to zero, the quantity every stock record starts with.
func Replay(movements []models.StockMovement) ReplayResult {
	if len(movements) == 0 {
		return ReplayResult{Complete: true}
	}

	result := ReplayResult{
		Entries: len(movements),
		Start:   movements[0].QuantityBefore,
	}
	running := result.Start
	for _, m := range movements {
		if m.QuantityBefore != running {
			result.Breaks = append(result.Breaks, ChainBreak{
				MovementID:     m.ID,
				ExpectedBefore: running,
				QuantityBefore: m.QuantityBefore,
				QuantityAfter:  m.QuantityAfter,
				Delta:          m.Delta,
				Problem:        "quantity_before does not match previous quantity_after",
			})
		}
		if m.QuantityBefore+m.Delta != m.QuantityAfter {
			result.Breaks = append(result.Breaks, ChainBreak{
				MovementID:     m.ID,
				ExpectedBefore: running,
				QuantityBefore: m.QuantityBefore,
				QuantityAfter:  m.QuantityAfter,
				Delta:          m.Delta,
				Problem:        "quantity_after is not quantity_before plus delta",
			})
		}
		running += m.Delta
	}
	result.Final = running
	result.Complete = len(result.Breaks) == 0
	return result
}
