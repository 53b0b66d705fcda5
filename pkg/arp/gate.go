package arp

import "fmt"

// TxOutcome reports what happened when the stack tried to resolve a
// next-hop L2 address for an outbound IPv4 datagram. The constants are
// declared least-severe first, and Severity ranks them; WorstOf aggregates the outcomes of a multi-fragment
// datagram's individual TX attempts into a single result for the caller.
type TxOutcome int

const (
	// PassedToTxRing means the L2 address was resolved and the frame was
	// handed to the TX ring.
	PassedToTxRing TxOutcome = iota
	// DroppedEtherGatewayCacheFail means the destination is off-link, a
	// gateway is configured, but the gateway's L2 address is not (yet)
	// cached; resolution was triggered and the frame was dropped.
	DroppedEtherGatewayCacheFail
	// DroppedEtherCacheFail means the destination is on-link but its L2
	// address is not (yet) cached; resolution was triggered and the frame
	// was dropped.
	DroppedEtherCacheFail
	// DroppedEtherNoGateway means the destination is off-link and no
	// default gateway is configured for this family.
	DroppedEtherNoGateway
	// DroppedEtherResolutionFail means resolution was already attempted
	// for this next-hop and negatively cached (no reply arrived).
	DroppedEtherResolutionFail
)

// Severity ranks outcomes so WorstOf can pick the most severe of several.
// Higher is more severe; PassedToTxRing is least severe (0).
func (o TxOutcome) Severity() int {
	switch o {
	case PassedToTxRing:
		return 0
	case DroppedEtherGatewayCacheFail:
		return 1
	case DroppedEtherCacheFail:
		return 2
	case DroppedEtherNoGateway:
		return 3
	case DroppedEtherResolutionFail:
		return 4
	default:
		return -1
	}
}

func (o TxOutcome) String() string {
	switch o {
	case PassedToTxRing:
		return "PASSED_TO_TX_RING"
	case DroppedEtherGatewayCacheFail:
		return "DROPPED_ETHER_GATEWAY_CACHE_FAIL"
	case DroppedEtherCacheFail:
		return "DROPPED_ETHER_CACHE_FAIL"
	case DroppedEtherNoGateway:
		return "DROPPED_ETHER_NO_GATEWAY"
	case DroppedEtherResolutionFail:
		return "DROPPED_ETHER_RESOLUTION_FAIL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(o))
	}
}

// WorstOf returns the most severe outcome among outcomes, or
// PassedToTxRing if outcomes is empty. Used to aggregate the per-fragment
// TX attempts of a single outbound datagram into one reported outcome.
func WorstOf(outcomes ...TxOutcome) TxOutcome {
	worst := PassedToTxRing
	for _, o := range outcomes {
		if o.Severity() > worst.Severity() {
			worst = o
		}
	}
	return worst
}
