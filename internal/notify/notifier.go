// Package notify is the boundary to the external notification capability.
// The engine calls it at exactly three moments per session: tracking start,
// tracking end, and a peer's one-shot arrival. Delivery is fire-and-forget;
// failures are logged and never propagated.
package notify

import (
	"github.com/rs/zerolog/log"
)

type Dispatcher interface {
	TrackingStarted(peerName string)
	TrackingEnded(peerName string)
	PeerArrived(peerName string)
}

// LogDispatcher writes notification moments to the log. Real clients swap in
// a platform dispatcher; the engine does not care whether delivery succeeds.
type LogDispatcher struct{}

func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{}
}

func (d *LogDispatcher) TrackingStarted(peerName string) {
	log.Info().Str("peer", peerName).Msg("notify: tracking started")
}

func (d *LogDispatcher) TrackingEnded(peerName string) {
	log.Info().Str("peer", peerName).Msg("notify: tracking ended")
}

func (d *LogDispatcher) PeerArrived(peerName string) {
	log.Info().Str("peer", peerName).Msg("notify: peer arrived")
}
