// Package broadcast fans envelopes out to the other live execution contexts.
// Delivery is best effort: every send is attempted once and the outcome is
// counted, never retried.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/atinyakov/gnoixus/internal/models"
)

// DefaultSendTimeout bounds a single delivery.
const DefaultSendTimeout = 5 * time.Second

// ErrRejected is returned when a peer answers with success=false.
var ErrRejected = errors.New("peer rejected message")

// PeerLister returns the contexts currently considered alive.
type PeerLister interface {
	Live(ctx context.Context) ([]models.Peer, error)
}

// Transport delivers one envelope to one peer.
type Transport interface {
	Send(ctx context.Context, peer models.Peer, env models.Envelope) error
}

// Broadcaster sends notifications to every live content context.
type Broadcaster struct {
	peers     PeerLister
	transport Transport
	self      string
	timeout   time.Duration
	log       *zap.Logger
}

// New returns a Broadcaster that never delivers to the host identified by self.
func New(peers PeerLister, transport Transport, self string, log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		peers:     peers,
		transport: transport,
		self:      self,
		timeout:   DefaultSendTimeout,
		log:       log,
	}
}

// Broadcast sends env to every live content context except from and the
// host itself. Sends run concurrently; failures are counted and logged.
func (b *Broadcaster) Broadcast(ctx context.Context, from string, env models.Envelope) models.BroadcastResult {
	peers, err := b.peers.Live(ctx)
	if err != nil {
		b.log.Warn("failed to list live contexts", zap.Error(err))
		return models.BroadcastResult{Err: err}
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		res models.BroadcastResult
	)
	for _, peer := range peers {
		if peer.ID == from || peer.ID == b.self || peer.Kind != models.KindContent {
			continue
		}
		wg.Add(1)
		go func(peer models.Peer) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, b.timeout)
			defer cancel()

			err := b.transport.Send(sendCtx, peer, env)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				res.Err = multierr.Append(res.Err, fmt.Errorf("%s: %w", peer.ID, err))
				b.log.Warn("broadcast delivery failed", zap.String("peer", peer.ID), zap.Error(err))
				return
			}
			res.Delivered++
		}(peer)
	}
	wg.Wait()

	b.log.Debug("broadcast finished",
		zap.String("type", env.Type),
		zap.Int("delivered", res.Delivered),
		zap.Int("failed", res.Failed),
	)
	return res
}

// checkReply decodes a peer response and reports success=false as ErrRejected.
func checkReply(data []byte) error {
	var st models.Status
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	if !st.Success {
		if st.Error != "" {
			return fmt.Errorf("%w: %s", ErrRejected, st.Error)
		}
		return ErrRejected
	}
	return nil
}
