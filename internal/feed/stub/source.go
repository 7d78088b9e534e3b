// Package stub generates a deterministic synthetic launch feed for dry
// runs. Tokens cycle through launch profiles so every part of the entry
// and exit pipeline gets exercised without a live endpoint.
package stub

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/mr-tron/base58"

	"pump-sniper/internal/domain"
	"pump-sniper/internal/feed"
	"pump-sniper/internal/solana"
)

// profile shapes the synthetic market a token sees after launch.
type profile struct {
	name        string
	buysPerTick int
	sellChance  float64
	drift       float64 // per-tick price multiplier
	buySol      float64
}

// Launch profiles, cycled in order. The pump profile clears the entry
// gates; fade and rug exercise rejection and stop paths.
var profiles = []profile{
	{name: "pump", buysPerTick: 4, sellChance: 0.1, drift: 1.08, buySol: 0.4},
	{name: "drift", buysPerTick: 2, sellChance: 0.3, drift: 1.01, buySol: 0.15},
	{name: "fade", buysPerTick: 1, sellChance: 0.6, drift: 0.97, buySol: 0.05},
	{name: "rug", buysPerTick: 3, sellChance: 0.2, drift: 0.80, buySol: 0.3},
}

// Source implements feed.LaunchSource with generated data.
type Source struct {
	interval time.Duration
	tick     time.Duration
	rng      *rand.Rand
	rngMu    sync.Mutex

	launches chan domain.TokenCandidate

	tokens   map[string]*stubToken
	tokensMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type stubToken struct {
	candidate domain.TokenCandidate
	profile   profile

	mu        sync.Mutex
	price     float64
	curveFill float64
	events    chan feed.TradeEvent // nil while nobody is subscribed
}

var _ feed.LaunchSource = (*Source)(nil)

// NewSource creates a generator emitting one launch per interval with
// trade ticks at the given cadence. The seed fixes the whole run.
func NewSource(interval, tick time.Duration, seed int64) *Source {
	return &Source{
		interval: interval,
		tick:     tick,
		rng:      rand.New(rand.NewSource(seed)),
		launches: make(chan domain.TokenCandidate, 64),
		tokens:   make(map[string]*stubToken),
		done:     make(chan struct{}),
	}
}

// Start begins emitting launches until ctx is cancelled or Close is called.
func (s *Source) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		seq := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
				s.emitLaunch(seq)
				seq++
			}
		}
	}()
}

// Launches returns the new-token channel.
func (s *Source) Launches() <-chan domain.TokenCandidate {
	return s.launches
}

// SubscribeTrades attaches to the synthetic trade stream for a mint. The
// token's price path runs whether or not someone is subscribed, so a
// resubscription resumes from live prices.
func (s *Source) SubscribeTrades(_ context.Context, mint string) (<-chan feed.TradeEvent, error) {
	s.tokensMu.Lock()
	token, ok := s.tokens[mint]
	s.tokensMu.Unlock()

	if !ok {
		select {
		case <-s.done:
			return nil, feed.ErrSubscriptionClosed
		default:
		}
		return nil, fmt.Errorf("unknown mint %s", mint)
	}

	token.mu.Lock()
	if token.events == nil {
		token.events = make(chan feed.TradeEvent, 256)
	}
	ch := token.events
	token.mu.Unlock()
	return ch, nil
}

// UnsubscribeTrades detaches the current subscriber. The token and its
// price path stay alive for later subscriptions.
func (s *Source) UnsubscribeTrades(mint string) {
	s.tokensMu.Lock()
	token, ok := s.tokens[mint]
	s.tokensMu.Unlock()

	if !ok {
		return
	}
	token.mu.Lock()
	if token.events != nil {
		close(token.events)
		token.events = nil
	}
	token.mu.Unlock()
}

// Close stops the generator and closes all channels.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()

		s.tokensMu.Lock()
		for mint, token := range s.tokens {
			token.mu.Lock()
			if token.events != nil {
				close(token.events)
				token.events = nil
			}
			token.mu.Unlock()
			delete(s.tokens, mint)
		}
		s.tokensMu.Unlock()
		close(s.launches)
	})
	return nil
}

// emitLaunch generates one candidate and registers its token state.
func (s *Source) emitLaunch(seq int) {
	prof := profiles[seq%len(profiles)]
	mint := s.randomAddress()
	creator := s.randomAddress()
	price := 2.8e-8 * (1 + s.randFloat()*0.4)

	candidate := domain.TokenCandidate{
		Mint:         mint,
		Name:         fmt.Sprintf("Stub Token %d", seq),
		Symbol:       fmt.Sprintf("STB%d", seq),
		Creator:      creator,
		BondingCurve: solana.DeriveBondingCurve(mint),
		CurveFillPct: 1.5 + s.randFloat()*5,
		InitialPrice: price,
		CreatedAt:    time.Now(),
		TxSignature:  fmt.Sprintf("stub-launch-%d", seq),
	}

	token := &stubToken{
		candidate: candidate,
		profile:   prof,
		price:     price,
		curveFill: candidate.CurveFillPct,
	}

	s.tokensMu.Lock()
	s.tokens[mint] = token
	s.tokensMu.Unlock()

	s.wg.Add(1)
	go s.runToken(token)

	select {
	case s.launches <- candidate:
	case <-s.done:
	}
}

// runToken drives one token's price path for the life of the source,
// feeding whichever subscriber is currently attached.
func (s *Source) runToken(token *stubToken) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	seq := 0
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			for i := 0; i < token.profile.buysPerTick; i++ {
				s.emitTrade(token, seq)
				seq++
			}
		}
	}
}

// emitTrade advances the price path one step and hands the event to the
// subscriber, if any. A full subscriber buffer drops the event rather
// than stalling the path.
func (s *Source) emitTrade(token *stubToken, seq int) {
	isBuy := s.randFloat() > token.profile.sellChance

	token.mu.Lock()
	defer token.mu.Unlock()

	token.price *= token.profile.drift * (0.99 + s.randFloat()*0.02)
	token.curveFill += token.profile.buySol / 85 * 100
	if token.curveFill > 100 {
		token.curveFill = 100
	}

	if token.events == nil {
		return
	}
	event := feed.TradeEvent{
		Mint:         token.candidate.Mint,
		Signature:    fmt.Sprintf("stub-%s-%d", token.candidate.Symbol, seq),
		Trader:       s.randomAddress(),
		IsBuy:        isBuy,
		SolAmount:    token.profile.buySol * (0.5 + s.randFloat()),
		TokenAmount:  token.profile.buySol / token.price,
		Price:        token.price,
		CurveFillPct: token.curveFill,
		Timestamp:    time.Now(),
	}
	select {
	case token.events <- event:
	default:
	}
}

// randomAddress generates a deterministic valid ed25519 public key.
func (s *Source) randomAddress() string {
	s.rngMu.Lock()
	pub, _, err := ed25519.GenerateKey(s.rng)
	s.rngMu.Unlock()
	if err != nil {
		return ""
	}
	return base58.Encode(pub)
}

func (s *Source) randFloat() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64()
}
