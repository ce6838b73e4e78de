// Package exchange hosts connectors for centralized venues, price pollers and
// the offline simulator. Every connector speaks the same Adapter contract so the
// stream controller can fail over between them.
package exchange

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

const (
	// ProviderBinance streams 1m klines from Binance public websockets.
	ProviderBinance = "binance"
	// ProviderBybit streams 1m klines from the Bybit v5 spot websocket.
	ProviderBybit = "bybit"
	// ProviderCoinGecko polls the CoinGecko simple price endpoint.
	ProviderCoinGecko = "coingecko"
	// ProviderSimulation emits a synthetic random walk for instruments with no venue.
	ProviderSimulation = "simulation"
)

var displayNames = map[string]string{
	ProviderBinance:    "Binance",
	ProviderBybit:      "Bybit",
	ProviderCoinGecko:  "CoinGecko",
	ProviderSimulation: "Simulation",
}

// DisplayName returns the human-facing name of a provider.
func DisplayName(provider string) string {
	if n, ok := displayNames[strings.ToLower(provider)]; ok {
		return n
	}
	return provider
}

// ErrUnsupportedSymbol is returned by a factory that has no mapping for the symbol.
var ErrUnsupportedSymbol = errors.New("symbol not supported by provider")

// Update carries exactly one of a pre-formed kline or a raw tick.
type Update struct {
	Kline *signal.Candle
	Tick  *signal.Tick
}

// Events is the callback set an adapter reports into. Callbacks are invoked from
// the adapter's own goroutine.
type Events struct {
	OnOpen    func()
	OnUpdate  func(Update)
	OnHistory func([]signal.Candle)
	OnClose   func(error)
}

func (e Events) open() {
	if e.OnOpen != nil {
		e.OnOpen()
	}
}

func (e Events) update(u Update) {
	if e.OnUpdate != nil {
		e.OnUpdate(u)
	}
}

func (e Events) history(c []signal.Candle) {
	if e.OnHistory != nil {
		e.OnHistory(c)
	}
}

func (e Events) closed(err error) {
	if e.OnClose != nil {
		e.OnClose(err)
	}
}

// Adapter is one market-data connection for one symbol. Start must not block on
// the network; Close releases the connection and is safe to call repeatedly.
// Adapters never reconnect on their own.
type Adapter interface {
	Name() string
	Start(symbol string, ev Events) error
	Close() error
}

// Factory builds a fresh adapter for a symbol.
type Factory func(symbol string) (Adapter, error)

// Provider pairs a configured provider name with its factory.
type Provider struct {
	Name string
	New  Factory
}

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = f
}

// Lookup returns the named provider.
func (r *Registry) Lookup(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := strings.ToLower(strings.TrimSpace(name))
	f, ok := r.factories[key]
	if !ok {
		return Provider{}, false
	}
	return Provider{Name: key, New: f}, true
}

// Providers resolves an ordered provider list, failing on the first unknown name.
func (r *Registry) Providers(names []string) ([]Provider, error) {
	out := make([]Provider, 0, len(names))
	for _, name := range names {
		p, ok := r.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown provider %q (known: %s)", name, strings.Join(r.Names(), ", "))
		}
		out = append(out, p)
	}
	return out, nil
}

// Names lists registered providers, sorted for determinism.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
