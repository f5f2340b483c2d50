// Package gas reads gas prices and estimates from an Ethereum JSON-RPC node.
package gas

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
)

const weiPerGwei = 1e9

// ErrGasPriceUnavailable is returned when the node fails and no price was ever read.
var ErrGasPriceUnavailable = errors.New("gas price unavailable")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Client is the subset of ethclient.Client the oracle uses.
type Client interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// Config holds the oracle's settings.
type Config struct {
	Timeout time.Duration
	// DefaultGasUnits is returned by EstimateGas when the node cannot estimate.
	DefaultGasUnits uint64
	Logger          Logger
}

func (c *Config) validate() error {
	if c.Timeout <= 0 {
		return errors.New("config: Timeout must be positive")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Oracle reports gas prices in gwei. When the node fails it falls back to the
// last price it read successfully.
type Oracle struct {
	client    Client
	cfg       Config
	lastKnown atomic.Uint64 // float64 bits, gwei
}

// New creates an oracle on top of client.
func New(client Client, cfg Config) (*Oracle, error) {
	if client == nil {
		return nil, errors.New("config: Client is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Oracle{client: client, cfg: cfg}, nil
}

// Dial connects to the node at url and creates an oracle.
func Dial(ctx context.Context, url string, cfg Config) (*Oracle, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	o, err := New(client, cfg)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return o, client, nil
}

// GasPriceGwei returns the node's suggested gas price in gwei.
func (o *Oracle) GasPriceGwei(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	wei, err := o.client.SuggestGasPrice(ctx)
	if err == nil {
		var gwei float64
		gwei, err = WeiToGwei(wei)
		if err == nil {
			o.lastKnown.Store(math.Float64bits(gwei))
			return gwei, nil
		}
	}

	last, ok := o.LastKnown()
	if !ok {
		return 0, fmt.Errorf("%w: %w", ErrGasPriceUnavailable, err)
	}
	o.cfg.Logger.Warn("Gas price query failed, using last known price", "error", err, "gas_price_gwei", last)
	return last, nil
}

// LastKnown returns the last price read successfully.
func (o *Oracle) LastKnown() (float64, bool) {
	bits := o.lastKnown.Load()
	if bits == 0 {
		return 0, false
	}
	return math.Float64frombits(bits), true
}

// EstimateGas estimates the gas units of msg, returning DefaultGasUnits when
// the node cannot.
func (o *Oracle) EstimateGas(ctx context.Context, msg ethereum.CallMsg) uint64 {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	units, err := o.client.EstimateGas(ctx, msg)
	if err != nil {
		o.cfg.Logger.Warn("Gas estimation failed, using default", "error", err, "gas_units", o.cfg.DefaultGasUnits)
		return o.cfg.DefaultGasUnits
	}
	return units
}

// WeiToGwei converts a wei amount to gwei.
func WeiToGwei(wei *big.Int) (float64, error) {
	if wei == nil || wei.Sign() < 0 {
		return 0, fmt.Errorf("invalid wei amount %v", wei)
	}
	v, overflow := uint256.FromBig(wei)
	if overflow {
		return 0, fmt.Errorf("wei amount %v overflows 256 bits", wei)
	}
	whole, frac := new(uint256.Int).DivMod(v, uint256.NewInt(weiPerGwei), new(uint256.Int))
	f, _ := new(big.Float).SetInt(whole.ToBig()).Float64()
	return f + float64(frac.Uint64())/weiPerGwei, nil
}
