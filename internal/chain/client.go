package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrBatchElement is returned when any element of a batch response carries an error.
var ErrBatchElement = errors.New("batch element failed")

const (
	defaultMaxRetries   = 2
	defaultRetryBackoff = 200 * time.Millisecond
)

// Options configures a Client.
type Options struct {
	URLs             []string
	MulticallAddress common.Address
	// MaxRetries is the number of extra attempts after a failure. Zero means
	// the default of 2; a negative value disables retries.
	MaxRetries        int
	RetryBackoff      time.Duration
	HTTPRetryMax      int
	RequestsPerSecond float64
	Logger            *zap.Logger
}

type endpoint struct {
	name string
	rpc  *rpc.Client
	eth  *ethclient.Client
}

// Client wraps go-ethereum RPC clients for a list of equivalent endpoints.
// Calls go to the active endpoint; a failed call rotates to the next one
// and is retried up to MaxRetries extra times.
type Client struct {
	endpoints []*endpoint

	mu      sync.Mutex
	current int

	multicallAddress common.Address
	maxRetries       int
	retryBackoff     time.Duration
	limiter          *rate.Limiter
	logger           *zap.Logger
}

// Dial connects to every configured endpoint.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if len(opts.URLs) == 0 {
		return nil, errors.New("no rpc urls configured")
	}

	httpClient := newHTTPClient(opts.HTTPRetryMax)
	endpoints := make([]*endpoint, 0, len(opts.URLs))
	for _, raw := range opts.URLs {
		rc, err := rpc.DialOptions(ctx, raw, rpc.WithHTTPClient(httpClient))
		if err != nil {
			for _, ep := range endpoints {
				ep.rpc.Close()
			}
			return nil, fmt.Errorf("dial %s: %w", redactURL(raw), err)
		}
		endpoints = append(endpoints, &endpoint{
			name: redactURL(raw),
			rpc:  rc,
			eth:  ethclient.NewClient(rc),
		})
	}

	return newClient(endpoints, opts), nil
}

func newClient(endpoints []*endpoint, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRetries := opts.MaxRetries
	switch {
	case maxRetries == 0:
		maxRetries = defaultMaxRetries
	case maxRetries < 0:
		maxRetries = 0
	}
	retryBackoff := opts.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = defaultRetryBackoff
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		endpoints:        endpoints,
		multicallAddress: opts.MulticallAddress,
		maxRetries:       maxRetries,
		retryBackoff:     retryBackoff,
		limiter:          limiter,
		logger:           logger,
	}
}

// Close closes all underlying RPC clients.
func (c *Client) Close() {
	for _, ep := range c.endpoints {
		if ep.rpc != nil {
			ep.rpc.Close()
		}
	}
}

// Endpoint returns the redacted name of the active endpoint.
func (c *Client) Endpoint() string {
	_, ep := c.active()
	return ep.name
}

func (c *Client) active() (int, *endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.endpoints[c.current]
}

// rotate advances the cursor only if no other caller already moved it away
// from the failed endpoint.
func (c *Client) rotate(failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != failed {
		return
	}
	c.current = (c.current + 1) % len(c.endpoints)
	c.logger.Warn("rotating rpc endpoint",
		zap.String("from", c.endpoints[failed].name),
		zap.String("to", c.endpoints[c.current].name),
	)
}

func (c *Client) withRotation(ctx context.Context, op string, fn func(context.Context, *endpoint) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryBackoff
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.maxRetries)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		idx, ep := c.active()
		err := fn(ctx, ep)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		c.rotate(idx)
		return fmt.Errorf("%s via %s: %w", op, ep.name, err)
	}, b, func(err error, wait time.Duration) {
		c.logger.Warn("rpc call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
}

// Call performs a single JSON-RPC request and decodes its result into result.
func (c *Client) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	return c.withRotation(ctx, method, func(ctx context.Context, ep *endpoint) error {
		return ep.rpc.CallContext(ctx, result, method, params...)
	})
}

// BatchCall sends one request per params entry in a single round trip.
// Any element error fails the whole call.
func (c *Client) BatchCall(ctx context.Context, method string, params [][]interface{}) ([]json.RawMessage, error) {
	if len(params) == 0 {
		return nil, nil
	}

	var results []json.RawMessage
	err := c.withRotation(ctx, method+" batch", func(ctx context.Context, ep *endpoint) error {
		out := make([]json.RawMessage, len(params))
		elems := make([]rpc.BatchElem, len(params))
		for i, p := range params {
			elems[i] = rpc.BatchElem{Method: method, Args: p, Result: &out[i]}
		}
		if err := ep.rpc.BatchCallContext(ctx, elems); err != nil {
			return err
		}
		for i, elem := range elems {
			if elem.Error != nil {
				return fmt.Errorf("%w: index %d: %v", ErrBatchElement, i, elem.Error)
			}
		}
		results = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ChainID returns the chain ID of the active endpoint.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.withRotation(ctx, "eth_chainId", func(ctx context.Context, ep *endpoint) error {
		v, err := ep.eth.ChainID(ctx)
		id = v
		return err
	})
	return id, err
}

// ValidateChainID checks that every endpoint serves the expected chain.
func (c *Client) ValidateChainID(ctx context.Context, expected uint64) error {
	for _, ep := range c.endpoints {
		id, err := ep.eth.ChainID(ctx)
		if err != nil {
			return fmt.Errorf("chain id via %s: %w", ep.name, err)
		}
		if !id.IsUint64() || id.Uint64() != expected {
			return fmt.Errorf("endpoint %s serves chain %s, expected %d", ep.name, id, expected)
		}
	}
	return nil
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var head uint64
	err := c.withRotation(ctx, "eth_blockNumber", func(ctx context.Context, ep *endpoint) error {
		v, err := ep.eth.BlockNumber(ctx)
		head = v
		return err
	})
	return head, err
}

// FilterLogs returns logs in the given range for addresses and topic0 filters.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topic0 []common.Hash,
) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}

	var logs []types.Log
	err := c.withRotation(ctx, "eth_getLogs", func(ctx context.Context, ep *endpoint) error {
		v, err := ep.eth.FilterLogs(ctx, query)
		logs = v
		return err
	})
	return logs, err
}

// CallContract performs an eth_call, pinned to blockNumber when it is not nil.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.withRotation(ctx, "eth_call", func(ctx context.Context, ep *endpoint) error {
		v, err := ep.eth.CallContract(ctx, msg, blockNumber)
		out = v
		return err
	})
	return out, err
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<rpc>"
	}
	return u.Scheme + "://" + u.Host
}
