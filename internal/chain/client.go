package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client is the RPC connection used to load live reserves.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// Head identifies the block reserves are pinned to.
type Head struct {
	ChainID *big.Int
	Number  uint64
	Hash    common.Hash
	Time    uint64
}

// Block returns the head number as a block argument for eth_call.
func (h Head) Block() *big.Int {
	return new(big.Int).SetUint64(h.Number)
}

// NewClient dials rpcURL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// Head reads the chain id and the latest header.
func (c *Client) Head(ctx context.Context) (Head, error) {
	chainID, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return Head{}, fmt.Errorf("chain id: %w", err)
	}
	header, err := c.ethClient.HeaderByNumber(ctx, nil)
	if err != nil {
		return Head{}, fmt.Errorf("latest header: %w", err)
	}
	return Head{
		ChainID: chainID,
		Number:  header.Number.Uint64(),
		Hash:    header.Hash(),
		Time:    header.Time,
	}, nil
}

// CallContract performs an eth_call.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}
