package jupiter

import "context"

// SwapAPI is the subset of the Jupiter v6 API used to route swaps
type SwapAPI interface {
	// Quote requests a route for exchanging an exact input amount
	Quote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error)

	// Swap builds an unsigned transaction for a previously returned quote
	Swap(ctx context.Context, req SwapRequest) (*SwapResponse, error)

	// Close releases idle connections
	Close()
}

// Ensure Client implements SwapAPI interface
var _ SwapAPI = (*Client)(nil)
