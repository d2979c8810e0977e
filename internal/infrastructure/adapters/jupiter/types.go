package jupiter

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// DefaultBaseURL is the public Jupiter v6 swap API
const DefaultBaseURL = "https://quote-api.jup.ag/v6"

// MaxRequestsPerSecond is the client-side request budget
const MaxRequestsPerSecond = 10

// RoutePlanStep is one hop of a quoted route
type RoutePlanStep struct {
	SwapInfo map[string]interface{} `json:"swapInfo,omitempty"`
	Percent  *int                   `json:"percent,omitempty"`
}

// QuoteResponse is the /quote payload. Amounts are decimal strings of smallest units.
type QuoteResponse struct {
	InputMint            string          `json:"inputMint"`
	InAmount             string          `json:"inAmount"`
	OutputMint           string          `json:"outputMint"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          int             `json:"slippageBps"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	RoutePlan            []RoutePlanStep `json:"routePlan"`
	ContextSlot          *int64          `json:"contextSlot,omitempty"`
	TimeTaken            *float64        `json:"timeTaken,omitempty"`

	// raw holds the body exactly as received so /swap gets the quote unmodified
	raw json.RawMessage
}

// UnmarshalJSON keeps a copy of the original body alongside the decoded fields
func (q *QuoteResponse) UnmarshalJSON(data []byte) error {
	type plain QuoteResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*q = QuoteResponse(p)
	q.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON echoes the original body when the quote came from the API
func (q QuoteResponse) MarshalJSON() ([]byte, error) {
	if len(q.raw) > 0 {
		return q.raw, nil
	}
	type plain QuoteResponse
	return json.Marshal(plain(q))
}

// OutAmountInt parses OutAmount
func (q *QuoteResponse) OutAmountInt() (int64, error) {
	return parseAmount("outAmount", q.OutAmount)
}

// ThresholdInt parses OtherAmountThreshold
func (q *QuoteResponse) ThresholdInt() (int64, error) {
	return parseAmount("otherAmountThreshold", q.OtherAmountThreshold)
}

// InAmountInt parses InAmount
func (q *QuoteResponse) InAmountInt() (int64, error) {
	return parseAmount("inAmount", q.InAmount)
}

func parseAmount(field, v string) (int64, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, v, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: negative", field, v)
	}
	return n, nil
}

// QuoteRequest are the /quote query parameters
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      int64
	SlippageBps int
}

// SwapRequest is the /swap body
type SwapRequest struct {
	QuoteResponse    *QuoteResponse `json:"quoteResponse"`
	UserPublicKey    string         `json:"userPublicKey"`
	WrapAndUnwrapSol bool           `json:"wrapAndUnwrapSol"`
}

// SwapResponse carries the unsigned base64 transaction built by the API
type SwapResponse struct {
	SwapTransaction           string `json:"swapTransaction"`
	LastValidBlockHeight      *int64 `json:"lastValidBlockHeight,omitempty"`
	PrioritizationFeeLamports *int64 `json:"prioritizationFeeLamports,omitempty"`
}

// ErrorResponse is the API's error body
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode,omitempty"`
}
