package hyperliquid

import "encoding/json"

// Wire structs for the info endpoint. Numeric fields arrive as strings
// (and occasionally as numbers), so everything numeric is interface{}
// and decoded through utils.SafeFloat.

type wireMeta struct {
	Universe []struct {
		Name string `json:"name"`
	} `json:"universe"`
}

type wireUserState struct {
	AssetPositions []struct {
		Position wirePosition `json:"position"`
	} `json:"assetPositions"`
	MarginSummary struct {
		AccountValue       interface{} `json:"accountValue"`
		TotalUnrealizedPnl interface{} `json:"totalUnrealizedPnl"`
	} `json:"marginSummary"`
}

type wirePosition struct {
	Coin          string      `json:"coin"`
	Szi           interface{} `json:"szi"`
	EntryPx       interface{} `json:"entryPx"`
	PositionValue interface{} `json:"positionValue"`
	LiquidationPx interface{} `json:"liquidationPx"`
	MarginUsed    interface{} `json:"marginUsed"`
	UnrealizedPnl interface{} `json:"unrealizedPnl"`
	Leverage      struct {
		Value interface{} `json:"value"`
	} `json:"leverage"`
}

type wireFill struct {
	Coin string      `json:"coin"`
	Px   interface{} `json:"px"`
	Sz   interface{} `json:"sz"`
	Side string      `json:"side"`
	Dir  string      `json:"dir"`
	Time int64       `json:"time"`
}

// wireWSMessage is one frame from the WebSocket feed.
type wireWSMessage struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// WSTrade is one trade from the "trades" channel. The liquidation marker
// is not documented consistently; two candidate keys are checked and
// either being present and truthy counts.
type WSTrade struct {
	Coin          string      `json:"coin"`
	Side          string      `json:"side"` // "B" buy taker, "A" sell taker
	Px            interface{} `json:"px"`
	Sz            interface{} `json:"sz"`
	Time          int64       `json:"time"` // milliseconds
	Users         []string    `json:"users"`
	Liquidation   interface{} `json:"liquidation,omitempty"`
	IsLiquidation interface{} `json:"isLiquidation,omitempty"`
}

// IsLiq reports whether the trade carries a truthy liquidation marker
// under either candidate key.
func (t WSTrade) IsLiq() bool {
	return truthy(t.Liquidation) || truthy(t.IsLiquidation)
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != "" && x != "false" && x != "0"
	case float64:
		return x != 0
	case map[string]interface{}:
		// Some feeds attach a liquidation detail object instead of a flag.
		return len(x) > 0
	default:
		return true
	}
}
