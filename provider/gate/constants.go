package gate

import (
	"fmt"
	"time"

	"github.com/spooky-finn/gatews-bridge/infrastructure/logging"
)

var logger = logging.GetLogger().WithComponent("gate")

const ProviderName = "gate"

const (
	AppSpot    = "spot"
	AppFutures = "futures"
	AppPilot   = "pilot"

	SpotURL           = "wss://api.gateio.ws/ws/v4/"
	PilotURL          = "wss://api.gateio.ws/ws/v4/pilot"
	FuturesURL        = "wss://fx-ws.gateio.ws/v4/ws/"
	FuturesTestnetURL = "wss://fx-ws-testnet.gateio.ws/v4/ws/"

	SnapshotBaseURL = "https://api.gateio.ws/api/v4"

	AuthMethodApiKey = "api_key"

	DefaultMaxRetry     = 10
	DefaultPingInterval = 10 * time.Second
	DefaultBaseDelay    = 500 * time.Millisecond
)

const (
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventUpdate      = "update"
	EventAll         = "all"
	EventAPI         = "api"
)

const (
	ChannelSpotBalance         = "spot.balances"
	ChannelSpotFundingBalance  = "spot.funding_balances"
	ChannelSpotMarginBalance   = "spot.margin_balances"
	ChannelSpotCrossBalance    = "spot.cross_balances"
	ChannelSpotOrder           = "spot.orders"
	ChannelSpotUserTrade       = "spot.usertrades"
	ChannelSpotOrderBookUpdate = "spot.order_book_update"

	ChannelFuturesOrder           = "futures.orders"
	ChannelFuturesUserTrade       = "futures.usertrades"
	ChannelFuturesLiquidate       = "futures.liquidates"
	ChannelFuturesAutoDeleverage  = "futures.auto_deleverages"
	ChannelFuturesPositionClose   = "futures.position_closes"
	ChannelFuturesBalance         = "futures.balances"
	ChannelFuturesReduceRiskLimit = "futures.reduce_risk_limits"
	ChannelFuturesPosition        = "futures.positions"
	ChannelFuturesAutoOrder       = "futures.autoorders"
	ChannelFuturesOrderBookUpdate = "futures.order_book_update"

	ChannelPilotOrder          = "pilot.orders"
	ChannelPilotUserTrade      = "pilot.usertrades"
	ChannelPilotBalance        = "pilot.balances"
	ChannelPilotMarginBalance  = "pilot.margin_balances"
	ChannelPilotFundingBalance = "pilot.funding_balances"
	ChannelPilotCrossBalance   = "pilot.cross_balances"
)

// authChannels are the private channels of every app.
var authChannels = map[string]bool{
	ChannelSpotBalance:        true,
	ChannelSpotFundingBalance: true,
	ChannelSpotMarginBalance:  true,
	ChannelSpotCrossBalance:   true,
	ChannelSpotOrder:          true,
	ChannelSpotUserTrade:      true,

	ChannelFuturesOrder:           true,
	ChannelFuturesUserTrade:       true,
	ChannelFuturesLiquidate:       true,
	ChannelFuturesAutoDeleverage:  true,
	ChannelFuturesPositionClose:   true,
	ChannelFuturesBalance:         true,
	ChannelFuturesReduceRiskLimit: true,
	ChannelFuturesPosition:        true,
	ChannelFuturesAutoOrder:       true,

	ChannelPilotOrder:          true,
	ChannelPilotUserTrade:      true,
	ChannelPilotBalance:        true,
	ChannelPilotMarginBalance:  true,
	ChannelPilotFundingBalance: true,
	ChannelPilotCrossBalance:   true,
}

// RequiresAuth reports whether subscribing to channel needs api credentials.
func RequiresAuth(channel string) bool {
	return authChannels[channel]
}

// Endpoint resolves the websocket url of an app. Futures endpoints are
// per settle currency.
func Endpoint(app string, settle string, testnet bool) string {
	switch app {
	case AppFutures:
		if settle == "" {
			settle = "usdt"
		}
		if testnet {
			return FuturesTestnetURL + settle
		}
		return FuturesURL + settle
	case AppPilot:
		return PilotURL
	default:
		return SpotURL
	}
}

func pingChannel(app string) string {
	return fmt.Sprintf("%s.ping", app)
}

func loginChannel(app string) string {
	return fmt.Sprintf("%s.login", app)
}

func orderBookUpdateChannel(app string) string {
	return fmt.Sprintf("%s.order_book_update", app)
}
