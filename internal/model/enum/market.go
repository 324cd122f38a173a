package enum

// Market selects the venue product line.
type Market string

const (
	MarketSpot    Market = "spot"
	MarketFutures Market = "futures"
)

func (m Market) IsAvailable() bool {
	return m == MarketSpot || m == MarketFutures
}

// Feed is a public stream kind.
type Feed string

const (
	FeedKline1m   Feed = "kline_1m"
	FeedKline1h   Feed = "kline_1h"
	FeedTrade     Feed = "trade"
	FeedAggTrade  Feed = "aggTrade"
	FeedDepth     Feed = "depth"
	FeedMarkPrice Feed = "markPrice"
)

// Private feeds dispatched by the reconciliation engine.
const (
	FeedOrder    Feed = "order"
	FeedPosition Feed = "position"
)

// KlineFeed returns the kline feed of a timeframe such as "1m" or "4h".
func KlineFeed(timeframe string) Feed {
	return Feed("kline_" + timeframe)
}
