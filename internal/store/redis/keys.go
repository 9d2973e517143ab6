package redis

// Key layout:
//
//	bars:src:{series}                 source stream (XADD, one bar per entry)
//	bars:{aggregator}:{series}        aggregated stream
//	bars:{aggregator}:{series}:latest last aggregated bar
//	pub:bars:{aggregator}:{series}    pubsub channel for aggregated bars

// SourceStreamKey is the stream holding the source bars of series.
func SourceStreamKey(series string) string { return "bars:src:" + series }

// StreamKey is the stream holding the output of aggregator for series.
func StreamKey(series, aggregator string) string { return "bars:" + aggregator + ":" + series }

// LatestKey holds the last output bar of aggregator for series.
func LatestKey(series, aggregator string) string { return StreamKey(series, aggregator) + ":latest" }

// PubSubChannel carries every output bar of aggregator for series.
func PubSubChannel(series, aggregator string) string { return "pub:" + StreamKey(series, aggregator) }
