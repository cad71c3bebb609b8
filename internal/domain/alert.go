package domain

// MetricType identifies which snapshot metric an alert rule watches.
type MetricType string

const (
	MetricPrice      MetricType = "price"
	MetricMarketCap  MetricType = "market_cap"
	MetricConfidence MetricType = "confidence"
	MetricHolders    MetricType = "holders"
)

// Operator is the comparison an alert rule applies to its metric.
type Operator string

const (
	OpGreater Operator = ">"
	OpLess    Operator = "<"
	OpEqual   Operator = "="
)

// ChannelType identifies a notification delivery channel.
type ChannelType string

const (
	ChannelWebhook  ChannelType = "webhook"
	ChannelTelegram ChannelType = "telegram"
)

// AlertRule is a user-owned rule evaluated against the scored snapshot
// stream. The evaluator only writes LastTriggered; everything else is
// managed by the user-facing layer.
type AlertRule struct {
	ID            string
	TokenAddress  string
	Metric        MetricType
	Op            Operator
	Threshold     float64
	IsActive      bool
	Channel       ChannelType
	Target        string // webhook URL or telegram chat ID
	CreatedAt     int64  // Unix timestamp in milliseconds
	LastTriggered int64  // 0 when never triggered
}

// Matches applies the rule's comparison to an observed value.
func (r *AlertRule) Matches(value float64) bool {
	switch r.Op {
	case OpGreater:
		return value > r.Threshold
	case OpLess:
		return value < r.Threshold
	case OpEqual:
		return value == r.Threshold
	default:
		return false
	}
}

// AlertEvent is the ephemeral record of one rule firing, handed to the
// dispatcher. Only the rule's LastTriggered is persisted.
type AlertEvent struct {
	EventID       string
	RuleID        string
	TokenAddress  string
	Metric        MetricType
	Op            Operator
	Threshold     float64
	ObservedValue float64
	Channel       ChannelType
	Target        string
	Timestamp     int64 // Unix timestamp in milliseconds
}
