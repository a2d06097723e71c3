package events

// Action is the closed set of log-line action types the target site emits.
// Tokens outside the vocabulary parse to ActionUnknown; dispatch on Action is
// an exhaustive switch so a new token cannot silently change behavior.
type Action int

const (
	ActionUnknown Action = iota
	ActionQueueJoin
	ActionSessionStart
	ActionSessionEnd
	ActionQueueCancel
	ActionSessionPreflight
)

// ParseAction maps the verbatim action token of a log line to an Action.
func ParseAction(token string) Action {
	switch token {
	case "QUEUE_JOIN":
		return ActionQueueJoin
	case "SESSION_START":
		return ActionSessionStart
	case "SESSION_END":
		return ActionSessionEnd
	case "QUEUE_CANCEL":
		return ActionQueueCancel
	case "SESSION_PREFLIGHT":
		return ActionSessionPreflight
	default:
		return ActionUnknown
	}
}

func (a Action) String() string {
	switch a {
	case ActionQueueJoin:
		return "QUEUE_JOIN"
	case ActionSessionStart:
		return "SESSION_START"
	case ActionSessionEnd:
		return "SESSION_END"
	case ActionQueueCancel:
		return "QUEUE_CANCEL"
	case ActionSessionPreflight:
		return "SESSION_PREFLIGHT"
	default:
		return "UNKNOWN"
	}
}
