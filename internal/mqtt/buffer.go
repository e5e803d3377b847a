package mqtt

import "github.com/rs/zerolog"

// bufferedMsg is a serialized message held for replay after a reconnect.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable. When full
// it discards the oldest message. The caller synchronizes access.
type outbox struct {
	msgs    []bufferedMsg
	limit   int
	dropped int
	logger  zerolog.Logger
}

func newOutbox(limit int, logger zerolog.Logger) *outbox {
	return &outbox{
		msgs:   make([]bufferedMsg, 0, limit),
		limit:  limit,
		logger: logger,
	}
}

func (o *outbox) push(msg bufferedMsg) {
	if len(o.msgs) < o.limit {
		o.msgs = append(o.msgs, msg)
		return
	}
	if o.dropped == 0 {
		o.logger.Warn().Int("limit", o.limit).Msg("mqtt buffer full, dropping oldest")
	}
	o.dropped++
	copy(o.msgs, o.msgs[1:])
	o.msgs[len(o.msgs)-1] = msg
}

// drain returns the held messages oldest first and how many were discarded
// since the previous drain, and empties the outbox.
func (o *outbox) drain() ([]bufferedMsg, int) {
	dropped := o.dropped
	o.dropped = 0
	if len(o.msgs) == 0 {
		return nil, dropped
	}
	out := make([]bufferedMsg, len(o.msgs))
	copy(out, o.msgs)
	o.msgs = o.msgs[:0]
	return out, dropped
}

func (o *outbox) len() int {
	return len(o.msgs)
}
