// internal/adapter/storage/changefeed.go

package storage

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"geochat/internal/livequery"
)

// NATSChangeFeed carries coarse invalidation signals between writers and
// live views. A signal carries no payload; subscribers refetch their range
// from the store on receipt.
type NATSChangeFeed struct {
	conn *nats.Conn
	log  *logrus.Entry
}

// NewNATSChangeFeed creates a change feed on an existing connection.
func NewNATSChangeFeed(conn *nats.Conn, log *logrus.Entry) *NATSChangeFeed {
	return &NATSChangeFeed{conn: conn, log: log}
}

// Subscribe registers fn to run on every signal published to subject.
func (f *NATSChangeFeed) Subscribe(subject string, fn func()) (livequery.Subscription, error) {
	sub, err := f.conn.Subscribe(subject, func(_ *nats.Msg) {
		fn()
	})
	if err != nil {
		return nil, fmt.Errorf("error subscribing to %s: %w", subject, err)
	}
	return natsSubscription{sub: sub}, nil
}

// Notify publishes a change signal. Failures are logged and swallowed:
// a lost signal degrades freshness, not correctness, since views also
// refetch on recenter.
func (f *NATSChangeFeed) Notify(subject string) {
	if err := f.conn.Publish(subject, nil); err != nil {
		f.log.WithError(err).WithField("subject", subject).Warn("error publishing change signal")
	}
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}
