// Package bus carries records between the gateway and the backend over
// Redis pub/sub. Two long-lived workers own one connection each: egress
// drains the in-memory queue into site-in, ingress subscribes to site-out
// and dispatches into the routing tables. Broker failure in either worker
// is fatal; a healthy deployment has supervision restart the process.
package bus

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chess-gateway/internal/ipc"
)

const (
	// ChanSiteIn is the gateway-to-backend channel.
	ChanSiteIn = "site-in"
	// ChanSiteOut is the backend-to-gateway channel.
	ChanSiteOut = "site-out"

	connectTimeout = 5 * time.Second
)

// NewRedis connects a client and verifies the broker is reachable.
func NewRedis(uri string) (*redis.Client, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

// Egress drains the queue into the site-in channel.
type Egress struct {
	log    *zap.Logger
	client *redis.Client
	queue  *Queue[string]

	published prometheus.Counter
}

func NewEgress(log *zap.Logger, client *redis.Client, queue *Queue[string], reg prometheus.Registerer) *Egress {
	e := &Egress{
		log:    log,
		client: client,
		queue:  queue,
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_site_in_published_total",
			Help: "Records published to the site-in channel.",
		}),
	}
	if reg != nil {
		reg.MustRegister(e.published)
	}
	return e
}

// Run blocks until the queue is closed. Any publish error aborts the
// process.
func (e *Egress) Run() {
	ctx := context.Background()
	for {
		msg, ok := e.queue.Pop()
		if !ok {
			return
		}
		receivers, err := e.client.Publish(ctx, ChanSiteIn, msg).Result()
		if err != nil {
			e.log.Fatal("publish to site-in failed", zap.String("record", msg), zap.Error(err))
		}
		if receivers == 0 {
			e.log.Error("no subscriber on site-in", zap.String("record", msg))
		}
		e.published.Inc()
	}
}

// Ingress subscribes to site-out and dispatches each record.
type Ingress struct {
	log      *zap.Logger
	client   *redis.Client
	dispatch func(ipc.SiteOut)

	received  prometheus.Counter
	malformed prometheus.Counter
}

func NewIngress(log *zap.Logger, client *redis.Client, dispatch func(ipc.SiteOut), reg prometheus.Registerer) *Ingress {
	i := &Ingress{
		log:      log,
		client:   client,
		dispatch: dispatch,
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_site_out_received_total",
			Help: "Records received on the site-out channel.",
		}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_site_out_malformed_total",
			Help: "Unparsable site-out records, logged and skipped.",
		}),
	}
	if reg != nil {
		reg.MustRegister(i.received, i.malformed)
	}
	return i
}

// Run blocks for the life of the process. Dispatch is synchronous, which
// keeps per-client ordering aligned with the broker stream. Losing the
// subscription aborts the process.
func (i *Ingress) Run() {
	ctx := context.Background()
	sub := i.client.Subscribe(ctx, ChanSiteOut)

	confirm, cancel := context.WithTimeout(ctx, connectTimeout)
	_, err := sub.Receive(confirm)
	cancel()
	if err != nil {
		i.log.Fatal("subscribe to site-out failed", zap.Error(err))
	}

	for msg := range sub.Channel() {
		i.received.Inc()
		rec, err := ipc.ParseSiteOut(msg.Payload)
		if err != nil {
			i.malformed.Inc()
			i.log.Warn("malformed site-out record",
				zap.String("record", msg.Payload), zap.Error(err))
			continue
		}
		i.dispatch(rec)
	}
	i.log.Fatal("site-out subscription closed")
}
