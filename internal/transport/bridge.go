package transport

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/copyfx/mirror/internal/events"
	"github.com/copyfx/mirror/pkg/logger"
)

// Bridge POSTs events to the receiving side. Delivery is single-shot:
// no retry policy is configured, a failed POST is the caller's to log and
// forget. Resty picks up HTTP(S)_PROXY from the environment.
type Bridge struct {
	client *resty.Client
	mapper SymbolMapper
}

// SymbolMapper rewrites venue symbol names just before the wire.
type SymbolMapper interface {
	Map(symbol string) string
}

func NewBridge(baseURL string, timeout time.Duration, mapper SymbolMapper) *Bridge {
	baseURL = strings.TrimSuffix(baseURL, "/")
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", "copyfx-mirror")
	return &Bridge{client: client, mapper: mapper}
}

// Deliver sends one event as a JSON object of string fields. Any non-2xx
// response is an error; the event is not resent.
func (b *Bridge) Deliver(ctx context.Context, ev events.Event) error {
	payload := ev.Payload()
	if b.mapper != nil {
		if sym, ok := payload["symbol"]; ok && sym != "" {
			payload["symbol"] = b.mapper.Map(sym)
		}
	}

	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post("/event")
	if err != nil {
		return errors.Wrap(err, "post event")
	}
	if resp.IsError() {
		return errors.Errorf("bridge rejected event: %s %s", resp.Status(), resp.String())
	}
	return nil
}

// Ping probes the bridge health endpoint, for startup checks and /healthz.
func (b *Bridge) Ping(ctx context.Context) error {
	resp, err := b.client.R().SetContext(ctx).Get("/health")
	if err != nil {
		return errors.Wrap(err, "bridge health")
	}
	if resp.IsError() {
		return errors.Errorf("bridge unhealthy: %s", resp.Status())
	}
	return nil
}

// DryRunDeliverer logs instead of sending, for paper runs.
type DryRunDeliverer struct {
	mapper SymbolMapper
}

func NewDryRunDeliverer(mapper SymbolMapper) *DryRunDeliverer {
	return &DryRunDeliverer{mapper: mapper}
}

func (d *DryRunDeliverer) Deliver(_ context.Context, ev events.Event) error {
	payload := ev.Payload()
	if d.mapper != nil {
		if sym, ok := payload["symbol"]; ok && sym != "" {
			payload["symbol"] = d.mapper.Map(sym)
		}
	}
	logger.WithField("payload", payload).Infof("dry-run %s", ev.Type())
	return nil
}
