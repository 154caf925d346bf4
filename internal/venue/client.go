package venue

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/copyfx/mirror/internal/domain"
)

// ErrNotFound marks a ticket the gateway no longer knows. Callers treat it
// differently from transient failures: the record is gone, not unreachable.
var ErrNotFound = errors.New("venue: not found")

// Client reads trading state from the terminal gateway over REST.
// It is the live-truth side of reconciliation; it never mutates anything.
type Client struct {
	client *resty.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("Accept", "application/json")
	return &Client{client: c}
}

type positionDTO struct {
	Ticket     int64   `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Volume     float64 `json:"volume"`
	OpenPrice  float64 `json:"open_price"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
	Magic      int     `json:"magic"`
	Comment    string  `json:"comment"`
}

type orderDTO struct {
	Ticket     int64   `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Type       string  `json:"type"`
	Side       string  `json:"side"`
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price"`
	StopPrice  float64 `json:"stop_price"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
	// ExpirationMS is unix milliseconds; 0 means good-till-cancel.
	ExpirationMS int64 `json:"expiration_ms"`
	Magic        int   `json:"magic"`
}

type symbolDTO struct {
	Symbol       string  `json:"symbol"`
	ContractSize float64 `json:"contract_size"`
	VolumeMin    float64 `json:"vol_min"`
	VolumeMax    float64 `json:"vol_max"`
	VolumeStep   float64 `json:"vol_step"`
}

// ListPositions returns open positions, filtered to magic when non-zero.
func (c *Client) ListPositions(ctx context.Context, magic int) ([]domain.Position, error) {
	var dtos []positionDTO
	req := c.client.R().SetContext(ctx).SetResult(&dtos)
	if magic != 0 {
		req.SetQueryParam("magic", fmt.Sprint(magic))
	}
	resp, err := req.Get("/positions")
	if err != nil {
		return nil, errors.Wrap(err, "list positions")
	}
	if resp.IsError() {
		return nil, errors.Errorf("list positions: %s", resp.Status())
	}
	out := make([]domain.Position, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// ListPendingOrders returns live pending orders, filtered to magic when
// non-zero.
func (c *Client) ListPendingOrders(ctx context.Context, magic int) ([]domain.PendingOrder, error) {
	var dtos []orderDTO
	req := c.client.R().SetContext(ctx).SetResult(&dtos)
	if magic != 0 {
		req.SetQueryParam("magic", fmt.Sprint(magic))
	}
	resp, err := req.Get("/orders")
	if err != nil {
		return nil, errors.Wrap(err, "list pending orders")
	}
	if resp.IsError() {
		return nil, errors.Errorf("list pending orders: %s", resp.Status())
	}
	out := make([]domain.PendingOrder, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// LookupPosition reads one position by ticket. Returns ErrNotFound when the
// gateway reports the ticket gone.
func (c *Client) LookupPosition(ctx context.Context, ticket int64) (domain.Position, error) {
	var dto positionDTO
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&dto).
		Get(fmt.Sprintf("/positions/%d", ticket))
	if err != nil {
		return domain.Position{}, errors.Wrapf(err, "lookup position %d", ticket)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return domain.Position{}, ErrNotFound
	}
	if resp.IsError() {
		return domain.Position{}, errors.Errorf("lookup position %d: %s", ticket, resp.Status())
	}
	return dto.toDomain(), nil
}

// SymbolMeta reads the trade specification for one symbol.
func (c *Client) SymbolMeta(ctx context.Context, symbol string) (domain.SymbolMeta, error) {
	var dto symbolDTO
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&dto).
		Get("/symbols/" + symbol)
	if err != nil {
		return domain.SymbolMeta{}, errors.Wrapf(err, "symbol meta %s", symbol)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return domain.SymbolMeta{}, ErrNotFound
	}
	if resp.IsError() {
		return domain.SymbolMeta{}, errors.Errorf("symbol meta %s: %s", symbol, resp.Status())
	}
	return domain.SymbolMeta{
		Symbol:       dto.Symbol,
		ContractSize: dto.ContractSize,
		VolumeMin:    dto.VolumeMin,
		VolumeMax:    dto.VolumeMax,
		VolumeStep:   dto.VolumeStep,
	}, nil
}

// Ping probes the gateway, for startup checks and /healthz.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.R().SetContext(ctx).Get("/health")
	if err != nil {
		return errors.Wrap(err, "gateway health")
	}
	if resp.IsError() {
		return errors.Errorf("gateway unhealthy: %s", resp.Status())
	}
	return nil
}

func (d positionDTO) toDomain() domain.Position {
	return domain.Position{
		Ticket:     d.Ticket,
		Symbol:     d.Symbol,
		Side:       domain.Side(strings.ToLower(d.Side)),
		Volume:     d.Volume,
		OpenPrice:  d.OpenPrice,
		StopLoss:   d.StopLoss,
		TakeProfit: d.TakeProfit,
		Magic:      d.Magic,
		Comment:    d.Comment,
	}
}

func (d orderDTO) toDomain() domain.PendingOrder {
	o := domain.PendingOrder{
		Ticket:     d.Ticket,
		Symbol:     d.Symbol,
		Kind:       domain.OrderKind(strings.ToLower(d.Type)),
		Side:       domain.Side(strings.ToLower(d.Side)),
		Volume:     d.Volume,
		Price:      d.Price,
		StopPrice:  d.StopPrice,
		StopLoss:   d.StopLoss,
		TakeProfit: d.TakeProfit,
		Magic:      d.Magic,
	}
	if d.ExpirationMS > 0 {
		t := time.UnixMilli(d.ExpirationMS).UTC()
		o.Expiration = &t
	}
	return o
}
