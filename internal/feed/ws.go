package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"main/internal/schema"
	"main/pkg/exception"
)

// StreamConfig controls the live trade-stream source.
type StreamConfig struct {
	URL     string   `json:"url"`
	Symbols []string `json:"symbols"`
	Source  uint16   `json:"source"`
}

// Stream consumes a venue trade websocket and emits normalized ticks.
type Stream struct {
	cfg  StreamConfig
	wss  *ws.WebSocket
	norm *Normalizer
}

// NewStream creates a trade-stream source for the configured symbols.
func NewStream(ctx context.Context, cfg StreamConfig, reg *schema.Registry) (*Stream, error) {
	if cfg.URL == "" {
		return nil, exception.ErrInvalidArgument
	}
	if len(cfg.Symbols) == 0 {
		return nil, exception.ErrInvalidArgument
	}

	return &Stream{
		cfg:  cfg,
		wss:  ws.New(ctx, cfg.URL),
		norm: NewNormalizer(reg),
	}, nil
}

// Close shuts the underlying websocket down.
func (s *Stream) Close() {
	s.wss.Close()
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type subscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

func (s *Stream) subscribe(ctx context.Context, symbol string, id int64) error {
	appendIntoRegister := true
	if err := s.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			payload := subscribeRequest{
				Method: "SUBSCRIBE",
				Params: []string{
					fmt.Sprintf("%s@trade", strings.ToLower(symbol)),
				},
				ID: id,
			}

			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}

			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var resp subscribeResponse
			if err := m.Unmarshal(&resp); err != nil || resp.ID != id {
				return false, nil
			}

			if resp.Result != nil {
				return false, errors.Errorf("subscribe, err: %+v", resp.Result)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait").With("symbol", symbol)
	}

	return nil
}

// tradeMessage is one trade print from the venue stream. Prices and sizes
// arrive as decimal strings.
type tradeMessage struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

// parseTrade converts a venue trade message into a raw tick. Venue
// timestamps are unix milliseconds.
func parseTrade(msg tradeMessage, source uint16) (RawTick, error) {
	price, err := decimal.NewFromString(msg.Price)
	if err != nil {
		return RawTick{}, errors.Wrap(err, "parse price").With("price", msg.Price)
	}

	qty, err := decimal.NewFromString(msg.Quantity)
	if err != nil {
		return RawTick{}, errors.Wrap(err, "parse quantity").With("quantity", msg.Quantity)
	}

	return RawTick{
		Symbol:  msg.Symbol,
		Price:   price.InexactFloat64(),
		Size:    qty.IntPart(),
		Source:  source,
		TsEvent: msg.TradeTime * 1e6,
		TsRecv:  msg.EventTime * 1e6,
	}, nil
}

// Run starts the websocket, subscribes every configured symbol, and emits
// normalized ticks until the context ends or the stream closes. Malformed
// and unknown trades are logged and skipped.
func (s *Stream) Run(ctx context.Context, emit func(schema.Tick) error) error {
	if err := s.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start trade stream")
	}

	for i, symbol := range s.cfg.Symbols {
		if err := s.subscribe(ctx, symbol, int64(i+1)); err != nil {
			return errors.Wrap(err, "subscribe trade stream").With("symbol", symbol)
		}
	}

	ch, cancel := s.wss.Subscribe()
	defer cancel()

	for {
		select {
		case <-sys.Shutdown():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return exception.ErrFeedClosed
			}

			msg, ok := ws.ReadMessage[tradeMessage](m)
			if !ok || msg.EventType != "trade" {
				continue
			}

			raw, err := parseTrade(msg, s.cfg.Source)
			if err != nil {
				logs.Errorf("parse trade %s, err: %+v", msg.Symbol, err)
				continue
			}

			tick, err := s.norm.Normalize(raw)
			if err != nil {
				logs.Errorf("normalize trade %s, err: %+v", msg.Symbol, err)
				continue
			}

			if err := emit(tick); err != nil {
				return err
			}
		}
	}
}
