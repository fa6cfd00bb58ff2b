package api

import (
	"battle-arena/internal/config"
	"battle-arena/internal/constants"
	"battle-arena/internal/domain"
	"battle-arena/internal/failure"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// ServerEvent is one of MatchFoundEvent, MatchStatusEvent, RoundUpdateEvent or
// DraftPickEvent.
type ServerEvent interface {
	isServerEvent()
}

type MatchFoundEvent struct {
	Found domain.MatchFound
}

type MatchStatusEvent struct {
	Update domain.MatchStatusUpdate
}

type RoundUpdateEvent struct {
	MatchID string
	Round   domain.Round
}

type DraftPickEvent struct {
	MatchID string
	Pick    domain.DraftPick
}

func (MatchFoundEvent) isServerEvent()  {}
func (MatchStatusEvent) isServerEvent() {}
func (RoundUpdateEvent) isServerEvent() {}
func (DraftPickEvent) isServerEvent()   {}

const (
	eventMatchFound  = "MatchFound"
	eventMatchStatus = "MatchStatusUpdate"
	eventRoundUpdate = "RoundUpdate"
	eventDraftPick   = "DraftPick"
)

type rawEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type draftPickEventData struct {
	MatchID string `json:"matchId"`
	DraftPickResponse
}

func DecodeEvent(data []byte) (ServerEvent, error) {
	const op = "decodeEvent"
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, failure.Validation(op, err)
	}

	switch raw.Type {
	case eventMatchFound:
		var payload MatchFoundResponse
		if err := json.Unmarshal(raw.Data, &payload); err != nil {
			return nil, failure.Validation(op, err)
		}
		found, err := payload.toDomain()
		if err != nil {
			return nil, failure.Validation(op, err)
		}
		return MatchFoundEvent{Found: found}, nil

	case eventMatchStatus:
		var payload MatchStatusResponse
		if err := json.Unmarshal(raw.Data, &payload); err != nil {
			return nil, failure.Validation(op, err)
		}
		status := domain.MatchStatus(payload.Status)
		if payload.MatchID == "" || !status.Valid() {
			return nil, failure.Validation(op, fmt.Errorf("bad match status event %q", payload.Status))
		}
		return MatchStatusEvent{Update: domain.MatchStatusUpdate{MatchID: payload.MatchID, Status: status, Message: payload.Message}}, nil

	case eventRoundUpdate:
		var payload RoundResponse
		if err := json.Unmarshal(raw.Data, &payload); err != nil {
			return nil, failure.Validation(op, err)
		}
		round, err := payload.toDomain(nil)
		if err != nil {
			return nil, failure.Validation(op, err)
		}
		return RoundUpdateEvent{MatchID: payload.MatchID, Round: round}, nil

	case eventDraftPick:
		var payload draftPickEventData
		if err := json.Unmarshal(raw.Data, &payload); err != nil {
			return nil, failure.Validation(op, err)
		}
		if payload.MatchID == "" || payload.ParticipantID == "" || payload.UnitID == "" {
			return nil, failure.Validation(op, errors.New("draft pick event missing fields"))
		}
		return DraftPickEvent{MatchID: payload.MatchID, Pick: domain.DraftPick{
			ParticipantID: payload.ParticipantID,
			UnitID:        payload.UnitID,
			PickedAt:      payload.PickedAt,
		}}, nil
	}

	return nil, failure.Validation(op, fmt.Errorf("unknown event type %q", raw.Type))
}

// EventStream holds the push connection to the Battle service and redials
// after failures until its context ends.
type EventStream struct {
	url            string
	token          string
	reconnectDelay time.Duration
	logger         zerolog.Logger
}

func NewEventStream(cfg *config.Config, logger zerolog.Logger) *EventStream {
	return &EventStream{
		url:            cfg.BattleEventsURL,
		token:          cfg.BattleAccessToken,
		reconnectDelay: constants.EventReconnectDelay,
		logger:         logger.With().Str("component", "event_stream").Logger(),
	}
}

func (s *EventStream) Run(ctx context.Context, handle func(ServerEvent)) {
	for {
		err := s.consume(ctx, handle)
		if ctx.Err() != nil {
			s.logger.Info().Msg("event stream stopped")
			return
		}
		s.logger.Warn().Err(err).Dur("retry_in", s.reconnectDelay).Msg("event stream disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *EventStream) consume(ctx context.Context, handle func(ServerEvent)) error {
	conn, _, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + s.token}},
	})
	if err != nil {
		return fmt.Errorf("failed to dial event stream: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	s.logger.Info().Str("url", s.url).Msg("event stream connected")
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		ev, err := DecodeEvent(data)
		if err != nil {
			s.logger.Warn().Err(err).Msg("dropping malformed server event")
			continue
		}
		handle(ev)
	}
}
