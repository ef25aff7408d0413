package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/recruitflow/recruitflow/internal/models"
)

// Constants for service channel configuration.
const (
	// DefaultChannelBufferSize is the buffer of the inbound message channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds non-blocking channel pushes.
	DefaultChannelTimeout = 1 * time.Second
)

// Service is the pluggable chat transport abstraction consumed by the
// conversation engine.
type Service interface {
	// Start begins background event processing.
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// SendMessage sends text to a peer and returns the transport message id.
	SendMessage(ctx context.Context, peer models.PeerID, text string) (string, error)

	// ForwardContent delivers a stored content asset to a peer.
	ForwardContent(ctx context.Context, peer models.PeerID, link string) error

	// RecentHistory returns up to limit recent turns with the peer.
	RecentHistory(ctx context.Context, peer models.PeerID, limit int) ([]models.HistoryTurn, error)

	// ResolveEntity resolves a username/phone reference to an entity.
	ResolveEntity(ctx context.Context, ref string) (*models.Entity, error)

	// FindGroup returns the peer id of a joined group by its title.
	FindGroup(ctx context.Context, title string) (models.PeerID, error)

	// Messages returns the channel of inbound message events.
	Messages() <-chan models.InboundMessage
}

// sender is the minimal outbound surface of the transport client,
// split out so the service can be tested without a live connection.
type sender interface {
	SendText(ctx context.Context, peer models.PeerID, text string) (string, error)
	ResolveEntity(ctx context.Context, ref string) (*models.Entity, error)
	FindGroup(ctx context.Context, title string) (models.PeerID, error)
}

// ClientService implements Service over the Whatsmeow-backed client.
type ClientService struct {
	client   sender
	waClient *Client // full client for event handling, nil under test
	history  *historyBook
	messages chan models.InboundMessage
	done     chan struct{}
}

// NewClientService creates a transport service wrapping the given client.
func NewClientService(client sender) *ClientService {
	s := &ClientService{
		client:   client,
		history:  newHistoryBook(),
		messages: make(chan models.InboundMessage, DefaultChannelBufferSize),
		done:     make(chan struct{}),
	}
	if full, ok := client.(*Client); ok {
		s.waClient = full
		slog.Debug("ClientService created with full client for event handling")
	} else {
		slog.Debug("ClientService created with interface client (likely mock)")
	}
	return s
}

// Start registers the inbound event handler.
func (s *ClientService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("ClientService no full client, skipping event handling")
		return nil
	}
	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		if msg, ok := evt.(*events.Message); ok {
			s.handleIncomingMessage(msg)
		}
	})
	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.waClient.Close()
	}()
	slog.Debug("ClientService event handler registered")
	return nil
}

// Stop stops background processing and closes the message channel.
func (s *ClientService) Stop() error {
	slog.Info("ClientService stopping")
	close(s.done)
	close(s.messages)
	return nil
}

// SendMessage sends text and records it in the history book.
func (s *ClientService) SendMessage(ctx context.Context, peer models.PeerID, text string) (string, error) {
	id, err := s.client.SendText(ctx, peer, text)
	if err != nil {
		return "", err
	}
	s.history.record(peer, models.ActorBot, text)
	return id, nil
}

// ForwardContent delivers a stored content asset. The asset link is
// validated against the known formats first; an invalid link is a
// configuration error, not a transport one.
func (s *ClientService) ForwardContent(ctx context.Context, peer models.PeerID, link string) error {
	if _, err := ParseContentLink(link); err != nil {
		return err
	}
	if _, err := s.client.SendText(ctx, peer, link); err != nil {
		return fmt.Errorf("forward content to %d: %w", peer, err)
	}
	s.history.record(peer, models.ActorBot, link)
	return nil
}

// RecentHistory returns up to limit recent turns with the peer.
func (s *ClientService) RecentHistory(_ context.Context, peer models.PeerID, limit int) ([]models.HistoryTurn, error) {
	return s.history.recent(peer, limit), nil
}

// ResolveEntity resolves a phone reference to an entity.
func (s *ClientService) ResolveEntity(ctx context.Context, ref string) (*models.Entity, error) {
	return s.client.ResolveEntity(ctx, ref)
}

// FindGroup returns the peer id of a joined group by its title.
func (s *ClientService) FindGroup(ctx context.Context, title string) (models.PeerID, error) {
	return s.client.FindGroup(ctx, title)
}

// Messages returns the inbound message channel.
func (s *ClientService) Messages() <-chan models.InboundMessage {
	return s.messages
}

func (s *ClientService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil {
		return
	}
	var text string
	hasMedia := false
	switch {
	case evt.Message.Conversation != nil:
		text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = *evt.Message.ExtendedTextMessage.Text
	default:
		// Media and other non-text payloads still matter to the flow
		// (proof screenshots, voice replies), so they pass through as
		// empty-text events with the media flag set.
		hasMedia = true
	}

	peerID, err := jidPeerID(evt.Info.Sender)
	if err != nil {
		slog.Debug("ClientService dropping message with non-numeric sender", "sender", evt.Info.Sender.String())
		return
	}

	msg := models.InboundMessage{
		PeerID:    peerID,
		MessageID: string(evt.Info.ID),
		Text:      text,
		Outgoing:  evt.Info.IsFromMe,
		HasMedia:  hasMedia,
		Time:      evt.Info.Timestamp,
	}
	role := models.ActorLead
	if msg.Outgoing {
		role = models.ActorBot
	}
	s.history.record(peerID, role, text)

	select {
	case s.messages <- msg:
		slog.Debug("ClientService inbound message forwarded", "peerID", peerID, "outgoing", msg.Outgoing)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("ClientService messages channel blocked, dropping message", "peerID", peerID)
	}
}
