// Package messaging provides the chat transport for RecruitFlow.
//
// It wraps the Whatsmeow client: login with QR code, inbound message
// events, outbound sends, and content-asset forwarding. Everything
// above this package addresses peers by numeric id only.
package messaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/recruitflow/recruitflow/internal/models"
)

// Constants for the transport client configuration.
const (
	// DefaultSessionPath is the default path for the whatsmeow session database.
	DefaultSessionPath = "/var/lib/recruitflow/session.db"
	// JIDSuffix is the JID suffix for regular users.
	JIDSuffix = "s.whatsapp.net"
)

// Opts holds configuration options for the transport client.
type Opts struct {
	SessionDSN  string // whatsmeow session database connection string
	QRPath      string // path to write the login QR code
	NumericCode bool   // print a numeric login code instead of a QR code
}

// Option defines a configuration option for the transport client.
type Option func(*Opts)

// WithSessionDSN sets the session database connection string.
func WithSessionDSN(dsn string) Option {
	return func(o *Opts) { o.SessionDSN = dsn }
}

// WithQRCodeOutput writes the login QR code to the specified path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) { o.QRPath = path }
}

// WithNumericCode prints a numeric login code instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) { o.NumericCode = true }
}

// Client wraps the Whatsmeow client for modular use.
type Client struct {
	waClient *whatsmeow.Client
}

// NewClient creates and connects the transport client, running the QR
// login flow when no stored session exists.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("messaging NewClient options set", "sessionDSN_set", cfg.SessionDSN != "", "QRPath_set", cfg.QRPath != "", "numericCode", cfg.NumericCode)

	dsn := cfg.SessionDSN
	if dsn == "" {
		dsn = DefaultSessionPath
	}
	if !strings.Contains(dsn, "foreign_keys") {
		// whatsmeow strongly recommends foreign keys on its sqlite store.
		dsn = "file:" + dsn + "?_foreign_keys=on"
	}

	ctx := context.Background()
	container, err := sqlstore.New(ctx, "sqlite3", dsn, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("Failed to get device from session store", "error", err)
		return nil, fmt.Errorf("failed to get device from session store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))

	if waClient.Store.ID == nil {
		slog.Info("messaging login required; starting QR code flow")
		qrChan, _ := waClient.GetQRChannel(context.Background())
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect during login", "error", err)
			return nil, fmt.Errorf("failed to connect during login: %w", err)
		}
		writer := io.Writer(os.Stdout)
		if cfg.QRPath != "" {
			f, ferr := os.Create(cfg.QRPath)
			if ferr != nil {
				return nil, fmt.Errorf("failed to create QR file: %w", ferr)
			}
			defer f.Close()
			writer = f
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				if cfg.NumericCode {
					fmt.Fprintln(writer, evt.Code)
				} else {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
				}
			} else {
				slog.Debug("messaging login event", "event", evt.Event)
			}
		}
	} else {
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to server", "error", err)
			return nil, fmt.Errorf("failed to connect to server: %w", err)
		}
	}
	slog.Info("messaging client connected")
	return &Client{waClient: waClient}, nil
}

// SendText sends a plain text message and returns the transport message id.
func (c *Client) SendText(ctx context.Context, peer models.PeerID, text string) (string, error) {
	if c.waClient == nil {
		return "", fmt.Errorf("messaging client not initialized")
	}
	if text == "" {
		return "", fmt.Errorf("message body cannot be empty")
	}
	jid := peerJID(peer)
	resp, err := c.waClient.SendMessage(ctx, jid, &waE2E.Message{Conversation: &text})
	if err != nil {
		slog.Error("Failed to send message", "error", err, "peerID", peer)
		return "", fmt.Errorf("failed to send message to %d: %w", peer, err)
	}
	slog.Debug("messaging message sent", "peerID", peer, "messageID", resp.ID)
	return resp.ID, nil
}

// ResolveEntity resolves a phone reference to a peer entity. The ref is
// an international phone number with or without the leading plus.
func (c *Client) ResolveEntity(ctx context.Context, ref string) (*models.Entity, error) {
	if c.waClient == nil {
		return nil, fmt.Errorf("messaging client not initialized")
	}
	phone := strings.TrimPrefix(strings.TrimSpace(ref), "+")
	if phone == "" {
		return nil, fmt.Errorf("empty peer reference")
	}
	resp, err := c.waClient.IsOnWhatsApp([]string{"+" + phone})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}
	for _, r := range resp {
		if !r.IsIn {
			continue
		}
		peerID, err := jidPeerID(r.JID)
		if err != nil {
			return nil, err
		}
		ent := &models.Entity{PeerID: peerID, Phone: "+" + phone}
		if r.VerifiedName != nil && r.VerifiedName.Details != nil {
			ent.FirstName = r.VerifiedName.Details.GetVerifiedName()
		}
		return ent, nil
	}
	return nil, fmt.Errorf("peer %s not registered", ref)
}

// FindGroup returns the peer id of a joined group with the given name.
func (c *Client) FindGroup(ctx context.Context, title string) (models.PeerID, error) {
	if c.waClient == nil {
		return 0, fmt.Errorf("messaging client not initialized")
	}
	groups, err := c.waClient.GetJoinedGroups(ctx)
	if err != nil {
		return 0, fmt.Errorf("list groups: %w", err)
	}
	want := strings.ToLower(strings.TrimSpace(title))
	for _, g := range groups {
		if strings.ToLower(strings.TrimSpace(g.Name)) == want {
			return jidPeerID(g.JID)
		}
	}
	return 0, fmt.Errorf("group %q not found", title)
}

// GetClient returns the underlying whatsmeow client for event handling.
func (c *Client) GetClient() *whatsmeow.Client {
	return c.waClient
}

// Close disconnects from the server.
func (c *Client) Close() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}

func peerJID(peer models.PeerID) types.JID {
	return types.NewJID(fmt.Sprint(peer), JIDSuffix)
}

func jidPeerID(jid types.JID) (models.PeerID, error) {
	var id int64
	if _, err := fmt.Sscan(jid.User, &id); err != nil {
		return 0, fmt.Errorf("non-numeric peer jid %q", jid.User)
	}
	return models.PeerID(id), nil
}
