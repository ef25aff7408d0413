package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/recruitflow/recruitflow/internal/dispatch"
	"github.com/recruitflow/recruitflow/internal/flow"
	"github.com/recruitflow/recruitflow/internal/intent"
	"github.com/recruitflow/recruitflow/internal/models"
	"github.com/recruitflow/recruitflow/internal/sheets"
)

// ingestLead handles a post in a watched lead group: extract a contact
// reference, resolve it to a peer and open the funnel with the first
// scripted contact.
func (e *Engine) ingestLead(ctx context.Context, msg models.InboundMessage) {
	username, phone := intent.ExtractContact(msg.Text)
	if username == "" && phone == "" {
		return
	}
	// Usernames resolve first; when that fails and the post also carried
	// a phone number, the phone gets its own attempt.
	var entity *models.Entity
	for _, ref := range []string{username, phone} {
		if ref == "" {
			continue
		}
		resolved, err := e.msg.ResolveEntity(ctx, ref)
		if err != nil || resolved == nil {
			slog.Debug("Engine.ingestLead: contact unresolvable", "ref", ref, "error", err)
			continue
		}
		entity = resolved
		break
	}
	if entity == nil || entity.IsBot {
		return
	}
	if e.alreadyContacted(entity.PeerID) {
		slog.Debug("Engine.ingestLead: peer already in funnel", "peerID", entity.PeerID)
		return
	}

	slog.Info("Engine.ingestLead: new lead", "peerID", entity.PeerID, "username", entity.Username)
	state := models.NewPeerRuntimeState(entity.PeerID)

	e.out.SendAndUpdate(ctx, entity.PeerID, e.templates[models.MsgContact], dispatch.SendOptions{
		Kind:     dispatch.KindScripted,
		Status:   flow.StatusGreeting,
		Step:     state.FlowStep,
		Username: entity.Username,
		Name:     entity.FirstName,
	})
	e.out.SendAndUpdate(ctx, entity.PeerID, e.templates[models.MsgScreeningIntro], dispatch.SendOptions{
		Kind:     dispatch.KindChained,
		Status:   flow.StatusScreening,
		Step:     state.FlowStep,
		Username: entity.Username,
		Name:     entity.FirstName,
	})

	if err := e.st.SavePeerState(state); err != nil {
		slog.Error("Engine.ingestLead: state save failed", "peerID", entity.PeerID, "error", err)
	}

	now := e.now().In(e.tz)
	row := models.CRMRow{
		Date:       now.Format("2006-01-02"),
		Name:       entity.FirstName,
		ChatLink:   sheets.ChatLink(entity.Username, entity.PeerID),
		Username:   entity.Username,
		Status:     flow.StatusNew,
		LastStep:   string(state.FlowStep),
		UpdatedAt:  now.Format(time.RFC3339),
		PeerID:     entity.PeerID,
		AccountKey: e.accountKey,
	}
	if err := sheets.EnqueueLeadIngest(e.st, row); err != nil {
		slog.Error("Engine.ingestLead: enqueue failed", "peerID", entity.PeerID, "error", err)
	}
}

// alreadyContacted reports whether the peer has a stored funnel record.
func (e *Engine) alreadyContacted(peer models.PeerID) bool {
	ids, err := e.st.ListPeerIDs()
	if err != nil {
		slog.Error("Engine.alreadyContacted: list failed", "error", err)
		// Err on the side of not double-contacting a lead.
		return true
	}
	for _, id := range ids {
		if id == peer {
			return true
		}
	}
	return false
}
