package messaging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/recruitflow/recruitflow/internal/models"
)

// messageLinkRe matches stored content-asset links of the form
// https://t.me/<chat>/<id> (public) or https://t.me/c/<chat>/<id>
// (private archive channel).
var messageLinkRe = regexp.MustCompile(`https?://t\.me/(c/)?([A-Za-z0-9_]+)/([0-9]+)`)

// ContentRef is a parsed content-asset location: the archive chat that
// holds the source message and the message id inside it.
type ContentRef struct {
	ChatRef   string
	MessageID int64
	Private   bool
}

// ParseContentLink extracts the source chat and message id from a
// stored asset link.
func ParseContentLink(link string) (ContentRef, error) {
	m := messageLinkRe.FindStringSubmatch(strings.TrimSpace(link))
	if m == nil {
		return ContentRef{}, fmt.Errorf("invalid message link %q", link)
	}
	id, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return ContentRef{}, fmt.Errorf("invalid message id in link %q", link)
	}
	ref := ContentRef{ChatRef: m[2], MessageID: id, Private: m[1] != ""}
	if ref.Private {
		// Private archive chats address by the internal -100 prefixed id.
		ref.ChatRef = "-100" + ref.ChatRef
	}
	return ref, nil
}

// ContentLinks maps funnel content assets to their stored source links.
type ContentLinks map[models.ContentKey]string

// Validate reports which required assets have no configured link.
func (c ContentLinks) Validate() []models.ContentKey {
	var missing []models.ContentKey
	for _, key := range []models.ContentKey{
		models.ContentVoice,
		models.ContentPhoto1,
		models.ContentPhoto2,
		models.ContentTestTask,
		models.ContentForm,
	} {
		if strings.TrimSpace(c[key]) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}
