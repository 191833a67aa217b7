package google

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/jaytaylor/html2text"
	"github.com/lib/pq"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/utils"
)

const unreadLabel = "UNREAD"

// parseGmailMessage flattens a full-format Gmail payload into the canonical
// message record. Body extraction prefers text/plain; when only HTML exists
// the text body is derived from it.
func parseGmailMessage(msg *gmail.Message) *models.EmailMessage {
	out := &models.EmailMessage{
		ExternalID: msg.Id,
		ThreadID:   msg.ThreadId,
		Snippet:    truncate(msg.Snippet, 500),
		Labels:     pq.StringArray(msg.LabelIds),
		IsRead:     !hasLabel(msg.LabelIds, unreadLabel),
		RawMetadata: models.JSONMap{
			"historyId":    msg.HistoryId,
			"sizeEstimate": msg.SizeEstimate,
		},
	}

	if msg.InternalDate > 0 {
		receivedAt := time.UnixMilli(msg.InternalDate).UTC()
		out.ReceivedAt = &receivedAt
	}

	if msg.Payload == nil {
		return out
	}

	for _, header := range msg.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "subject":
			out.Subject = truncate(header.Value, 1000)
			out.CleanSubject = truncate(utils.NormalizeEmailSubject(header.Value), 1000)
		case "from":
			out.FromAddress = utils.ExtractAddress(header.Value)
			out.FromName = utils.ExtractDisplayName(header.Value)
		case "to":
			out.ToAddresses = splitAddresses(header.Value)
		case "cc":
			out.CcAddresses = splitAddresses(header.Value)
		case "date":
			if out.ReceivedAt == nil {
				if parsed, err := parseDateHeader(header.Value); err == nil {
					out.ReceivedAt = &parsed
				}
			}
		}
	}

	bodyText, bodyHTML, attachments := walkParts(msg.Payload)
	out.BodyHTML = bodyHTML
	out.BodyText = bodyText
	if out.BodyText == "" && bodyHTML != "" {
		if text, err := html2text.FromString(bodyHTML, html2text.Options{TextOnly: true}); err == nil {
			out.BodyText = text
		}
	}

	if len(attachments) > 0 {
		out.HasAttachment = true
		items := make([]interface{}, 0, len(attachments))
		for _, a := range attachments {
			items = append(items, map[string]interface{}{
				"externalId": a.ExternalID,
				"filename":   a.Filename,
				"mimeType":   a.MimeType,
				"size":       a.Size,
			})
		}
		out.Attachments = models.JSONMap{"items": items}
	}

	return out
}

// walkParts descends the MIME tree collecting the first text/plain and
// text/html bodies plus attachment metadata
func walkParts(part *gmail.MessagePart) (bodyText, bodyHTML string, attachments []models.AttachmentMeta) {
	if part == nil {
		return "", "", nil
	}

	if part.Filename != "" && part.Body != nil {
		attachments = append(attachments, models.AttachmentMeta{
			ExternalID: part.Body.AttachmentId,
			Filename:   part.Filename,
			MimeType:   part.MimeType,
			Size:       part.Body.Size,
		})
		for _, child := range part.Parts {
			_, _, nested := walkParts(child)
			attachments = append(attachments, nested...)
		}
		return "", "", attachments
	}

	switch part.MimeType {
	case "text/plain":
		bodyText = decodePartBody(part.Body)
	case "text/html":
		bodyHTML = decodePartBody(part.Body)
	}

	for _, child := range part.Parts {
		childText, childHTML, childAttachments := walkParts(child)
		if bodyText == "" {
			bodyText = childText
		}
		if bodyHTML == "" {
			bodyHTML = childHTML
		}
		attachments = append(attachments, childAttachments...)
	}
	return bodyText, bodyHTML, attachments
}

func decodePartBody(body *gmail.MessagePartBody) string {
	if body == nil || body.Data == "" {
		return ""
	}
	decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(body.Data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}

func splitAddresses(raw string) pq.StringArray {
	parts := strings.Split(raw, ",")
	out := make(pq.StringArray, 0, len(parts))
	for _, part := range parts {
		address := utils.ExtractAddress(part)
		if address != "" {
			out = append(out, address)
		}
	}
	return out
}

func parseDateHeader(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC822Z} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Parse(time.RFC3339, raw)
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
