package connectors

import (
	"bytes"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/Aaron-Tawil/super-order-automation/internal"
)

// OpenMessage parses a raw RFC822 message into the engine's inputs:
// message context plus one document per attachment. Inline images and
// signature noise are left out.
func OpenMessage(raw []byte) (internal.MessageMeta, []internal.Document, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return internal.MessageMeta{}, nil, err
	}

	meta := internal.MessageMeta{
		Sender:  env.GetHeader("From"),
		Subject: env.GetHeader("Subject"),
		Body:    env.Text,
	}
	if meta.Body == "" && env.HTML != "" {
		meta.Body = env.HTML
	}

	docs := make([]internal.Document, 0, len(env.Attachments))
	for _, att := range env.Attachments {
		name := strings.TrimSpace(att.FileName)
		if name == "" {
			name = "attachment"
		}
		docs = append(docs, internal.Document{
			Name:      name,
			MediaType: att.ContentType,
			Content:   att.Content,
		})
	}

	return meta, docs, nil
}
