package dispatch

import (
	"strings"

	"gmerge/internal/model"
)

// HeaderMessageID is the RFC 5322 header recorded for follow-ups.
const HeaderMessageID = "Message-ID"

// Correlate pairs a thread id with the Message-ID found in headers.
// Header names are matched case-insensitively; a missing header yields "".
func Correlate(threadID string, headers []model.Header) model.Correlation {
	c := model.Correlation{ThreadID: threadID}
	for _, h := range headers {
		if strings.EqualFold(h.Name, HeaderMessageID) {
			c.MessageID = h.Value
			break
		}
	}
	return c
}
