package ws

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// parseTopic splits a topic like "chats_15" into its room name and id.
func parseTopic(topic string) (string, int, bool) {
	idx := strings.LastIndex(topic, "_")
	if idx <= 0 || idx == len(topic)-1 {
		return "", 0, false
	}
	id, err := strconv.Atoi(topic[idx+1:])
	if err != nil {
		return "", 0, false
	}
	return topic[:idx], id, true
}
