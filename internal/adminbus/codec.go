package adminbus

import "encoding/json"

func encodePresence(ev PresenceEvent) []byte {
	b, _ := json.Marshal(ev)
	return b
}

func decodePresence(b []byte) (PresenceEvent, error) {
	var ev PresenceEvent
	err := json.Unmarshal(b, &ev)
	return ev, err
}

func encodeChat(ev ChatEvent) []byte {
	b, _ := json.Marshal(ev)
	return b
}

func decodeChat(b []byte) (ChatEvent, error) {
	var ev ChatEvent
	err := json.Unmarshal(b, &ev)
	return ev, err
}
