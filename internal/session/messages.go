package session

// clientMessage is the decoded inbound envelope. All message types share one
// struct; fields a type does not use stay zero.
type clientMessage struct {
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	Port     int    `json:"port,omitempty"`
	Password string `json:"password,omitempty"`
}

type typeOnlyMessage struct {
	Type string `json:"type"`
}

type contentMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type obsStatusMessage struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}

type voiceStatusMessage struct {
	Type      string `json:"type"`
	Listening bool   `json:"listening"`
}

func streamStart() typeOnlyMessage {
	return typeOnlyMessage{Type: "stream_start"}
}

func streamEnd() typeOnlyMessage {
	return typeOnlyMessage{Type: "stream_end"}
}

func streamDelta(content string) contentMessage {
	return contentMessage{Type: "stream_delta", Content: content}
}

func errorMessage(content string) contentMessage {
	return contentMessage{Type: "error", Content: content}
}

func transcription(content string) contentMessage {
	return contentMessage{Type: "transcription", Content: content}
}

func obsStatus(connected bool, message string) obsStatusMessage {
	return obsStatusMessage{Type: "obs_status", Connected: connected, Message: message}
}

func voiceStatus(listening bool) voiceStatusMessage {
	return voiceStatusMessage{Type: "voice_status", Listening: listening}
}
