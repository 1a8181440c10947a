// Package protocol defines the control-channel messages exchanged between
// arcade clients and the lobby, and their on-the-wire framing.
package protocol

// Type tags a control message.
type Type string

// Request and response tags.
const (
	TypeLoginRequest  Type = "LOGIN_REQUEST"
	TypeLogoffRequest Type = "LOGOFF_REQUEST"
	TypeFinishGame    Type = "FINISH_GAME"
	TypeLoginResponse Type = "LOGIN_RESPONSE"
	TypeLoginFail     Type = "LOGIN_FAIL"
)

// Message is a single typed control message. Payload carries the player
// identity for login/logoff requests and the endpoint descriptor for a
// login response; it is empty otherwise.
type Message struct {
	Type    Type
	Payload string
}

// ExpectsReply reports whether the server answers this request.
func (m Message) ExpectsReply() bool {
	return m.Type == TypeLoginRequest
}

// Login builds a LOGIN_REQUEST for identity.
func Login(identity string) Message {
	return Message{Type: TypeLoginRequest, Payload: identity}
}

// Logoff builds a LOGOFF_REQUEST for identity.
func Logoff(identity string) Message {
	return Message{Type: TypeLogoffRequest, Payload: identity}
}

// Finish builds a FINISH_GAME request.
func Finish() Message {
	return Message{Type: TypeFinishGame}
}

// LoginOK builds a LOGIN_RESPONSE carrying the session endpoint descriptor.
func LoginOK(endpoint string) Message {
	return Message{Type: TypeLoginResponse, Payload: endpoint}
}

// LoginFailed builds a LOGIN_FAIL response.
func LoginFailed() Message {
	return Message{Type: TypeLoginFail}
}
