// Package protocol defines the wire-facing message shapes exchanged between
// game clients and the server: the first-message discriminator, the reply
// envelope, and the tagged end-game variant. See internal/transport for the
// length-prefixed framing these messages travel over.
package protocol

// MessageType is the discriminator carried by a client's first message on a
// connection.
type MessageType string

const (
	TypeRegister1      MessageType = "register1"
	TypeLogin1         MessageType = "login1"
	TypeLogin2         MessageType = "login2"
	TypeSteamRegister  MessageType = "steam_register"
	TypeSteamLogin     MessageType = "steam_login"
	TypeGetStats       MessageType = "get-stats"
	TypeBuyItem        MessageType = "buy-item"
	TypeSetTitle       MessageType = "set-title"
	TypeSyncCampaign   MessageType = "sync-campaign"
	Type1v1            MessageType = "1v1"
	Type3Player        MessageType = "v3"
	Type4Player        MessageType = "v4"
	TypeMixed          MessageType = "v34"
)

// ErrorKind enumerates the closed set of error strings the wire protocol
// surfaces in a reply envelope's "error" field.
type ErrorKind string

const (
	ErrVersionFail       ErrorKind = "version-fail"
	ErrUsernameTaken     ErrorKind = "username_taken"
	ErrEmailTaken        ErrorKind = "email_taken"
	ErrSteamIDTaken      ErrorKind = "steam-id-taken"
	ErrEmailInvalid      ErrorKind = "email_invalid"
	ErrUserDoesNotExist  ErrorKind = "user_does_not_exist"
	ErrEmailMismatch     ErrorKind = "email_does_not_match"
	ErrExpiredCode       ErrorKind = "expired_code"
	ErrWrongCode         ErrorKind = "wrong_code"
	ErrUserNotFound      ErrorKind = "user-not-found"
	ErrAuthorizeFail     ErrorKind = "authorize-fail"
	ErrUserOnlineFail    ErrorKind = "user-online-fail"
	ErrConnectionFail    ErrorKind = "connection-fail"
	ErrGetStatsFail      ErrorKind = "get-stats-fail"
	ErrInvalidPrice      ErrorKind = "invalid-price"
	ErrGeneric           ErrorKind = "error"
)

// Envelope is the generic reply shape: {status, error?, ...extra fields}.
// Handlers build the map directly since the extra fields vary per message
// type; Envelope only fixes the two fields every reply shares.
type Envelope map[string]any

// OK builds a successful envelope with status 1, merging in extra fields.
func OK(extra map[string]any) Envelope {
	env := Envelope{"status": 1}
	for k, v := range extra {
		env[k] = v
	}
	return env
}

// Fail builds a failing envelope with status 0 and the given error kind.
func Fail(kind ErrorKind) Envelope {
	return Envelope{"status": 0, "error": string(kind)}
}

// EndGameKind tags the variant carried by a tick's "end-game" field: a
// numeric seat index, the literal strings "surrender"/"connection-lost", or
// the float 0.5 peace-draw marker.
type EndGameKind int

const (
	EndGameNone EndGameKind = iota
	EndGameSeat
	EndGameSurrender
	EndGameConnectionLost
	EndGameDraw
)

// EndGame is a parsed {end-game: X} payload.
type EndGame struct {
	Kind EndGameKind
	Seat int // valid only when Kind == EndGameSeat
}

// ParseEndGame inspects a decoded tick payload for an "end-game" key and
// classifies its value per §4.8 / GLOSSARY.
func ParseEndGame(payload map[string]any) (EndGame, bool) {
	raw, ok := payload["end-game"]
	if !ok {
		return EndGame{}, false
	}
	switch v := raw.(type) {
	case string:
		switch v {
		case "surrender":
			return EndGame{Kind: EndGameSurrender}, true
		case "connection-lost":
			return EndGame{Kind: EndGameConnectionLost}, true
		}
	case float64:
		if v == 0.5 {
			return EndGame{Kind: EndGameDraw}, true
		}
		return EndGame{Kind: EndGameSeat, Seat: int(v)}, true
	case int:
		return EndGame{Kind: EndGameSeat, Seat: v}, true
	}
	return EndGame{}, false
}

// SyntheticConnectionLost is the end-game payload a faulted read becomes.
func SyntheticConnectionLost() map[string]any {
	return map[string]any{"end-game": "connection-lost"}
}
