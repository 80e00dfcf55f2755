package chat

// TurnState is the alternation state of a two-party channel.
type TurnState string

const (
	TurnMine    TurnState = "my_turn"
	TurnTheirs  TurnState = "their_turn"
	TurnSending TurnState = "sending"
)

// TurnFor derives the turn state for userID from the tail of the ordered
// message stream. It is recomputed fresh on every list change rather than
// cached, so a deleted message cannot leave a stale lock behind: whatever
// message is last right now decides.
func TurnFor(messages []Message, userID string) TurnState {
	if len(messages) == 0 {
		return TurnMine
	}
	if messages[len(messages)-1].SenderID == userID {
		return TurnTheirs
	}
	return TurnMine
}
