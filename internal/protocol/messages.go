package protocol

// Tile kind codes used by the static map payload; they match the map file
// encoding.
const (
	TileBlocked       = 0
	TileParcelSpawner = 1
	TileDelivery      = 2
	TilePlain         = 3
)

// MapMsg is the static layout pushed once on join ("map").
type MapMsg struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Tiles  []TileMsg `json:"tiles"`
}

// TileMsg describes one tile. It is the payload of "tile" and, with only X/Y
// meaningful, of "not_tile".
type TileMsg struct {
	X             int  `json:"x"`
	Y             int  `json:"y"`
	Type          int  `json:"type"`
	Delivery      bool `json:"delivery"`
	ParcelSpawner bool `json:"parcelSpawner"`
}

// AgentMsg is the own-identity snapshot ("you") and an entry of
// "agents sensing".
type AgentMsg struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TeamID   string `json:"teamId,omitempty"`
	TeamName string `json:"teamName,omitempty"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Score    int    `json:"score"`
}

type ParcelMsg struct {
	ID        string  `json:"id"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Reward    int     `json:"reward"`
	CarriedBy *string `json:"carriedBy"`
}

type AgentDeletedMsg struct {
	ID     string `json:"id"`
	TeamID string `json:"teamId,omitempty"`
}

// TimerMsg is the payload of "timer update"; Remaining is in whole seconds.
type TimerMsg struct {
	Remaining int64  `json:"remaining"`
	Running   bool   `json:"running"`
	Status    string `json:"status"`
}

type LeaderboardEntryMsg struct {
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
	TeamID    string `json:"teamId,omitempty"`
	TeamName  string `json:"teamName,omitempty"`
	Reward    int    `json:"reward"`
}

type LeaderboardTeamMsg struct {
	TeamID   string `json:"teamId"`
	TeamName string `json:"teamName,omitempty"`
	Reward   int    `json:"reward"`
}

type LeaderboardMsg struct {
	MatchID string                `json:"matchId"`
	Agents  []LeaderboardEntryMsg `json:"agents"`
	Teams   []LeaderboardTeamMsg  `json:"teams"`
}

// PositionMsg answers an accepted move.
type PositionMsg struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type PutDownMsg struct {
	Dropped []ParcelMsg `json:"dropped"`
	Reward  int         `json:"reward"`
}

// SourceMsg prefixes relayed "log" and "draw" frames.
type SourceMsg struct {
	Src       string `json:"src"`
	Timestamp int64  `json:"timestamp"`
	Socket    string `json:"socket,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
}

// CellReq is the argument of the privileged cell commands.
type CellReq struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Reward int `json:"reward,omitempty"`
}
