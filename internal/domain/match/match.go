// Package match holds the data types shared by every collaborator that
// touches a match's lifecycle: the match runner, the storage adapter, and
// the ranked/tournament orchestrators built on top of it.
package match

import "time"

// Kind distinguishes why a match was scheduled.
type Kind string

const (
	KindUnranked   Kind = "UNRANKED"
	KindRanked     Kind = "RANKED"
	KindTournament Kind = "TOURNAMENT"
)

// Status is a match's position in its PENDING -> {FINISHED, FAILED} lifecycle.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusFinished Status = "FINISHED"
	StatusFailed   Status = "FAILED"
)

// Outcome names which side won. Empty unless Status is StatusFinished.
type Outcome string

const (
	OutcomeNone  Outcome = ""
	OutcomeTeam1 Outcome = "team1"
	OutcomeTeam2 Outcome = "team2"
)

// Submission identifies a bot binary staged in object storage.
type Submission struct {
	Username  string `json:"username"`
	Bucket    string `json:"bucket"`
	ObjectKey string `json:"object_key"`
}

// Player is a Submission snapshotted with its rating at scheduling time.
type Player struct {
	User   Submission `json:"user"`
	Rating int        `json:"rating"`
}

// Request is the input to the match runner: what to run and who submitted it.
type Request struct {
	EngineName  string       `json:"game_engine_name"`
	NumPlayers  int          `json:"num_players"`
	Submissions []Submission `json:"submissions"`
}

// Record is the persisted row tracking one match end to end.
type Record struct {
	MatchID        uint64    `db:"match_id"`
	Team1          string    `db:"team_1"`
	Team2          string    `db:"team_2"`
	Kind           Kind      `db:"match_type"`
	Status         Status    `db:"match_status"`
	Outcome        Outcome   `db:"outcome"`
	ReplayFilename string    `db:"replay_filename"`
	ReplayURL      string    `db:"replay_url"`
	EloChange      int       `db:"elo_change"`
	MapName        string    `db:"map_name"`
	LastUpdated    time.Time `db:"last_updated"`
}

// NewPendingRecord builds the record written at job submission, per the
// field defaults mandated for a freshly PENDING match.
func NewPendingRecord(matchID uint64, team1, team2 string, kind Kind, mapName string) Record {
	return Record{
		MatchID: matchID,
		Team1:   team1,
		Team2:   team2,
		Kind:    kind,
		Status:  StatusPending,
		Outcome: OutcomeNone,
		MapName: mapName,
	}
}
