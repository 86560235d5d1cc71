package collab

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Repository lookups that find no matching row.
var ErrNotFound = errors.New("collab: not found")

// Repository is the external persistence collaborator: users, stats,
// moderation log and rank history. The session core never issues SQL
// directly; it only calls through this interface.
type Repository interface {
	UserByID(ctx context.Context, id int32) (*User, error)
	UserByName(ctx context.Context, name string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error

	FetchStats(ctx context.Context, userID int32, mode uint8) (*Stats, error)
	CreateStats(ctx context.Context, userID int32, mode uint8) (*Stats, error)
	UpdateStats(ctx context.Context, s *Stats) error

	HideScores(ctx context.Context, userID int32) error
	UpdateClients(ctx context.Context, userID int32, adaptersMD5 string) error

	CreateInfringement(ctx context.Context, inf Infringement) error
	UpdateRankHistory(ctx context.Context, userID int32, mode uint8, rank int32) error

	// ActiveSilence reports whether the user is currently silenced and,
	// if so, until when. This resolves spec.md's open question on silence
	// enforcement: silence state lives on the Repository, not in-memory.
	ActiveSilence(ctx context.Context, userID int32) (until time.Time, ok bool, err error)
	SetSilence(ctx context.Context, userID int32, until time.Time, reason string) error
}

// Ranking is the external leaderboard-cache collaborator.
type Ranking interface {
	GlobalRank(ctx context.Context, userID int32, mode uint8) (int32, error)
	Update(ctx context.Context, userID int32, mode uint8, pp float64, rankedScore int64, country string) error
	Remove(ctx context.Context, userID int32, country string) error
}

// PasswordVerifier checks a client-submitted md5(password) against a
// stored hash. The cryptographic primitive itself is out of scope per
// spec.md §1; BcryptVerifier is the shipped default.
type PasswordVerifier interface {
	Check(passwordMD5, storedHash string) bool
}

// GeoResolver maps a remote address to a coarse location. Out of scope per
// spec.md §1; NullGeoResolver is the shipped default.
type GeoResolver interface {
	Resolve(ctx context.Context, remoteAddr string) (Geo, error)
}
