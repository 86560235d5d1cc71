package bancho

import (
	"context"
	"fmt"

	"github.com/dungeongate/bancho/internal/collab"
	"github.com/dungeongate/bancho/internal/errs"
	"github.com/dungeongate/bancho/internal/player"
	"github.com/dungeongate/bancho/internal/protocol"
	"github.com/dungeongate/bancho/internal/registry"
)

// Login reply codes, sent as a RespUserID payload (the same packet that
// carries a positive user id on success).
const (
	loginReplyServerError    int32 = -5
	loginReplyAuthentication int32 = -1
	loginReplyUpdateNeeded   int32 = -2
	loginReplyBanned         int32 = -3
	loginReplyNotActivated   int32 = -4
)

// adaptersMismatchReply is the literal byte sequence the protocol uses to
// terminate a connection whose declared adapters hash doesn't match,
// bypassing the framed packet format entirely (a historical compatibility
// requirement of the client).
var adaptersMismatchReply = []byte("no.\r\n")

const presenceBundleSize = 150

// numModes is the count of ranked game modes every user has a Stats row
// for (osu!, taiko, catch, mania).
const numModes = 4

// Login runs the full authentication sequence for a freshly accepted
// session, given the three handshake lines. On success it returns a nil
// error and s carries every login-bundle packet in its outbound queue. On
// an adapters mismatch it returns rawTerminate, which the transport must
// write verbatim (not framed) and then close the connection, discarding
// any bytes already queued. If the client-data line cannot be parsed or no
// codec table is registered, it returns a non-nil err with nothing queued.
// On any other failure it returns a non-nil err; s's outbound queue carries
// PROTOCOL_VERSION plus a negative LOGIN_REPLY for the transport to drain
// before closing.
func (svc *Service) Login(ctx context.Context, s *player.Session, username, passwordMD5, clientDataRaw string) (rawTerminate []byte, err error) {
	cd, err := parseClientData(clientDataRaw)
	if err != nil {
		svc.recordLogin("bad_handshake")
		return nil, errs.Wrap(errs.DecodeTruncated, err)
	}

	version, ok := svc.Codecs.ResolveVersion(cd.VersionDate)
	if !ok {
		svc.recordLogin("no_codec_table")
		return nil, fmt.Errorf("bancho: no codec table registered for any version")
	}
	s.SetCodecTables(protocol.CodecTables{Registry: svc.Codecs, Version: version})
	fp := player.Fingerprint{
		VersionDate:   cd.VersionDate,
		VersionString: cd.VersionString,
		Adapters:      cd.AdapterListCSV,
		AdaptersMD5:   cd.AdaptersMD5,
		UTCOffset:     cd.UTCOffset,
		DisplayCity:   cd.DisplayCity,
	}
	if geo, err := svc.Geo.Resolve(ctx, s.RemoteAddr()); err == nil {
		fp.CountryCode = geo.CountryCode
		fp.City = geo.City
		fp.Latitude = geo.Latitude
		fp.Longitude = geo.Longitude
	}
	s.SetFingerprint(fp)

	_ = s.SendFrame(protocol.RespProtocolVersion, int32(svc.Cfg.Protocol.Version))

	if adaptersChecksum(cd.AdapterListCSV) != cd.AdaptersMD5 {
		svc.recordLogin("bad_adapters")
		return adaptersMismatchReply, errs.New(errs.AuthBadAdapters, "adapters hash mismatch for %q", username)
	}

	user, err := svc.Repo.UserByName(ctx, username)
	if err != nil || user == nil {
		svc.recordLogin("no_user")
		_ = s.SendFrame(protocol.RespUserID, loginReplyAuthentication)
		return nil, errs.New(errs.AuthNoUser, "no user named %q", username)
	}

	if !svc.Verifier.Check(passwordMD5, user.PasswordHash) {
		svc.recordLogin("bad_password")
		_ = s.SendFrame(protocol.RespUserID, loginReplyAuthentication)
		return nil, errs.New(errs.AuthBadPassword, "bad password for %q", username)
	}

	if user.Restricted {
		svc.recordLogin("banned")
		_ = s.SendFrame(protocol.RespUserID, loginReplyBanned)
		return nil, errs.New(errs.AuthBanned, "user %q is restricted", username)
	}
	if !user.Activated {
		svc.recordLogin("not_activated")
		_ = s.SendFrame(protocol.RespUserID, loginReplyNotActivated)
		return nil, errs.New(errs.AuthNotActivated, "user %q is not activated", username)
	}

	s.SetIdentity(user.ID, user.Name)
	s.SetPermissions(user.Permissions)
	s.SetPreferredMode(user.PreferredMode)
	s.SetFriendOnlyDMs(user.FriendOnlyDMs)
	s.SetFriends(user.Friends)
	s.SetStatus(protocol.Status{Mode: user.PreferredMode})

	if displaced := svc.Registry.Append(s); displaced != nil {
		svc.displace(displaced)
	}
	svc.recordSession(s.Transport(), 1)
	svc.recordLogin("success")

	stats := svc.bootstrapStats(ctx, user.ID, user.PreferredMode)
	if stats != nil {
		_ = svc.Ranking.Update(ctx, user.ID, user.PreferredMode, float64(stats.PP), stats.RankedScore, user.Country)
	}

	svc.emitLoginBundle(ctx, s, user, stats)
	return nil, nil
}

// bootstrapStats fetches the user's stats for mode, creating all four
// per-mode rows if none exist yet.
func (svc *Service) bootstrapStats(ctx context.Context, userID int32, mode uint8) *collab.Stats {
	stats, err := svc.Repo.FetchStats(ctx, userID, mode)
	if err == nil && stats != nil {
		return stats
	}

	var forMode *collab.Stats
	for m := uint8(0); m < numModes; m++ {
		created, err := svc.Repo.CreateStats(ctx, userID, m)
		if err != nil {
			svc.logger.Error("bootstrap stats failed", "user_id", userID, "mode", m, "error", err)
			continue
		}
		if m == mode {
			forMode = created
		}
	}
	return forMode
}

// displace closes a previously logged-in session that is being replaced by
// a new login under the same user id, and departs it from every aggregate
// it belonged to.
func (svc *Service) displace(prior *player.Session) {
	_ = prior.SendFrame(protocol.RespAnnounce, "You have been logged in from another location.")
	svc.Disconnect(context.Background(), prior)
}

// emitLoginBundle queues the full ordered packet sequence of a successful
// login onto s's outbound buffer.
func (svc *Service) emitLoginBundle(ctx context.Context, s *player.Session, user *collab.User, stats *collab.Stats) {
	_ = s.SendFrame(protocol.RespUserID, user.ID)
	_ = s.SendFrame(protocol.RespMenuIcon, protocol.MenuIcon{Image: svc.Cfg.Protocol.MenuIconImage, URL: svc.Cfg.Protocol.MenuIconURL})
	_ = s.SendFrame(protocol.RespLoginPermissions, user.Permissions)

	_ = s.SendFrame(protocol.RespUserPresence, svc.buildPresence(s))
	_ = s.SendFrame(protocol.RespUserStats, svc.buildStats(ctx, s, stats))
	_ = s.SendFrame(protocol.RespUserPresence, svc.buildPresence(svc.Bot))

	friends := make([]int32, 0)
	for _, id := range user.Friends {
		friends = append(friends, id)
	}
	_ = s.SendFrame(protocol.RespFriendsList, friends)

	others := make([]*player.Session, 0)
	for _, other := range svc.Registry.All() {
		if other.ID() == s.ID() || other.IsBot() {
			continue
		}
		others = append(others, other)
	}
	for _, bundle := range registry.PresenceBundles(others, presenceBundleSize) {
		for _, other := range bundle {
			_ = s.SendFrame(protocol.RespUserPresence, svc.buildPresence(other))
		}
	}

	for _, ch := range svc.Router.Public() {
		if ch.CanRead(s.Permissions()) {
			_ = s.SendFrame(protocol.RespChannelAvailable, protocol.ChannelInfo{Name: ch.Name, Topic: ch.Topic, MemberCount: int16(ch.MemberCount())})
		}
	}
	_ = s.SendFrame(protocol.RespChannelInfoComplete, nil)
}

func (svc *Service) buildPresence(s *player.Session) protocol.UserPresence {
	fp := s.Fingerprint()
	return protocol.UserPresence{
		UserID:      s.ID(),
		Name:        s.Name(),
		UTCOffset:   uint8(fp.UTCOffset),
		Permissions: uint8(s.Permissions()),
		Mode:        s.PreferredMode(),
		Latitude:    float32(fp.Latitude),
		Longitude:   float32(fp.Longitude),
	}
}

func (svc *Service) buildStats(ctx context.Context, s *player.Session, stats *collab.Stats) protocol.UserStats {
	if stats == nil {
		fetched, err := svc.Repo.FetchStats(ctx, s.ID(), s.PreferredMode())
		if err == nil {
			stats = fetched
		}
	}
	if stats == nil {
		return protocol.UserStats{UserID: s.ID(), Status: s.Status()}
	}
	rank, _ := svc.Ranking.GlobalRank(ctx, s.ID(), s.PreferredMode())
	return protocol.UserStats{
		UserID:      s.ID(),
		Status:      s.Status(),
		RankedScore: stats.RankedScore,
		Accuracy:    stats.Accuracy,
		Playcount:   stats.Playcount,
		TotalScore:  stats.TotalScore,
		Rank:        rank,
		PP:          stats.PP,
	}
}
