// Package protocol defines the bancho packet-id namespaces, the
// per-protocol-version decoder/encoder registry, and the framed-packet
// codec built on top of package codec.
package protocol

// RequestID identifies a client-to-server packet.
type RequestID uint16

// ResponseID identifies a server-to-client packet.
type ResponseID uint16

// Request packet ids. Stable once assigned; never renumber a shipped id.
const (
	ReqChangeAction RequestID = iota
	ReqSendPublicMessage
	ReqLogout
	ReqRequestStatusUpdate
	ReqPong
	ReqStartSpectating
	ReqStopSpectating
	ReqSpectateFrames
	ReqSendPrivateMessage
	ReqChannelJoin
	ReqChannelPart
	ReqFriendAdd
	ReqFriendRemove
	ReqUserPresenceRequest
	ReqUserPresenceRequestAll
	ReqUserStatsRequest
	ReqMatchCreate
	ReqMatchJoin
	ReqMatchPart
	ReqMatchChangeSlot
	ReqMatchReady
	ReqMatchNotReady
	ReqMatchLock
	ReqMatchChangeSettings
	ReqMatchStart
	ReqMatchScoreUpdate
	ReqMatchComplete
	ReqMatchChangeMods
	ReqMatchLoadComplete
	ReqMatchNoBeatmap
	ReqMatchHasBeatmap
	ReqMatchSkipRequest
	ReqMatchFailed
	ReqMatchChangeTeam
	ReqMatchTransferHost
	ReqMatchInvite
	ReqChannelListRequest
)

// Response packet ids. Stable once assigned; never renumber a shipped id.
const (
	RespUserID ResponseID = iota
	RespSendMessage
	RespPong
	RespUserStats
	RespUserQuit
	RespSpectatorJoined
	RespSpectatorLeft
	RespSpectateFrames
	RespVersionUpdate
	RespCantSpectate
	RespGetAttention
	RespAnnounce
	RespUserPresence
	RespLoginPermissions
	RespMenuIcon
	RespFriendsList
	RespProtocolVersion
	RespMainMenuIcon
	RespChannelJoinSuccess
	RespChannelAvailable
	RespChannelRevoked
	RespChannelInfoComplete
	RespTargetIsSilenced
	RespUserDMBlocked
	RespMatchNew
	RespMatchUpdate
	RespMatchDisband
	RespMatchJoinSuccess
	RespMatchJoinFail
	RespMatchStart
	RespMatchScoreUpdate
	RespMatchComplete
	RespMatchAllPlayersLoaded
	RespMatchSkip
	RespMatchAbort
	RespMatchTransferHost
	RespMatchInvite
	RespFellowSpectatorJoined
	RespFellowSpectatorLeft
	RespSilenceInfo
	RespRestart
)
