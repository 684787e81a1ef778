package wire

import "github.com/exclusivedisjunction/regisd/internal/config"

// ConsoleOp discriminates the console protocol's request/response shapes
// (spec.md §4.11's request table). The console protocol is unencrypted
// and framed with WriteFrame/ReadFrame directly, never wrapped by
// cryptostream — its trust boundary is the Unix socket's filesystem
// permissions, not a cryptographic channel.
type ConsoleOp string

const (
	OpPoll     ConsoleOp = "Poll"
	OpShutdown ConsoleOp = "Shutdown"
	OpConfig   ConsoleOp = "Config"
	OpAuth     ConsoleOp = "Auth"
)

// ConfigSubOp discriminates the three Config(...) request variants.
type ConfigSubOp string

const (
	ConfigGet    ConfigSubOp = "Get"
	ConfigSet    ConfigSubOp = "Set"
	ConfigReload ConfigSubOp = "Reload"
)

// AuthSubOp discriminates the six Auth(...) request variants.
type AuthSubOp string

const (
	AuthAllUsers    AuthSubOp = "AllUsers"
	AuthUserHistory AuthSubOp = "UserHistory"
	AuthPending     AuthSubOp = "Pending"
	AuthApprove     AuthSubOp = "Approve"
	AuthDeny        AuthSubOp = "Deny"
	AuthRevoke      AuthSubOp = "Revoke"
)

// ConsoleRequest is one request frame of the console protocol. Exactly
// one of Config/Auth is populated when Op names that branch.
type ConsoleRequest struct {
	Op     ConsoleOp       `json:"op"`
	Config *ConfigRequest  `json:"config,omitempty"`
	Auth   *AuthRequest    `json:"auth,omitempty"`
}

// ConfigRequest carries the sub-operation and, for Set, the replacement
// configuration (spec.md §4.11: `Config(Set(new))`).
type ConfigRequest struct {
	Op  ConfigSubOp    `json:"op"`
	New *config.Config `json:"new,omitempty"`
}

// AuthRequest carries the sub-operation and its arguments. UserID is used
// by UserHistory/Approve/Deny/Revoke; Nickname only by Approve.
type AuthRequest struct {
	Op       AuthSubOp `json:"op"`
	UserID   uint64    `json:"user_id,omitempty"`
	Nickname string    `json:"nickname,omitempty"`
}

func NewPollRequest() ConsoleRequest     { return ConsoleRequest{Op: OpPoll} }
func NewShutdownRequest() ConsoleRequest { return ConsoleRequest{Op: OpShutdown} }

func NewConfigGetRequest() ConsoleRequest {
	return ConsoleRequest{Op: OpConfig, Config: &ConfigRequest{Op: ConfigGet}}
}

func NewConfigSetRequest(cfg config.Config) ConsoleRequest {
	return ConsoleRequest{Op: OpConfig, Config: &ConfigRequest{Op: ConfigSet, New: &cfg}}
}

func NewConfigReloadRequest() ConsoleRequest {
	return ConsoleRequest{Op: OpConfig, Config: &ConfigRequest{Op: ConfigReload}}
}

func NewAuthAllUsersRequest() ConsoleRequest {
	return ConsoleRequest{Op: OpAuth, Auth: &AuthRequest{Op: AuthAllUsers}}
}

func NewAuthUserHistoryRequest(id uint64) ConsoleRequest {
	return ConsoleRequest{Op: OpAuth, Auth: &AuthRequest{Op: AuthUserHistory, UserID: id}}
}

func NewAuthPendingRequest() ConsoleRequest {
	return ConsoleRequest{Op: OpAuth, Auth: &AuthRequest{Op: AuthPending}}
}

func NewAuthApproveRequest(id uint64, nickname string) ConsoleRequest {
	return ConsoleRequest{Op: OpAuth, Auth: &AuthRequest{Op: AuthApprove, UserID: id, Nickname: nickname}}
}

func NewAuthDenyRequest(id uint64) ConsoleRequest {
	return ConsoleRequest{Op: OpAuth, Auth: &AuthRequest{Op: AuthDeny, UserID: id}}
}

func NewAuthRevokeRequest(id uint64) ConsoleRequest {
	return ConsoleRequest{Op: OpAuth, Auth: &AuthRequest{Op: AuthRevoke, UserID: id}}
}

// UserSummary is one row of an Auth(AllUsers) reply.
type UserSummary struct {
	ID       uint64 `json:"id"`
	Nickname string `json:"nickname"`
}

// UserHistoryEntry is one append-only login record (spec.md §3 User.history).
type UserHistoryEntry struct {
	FromIP  string `json:"from_ip"`
	AtTime  int64  `json:"at_time"`
}

// UserDetail is the full reply body for Auth(UserHistory(id)); nil in
// ConsoleResponse.UserDetail signals the "null marker" spec.md §4.11 names
// when id is unknown.
type UserDetail struct {
	ID       uint64             `json:"id"`
	Nickname string             `json:"nickname"`
	History  []UserHistoryEntry `json:"history"`
}

// PendingSummary is one row of an Auth(Pending) reply.
type PendingSummary struct {
	ID          uint64 `json:"id"`
	FromIP      string `json:"from_ip"`
	RequestedAt int64  `json:"requested_at"`
}

// NewUser is the reply body for a successful Auth(Approve(...)).
type NewUser struct {
	ID    uint64 `json:"id"`
	Token string `json:"token"`
}

// ConsoleResponse is the single response frame produced per ConsoleRequest.
// Which fields are populated depends on the originating Op/sub-op, per
// spec.md §4.11's request table.
type ConsoleResponse struct {
	Op ConsoleOp `json:"op"`

	// Poll, Shutdown, Config(Reload): bare acknowledgement.
	Ok bool `json:"ok,omitempty"`

	// Config(Get): current snapshot. Config(Set): true/false in Ok.
	Config *config.Config `json:"config,omitempty"`

	// Auth(AllUsers).
	Users []UserSummary `json:"users,omitempty"`

	// Auth(UserHistory): nil means "not found" (the null marker).
	UserDetail *UserDetail `json:"user_detail,omitempty"`

	// Auth(Pending).
	Pending []PendingSummary `json:"pending,omitempty"`

	// Auth(Approve): nil means the approval failed (pending id unknown
	// or already resolved).
	NewUser *NewUser `json:"new_user,omitempty"`
}

func NewOkResponse(op ConsoleOp) ConsoleResponse {
	return ConsoleResponse{Op: op, Ok: true}
}

func NewBoolResponse(op ConsoleOp, ok bool) ConsoleResponse {
	return ConsoleResponse{Op: op, Ok: ok}
}

func NewConfigSnapshotResponse(cfg config.Config) ConsoleResponse {
	return ConsoleResponse{Op: OpConfig, Config: &cfg}
}

func NewAllUsersResponse(users []UserSummary) ConsoleResponse {
	if users == nil {
		users = []UserSummary{}
	}
	return ConsoleResponse{Op: OpAuth, Users: users}
}

func NewUserHistoryResponse(detail *UserDetail) ConsoleResponse {
	return ConsoleResponse{Op: OpAuth, UserDetail: detail}
}

func NewPendingResponse(pending []PendingSummary) ConsoleResponse {
	if pending == nil {
		pending = []PendingSummary{}
	}
	return ConsoleResponse{Op: OpAuth, Pending: pending}
}

func NewApproveResponse(user *NewUser) ConsoleResponse {
	return ConsoleResponse{Op: OpAuth, NewUser: user}
}
