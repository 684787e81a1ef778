package wire

import "github.com/exclusivedisjunction/regisd/internal/metric"

// HostRequest is one frame of the remote-client protocol's SERVING state
// (spec.md §6/§4.10): `{"kind":"Status"}`, `{"kind":"Metrics","n":<uint>}`,
// or `{"kind":"Ack","code":<int>,"msg":"<string>"}`. It is sent already
// wrapped by a cryptostream.SymmetricStream, so this type only carries
// the plaintext JSON shape.
type HostRequest struct {
	Kind HostRequestKind `json:"kind"`
	N    uint64          `json:"n,omitempty"`
	Code int             `json:"code,omitempty"`
	Msg  string          `json:"msg,omitempty"`
}

// HostRequestKind discriminates HostRequest.Kind.
type HostRequestKind string

const (
	HostRequestStatus  HostRequestKind = "Status"
	HostRequestMetrics HostRequestKind = "Metrics"
	HostRequestAck     HostRequestKind = "Ack"
)

// NewStatusRequest builds the `{"kind":"Status"}` request.
func NewStatusRequest() HostRequest {
	return HostRequest{Kind: HostRequestStatus}
}

// NewMetricsRequest builds the `{"kind":"Metrics","n":n}` request.
func NewMetricsRequest(n uint64) HostRequest {
	return HostRequest{Kind: HostRequestMetrics, N: n}
}

// NewAckRequest builds the `{"kind":"Ack","code":code,"msg":msg}` request,
// a no-op that the server only logs (spec.md §4.10 SERVING table).
func NewAckRequest(code int, msg string) HostRequest {
	return HostRequest{Kind: HostRequestAck, Code: code, Msg: msg}
}

// HostResponse is the single response frame produced per HostRequest.
type HostResponse struct {
	Kind    HostRequestKind `json:"kind"`
	Sample  *metric.Sample  `json:"sample,omitempty"`
	Samples []metric.Sample `json:"samples,omitempty"`
}

// NewStatusResponse builds `{"kind":"Status","sample":<Sample>}`.
func NewStatusResponse(sample metric.Sample) HostResponse {
	return HostResponse{Kind: HostRequestStatus, Sample: &sample}
}

// NewMetricsResponse builds `{"kind":"Metrics","samples":[...]}`.
func NewMetricsResponse(samples []metric.Sample) HostResponse {
	if samples == nil {
		samples = []metric.Sample{}
	}
	return HostResponse{Kind: HostRequestMetrics, Samples: samples}
}

// ConnectBody is the AUTH-state request/response payload
// (spec.md §6: `{"kind":"Connect","body":{...}}`). Exactly one field is
// ever populated at a time, mirroring the externally-tagged enum the
// original Rust source serializes (regisd/src/auth in original_source).
type ConnectBody struct {
	// Request variants.
	FirstTime *struct{} `json:"FirstTime,omitempty"`
	Returning *string   `json:"Returning,omitempty"`

	// Response variants.
	Accepted *string    `json:"Accepted,omitempty"`
	Approved *struct{}  `json:"Approved,omitempty"`
	Pending  *uint64    `json:"Pending,omitempty"`
	Deny     *DenyBody  `json:"Deny,omitempty"`
}

// DenyBody names the reason a Connect was refused
// (`{"Deny":{"Revoked|Invalid|UserNotFound|TimedOut":null}}`).
type DenyBody struct {
	Revoked      *struct{} `json:"Revoked,omitempty"`
	Invalid      *struct{} `json:"Invalid,omitempty"`
	UserNotFound *struct{} `json:"UserNotFound,omitempty"`
	TimedOut     *struct{} `json:"TimedOut,omitempty"`
}

// ConnectEnvelope wraps a ConnectBody with its discriminating "kind".
type ConnectEnvelope struct {
	Kind HostRequestKind `json:"kind"`
	Body ConnectBody     `json:"body"`
}

const HostRequestConnect HostRequestKind = "Connect"

// NewConnectFirstTime builds `{"kind":"Connect","body":{"FirstTime":null}}`.
func NewConnectFirstTime() ConnectEnvelope {
	return ConnectEnvelope{Kind: HostRequestConnect, Body: ConnectBody{FirstTime: &struct{}{}}}
}

// NewConnectReturning builds `{"kind":"Connect","body":{"Returning":token}}`.
func NewConnectReturning(token string) ConnectEnvelope {
	return ConnectEnvelope{Kind: HostRequestConnect, Body: ConnectBody{Returning: &token}}
}

// NewConnectAccepted builds `{"kind":"Connect","body":{"Accepted":token}}`,
// sent once on a FirstTime registration's approval, carrying the new
// session token the client did not have before.
func NewConnectAccepted(token string) ConnectEnvelope {
	return ConnectEnvelope{Kind: HostRequestConnect, Body: ConnectBody{Accepted: &token}}
}

// NewConnectApproved builds `{"kind":"Connect","body":{"Approved":null}}`,
// sent when a Returning token is valid — the client already holds the
// token, so there is nothing new to carry back (spec.md §6, scenario S1).
func NewConnectApproved() ConnectEnvelope {
	return ConnectEnvelope{Kind: HostRequestConnect, Body: ConnectBody{Approved: &struct{}{}}}
}

// NewConnectPending builds `{"kind":"Connect","body":{"Pending":id}}`, the
// immediate reply to a FirstTime request while an approver is awaited.
func NewConnectPending(pendingID uint64) ConnectEnvelope {
	return ConnectEnvelope{Kind: HostRequestConnect, Body: ConnectBody{Pending: &pendingID}}
}

func denyEnvelope(reason *DenyBody) ConnectEnvelope {
	return ConnectEnvelope{Kind: HostRequestConnect, Body: ConnectBody{Deny: reason}}
}

// NewConnectDeny builds the `{"kind":"Connect","body":{"Deny":{reason:null}}}`
// response for the four rejection reasons spec.md §6 names.
func NewConnectDenyRevoked() ConnectEnvelope {
	return denyEnvelope(&DenyBody{Revoked: &struct{}{}})
}

func NewConnectDenyInvalid() ConnectEnvelope {
	return denyEnvelope(&DenyBody{Invalid: &struct{}{}})
}

func NewConnectDenyUserNotFound() ConnectEnvelope {
	return denyEnvelope(&DenyBody{UserNotFound: &struct{}{}})
}

func NewConnectDenyTimedOut() ConnectEnvelope {
	return denyEnvelope(&DenyBody{TimedOut: &struct{}{}})
}
