package domain

import "time"

// RequestStatus tracks a randomness request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestFulfilled RequestStatus = "fulfilled"
	// RequestRejected is never written today: a response that fails
	// verification leaves the request pending.
	RequestRejected RequestStatus = "rejected"
	RequestExpired  RequestStatus = "expired"
)

// alphaSeparator keeps nonce and session id from running into each other.
const alphaSeparator = 0x00

// RandomnessRequest binds one nonce to one session.
type RandomnessRequest struct {
	Nonce       string        `json:"nonce"`
	SessionID   string        `json:"session_id"`
	Status      RequestStatus `json:"status"`
	RawValue    []byte        `json:"-"`
	Proof       []byte        `json:"-"`
	RequestedAt time.Time     `json:"requested_at"`
	FulfilledAt *time.Time    `json:"fulfilled_at,omitempty"`
	ExpiresAt   time.Time     `json:"expires_at"`
}

// Alpha is the VRF input the oracle must prove over.
func (r *RandomnessRequest) Alpha() []byte {
	return Alpha(r.Nonce, r.SessionID)
}

// Alpha encodes nonce || 0x00 || sessionID.
func Alpha(nonce, sessionID string) []byte {
	b := make([]byte, 0, len(nonce)+1+len(sessionID))
	b = append(b, nonce...)
	b = append(b, alphaSeparator)
	return append(b, sessionID...)
}

func (r *RandomnessRequest) Clone() *RandomnessRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.RawValue = append([]byte(nil), r.RawValue...)
	c.Proof = append([]byte(nil), r.Proof...)
	if r.FulfilledAt != nil {
		t := *r.FulfilledAt
		c.FulfilledAt = &t
	}
	return &c
}
