package httpapi

import (
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/barrier"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

// timeLayout is RFC 3339 with millisecond precision, matching storage.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ── Controller (protobuf) ────────────────────────────────────────────────────

// The controller only needs the decision bit.
func validateResponseToProto(r types.ValidateResponse) *wrapperspb.BoolValue {
	return wrapperspb.Bool(r.Granted)
}

// An empty value means nothing to do.
func pollResponseToProto(verb *types.CommandVerb) *wrapperspb.StringValue {
	if verb == nil {
		return wrapperspb.String("")
	}
	return wrapperspb.String(string(*verb))
}

// ── JSON views ───────────────────────────────────────────────────────────────

func barrierStatusResponse(s barrier.Snapshot, now time.Time) types.BarrierStatusResponse {
	resp := types.BarrierStatusResponse{
		Status:      s.Status,
		LastUpdate:  formatTime(s.LastUpdate),
		LastEvent:   s.LastEvent,
		Department:  s.Department,
		User:        s.User,
		SecondsOpen: s.SecondsOpen(now),
	}
	if s.AutoCloseAt != nil {
		resp.AutoCloseAt = formatTime(*s.AutoCloseAt)
	}
	return resp
}

func commandView(rec store.CommandRecord) types.CommandView {
	v := types.CommandView{
		ID:           rec.ID,
		Command:      rec.Command,
		Status:       rec.Status,
		DepartmentID: rec.DepartmentID,
		UserID:       rec.UserID,
		CreatedAt:    formatTime(rec.CreatedAt),
		TTLSeconds:   rec.TTLSeconds,
	}
	if rec.ExecutedAt != nil {
		v.ExecutedAt = formatTime(*rec.ExecutedAt)
	}
	return v
}
