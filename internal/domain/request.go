package domain

import "time"

// EntrySource tags every entry written through the public API.
const EntrySource = "WALLET_API"

// RequestMeta carries per-request context into the ledger. It is passed explicitly
// to every balance and transfer operation.
type RequestMeta struct {
	TraceID   string
	IPAddress string
	UserAgent string
}

// EntryMetadata returns the metadata recorded on an entry for action.
func (m RequestMeta) EntryMetadata(action EntryType, referenceID string, at time.Time) map[string]any {
	meta := map[string]any{
		"action":       string(action),
		"trace_id":     m.TraceID,
		"source":       EntrySource,
		"timestamp":    at.UTC().Format(time.RFC3339Nano),
		"reference_id": referenceID,
	}

	if m.IPAddress != "" {
		meta["ip_address"] = m.IPAddress
	}
	if m.UserAgent != "" {
		meta["user_agent"] = m.UserAgent
	}

	return meta
}
