package realtime

import (
	"encoding/json"
	"strings"

	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
)

// Phoenix channel topics and events
const (
	channelTopic = "realtime:public-changes"
	phoenixTopic = "phoenix"

	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventError     = "phx_error"
	eventClose     = "phx_close"
	eventHeartbeat = "heartbeat"
	eventChange    = "postgres_changes"
)

// Frame is one Phoenix channel message
type Frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

func newFrame(topic, event, ref string, payload interface{}) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, errors.Wrapf(err, "encode %s payload", event)
	}
	return Frame{Topic: topic, Event: event, Payload: raw, Ref: ref}, nil
}

type changeFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

type joinPayload struct {
	Config struct {
		PostgresChanges []changeFilter `json:"postgres_changes"`
	} `json:"config"`
	AccessToken string `json:"access_token,omitempty"`
}

func newJoinPayload(accessToken string) joinPayload {
	var p joinPayload
	p.Config.PostgresChanges = []changeFilter{
		{Event: "*", Schema: "public", Table: types.TableBusinesses},
		{Event: "*", Schema: "public", Table: types.TableRatings},
	}
	p.AccessToken = accessToken
	return p
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

type changeRecord struct {
	Table           string          `json:"table"`
	Type            string          `json:"type"`
	Record          json.RawMessage `json:"record"`
	OldRecord       json.RawMessage `json:"old_record"`
	CommitTimestamp string          `json:"commit_timestamp"`
}

// Changes arrive either wrapped in "data" or with the record fields directly
// in the payload.
type changePayload struct {
	Data *changeRecord `json:"data"`
	changeRecord
}

func present(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null" && s != "{}"
}

// parseChange turns a postgres_changes payload into a ChangeEvent
func parseChange(raw json.RawMessage) (types.ChangeEvent, error) {
	var p changePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.ChangeEvent{}, errors.Wrap(err, "decode change payload")
	}
	rec := p.changeRecord
	if p.Data != nil {
		rec = *p.Data
	}

	ev := types.ChangeEvent{
		Table:           rec.Table,
		Type:            types.ChangeType(strings.ToUpper(rec.Type)),
		CommitTimestamp: types.NormalizeTimestamp(rec.CommitTimestamp),
	}
	switch ev.Type {
	case types.ChangeInsert, types.ChangeUpdate, types.ChangeDelete:
	default:
		return ev, errors.Newf("unknown change type %q", rec.Type)
	}

	switch rec.Table {
	case types.TableBusinesses:
		if ev.Type == types.ChangeDelete {
			var old struct {
				ID string `json:"id"`
			}
			if present(rec.OldRecord) {
				if err := json.Unmarshal(rec.OldRecord, &old); err != nil {
					return ev, errors.Wrap(err, "decode old_record")
				}
			}
			ev.ID = old.ID
		} else {
			var b types.Business
			if err := json.Unmarshal(rec.Record, &b); err != nil {
				return ev, errors.Wrap(err, "decode business record")
			}
			b = types.NormalizeBusiness(b)
			ev.ID = b.ID
			ev.Business = &b
		}
	case types.TableRatings:
		var row struct {
			BusinessID string `json:"business_id"`
		}
		src := rec.Record
		if !present(src) {
			src = rec.OldRecord
		}
		if present(src) {
			if err := json.Unmarshal(src, &row); err != nil {
				return ev, errors.Wrap(err, "decode rating record")
			}
		}
		ev.ID = row.BusinessID
	default:
		return ev, errors.Newf("change for unexpected table %q", rec.Table)
	}

	if ev.ID == "" {
		return ev, errors.Newf("%s %s change without an id", rec.Table, ev.Type)
	}
	return ev, nil
}
