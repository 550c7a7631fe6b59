package subscription

import (
	"encoding/json"
	"errors"
	"fmt"

	"pr_digest_bot/internal/model"
	"pr_digest_bot/internal/schedule"
)

const documentVersion = 1

// document is the persisted form of the whole collection.
type document struct {
	Version  int      `json:"version"`
	Requests []record `json:"requests"`
}

// record is the persisted form of one request. It never carries a job.
type record struct {
	ID          int64       `json:"id"`
	User        *model.User `json:"user,omitempty"`
	Team        *model.Team `json:"team,omitempty"`
	Org         *model.Org  `json:"org,omitempty"`
	Room        int64       `json:"room"`
	RequestedBy string      `json:"requested_by"`
	Schedule    string      `json:"schedule,omitempty"`
}

func toRecord(r *model.DigestRequest) record {
	rec := record{
		ID:          r.ID,
		User:        r.User,
		Team:        r.Team,
		Org:         r.Org,
		Room:        r.Room,
		RequestedBy: r.RequestedBy,
	}
	if r.Schedule != nil {
		rec.Schedule = r.Schedule.String()
	}
	return rec
}

// rehydrate converts a validated record into a live, paused request.
func rehydrate(rec record) (*model.DigestRequest, error) {
	if rec.ID <= 0 {
		return nil, fmt.Errorf("invalid id %d", rec.ID)
	}
	if rec.Room == 0 {
		return nil, errors.New("missing room")
	}
	if rec.User != nil && rec.User.Login == "" {
		return nil, errors.New("user filter without login")
	}
	if rec.Team != nil && rec.Team.ID == 0 {
		return nil, errors.New("team filter without id")
	}
	if rec.Org != nil && rec.Org.Login == "" {
		return nil, errors.New("org filter without login")
	}

	r := model.NewDigestRequest(rec.User, rec.Team, rec.Org)
	r.ID = rec.ID
	r.Room = rec.Room
	r.RequestedBy = rec.RequestedBy
	if rec.Schedule != "" {
		spec, err := schedule.Parse(rec.Schedule)
		if err != nil {
			return nil, err
		}
		r.Schedule = &spec
	}
	return r, nil
}

func decodeDocument(raw string) (document, error) {
	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return document{}, fmt.Errorf("decode subscriptions: %w", err)
	}
	if doc.Version != documentVersion {
		return document{}, fmt.Errorf("unsupported subscriptions version %d", doc.Version)
	}
	return doc, nil
}

func encodeDocument(reqs []*model.DigestRequest) (string, error) {
	doc := document{Version: documentVersion, Requests: make([]record, 0, len(reqs))}
	for _, r := range reqs {
		doc.Requests = append(doc.Requests, toRecord(r))
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode subscriptions: %w", err)
	}
	return string(b), nil
}
