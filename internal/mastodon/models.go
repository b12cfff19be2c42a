package mastodon

import "github.com/fediarchive/archivebot/internal/archive"

// Wire shapes for the subset of the Mastodon REST API the bot touches.
// Field names follow the documented JSON payloads.

type apiAccount struct {
	ID   string `json:"id"`
	Acct string `json:"acct"`
}

type apiCard struct {
	URL string `json:"url"`
}

type apiStatus struct {
	ID          string     `json:"id"`
	Account     apiAccount `json:"account"`
	Content     string     `json:"content"`
	Card        *apiCard   `json:"card"`
	InReplyToID string     `json:"in_reply_to_id"`
	Visibility  string     `json:"visibility"`
}

type apiNotification struct {
	ID      string     `json:"id"`
	Type    string     `json:"type"`
	Account apiAccount `json:"account"`
	Status  *apiStatus `json:"status"`
}

type postStatusRequest struct {
	Status      string `json:"status"`
	InReplyToID string `json:"in_reply_to_id,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
}

func (a apiAccount) toDomain() archive.Account {
	return archive.Account{ID: a.ID, Handle: a.Acct}
}

func (s *apiStatus) toDomain() archive.Status {
	out := archive.Status{
		ID:          s.ID,
		Account:     s.Account.toDomain(),
		Content:     s.Content,
		InReplyToID: s.InReplyToID,
		Visibility:  s.Visibility,
	}
	if s.Card != nil {
		out.CardURL = s.Card.URL
	}
	return out
}

func (n apiNotification) toDomain() archive.Notification {
	out := archive.Notification{
		ID:      n.ID,
		Type:    n.Type,
		Account: n.Account.toDomain(),
	}
	if n.Status != nil {
		status := n.Status.toDomain()
		out.Status = &status
	}
	return out
}
