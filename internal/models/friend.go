package models

// Social relation statuses stored in friends_and_foes.
const (
	RelationFriend = "FRIEND"
	RelationFoe    = "FOE"
)

// SocialRelation is one directed friend or foe entry.
type SocialRelation struct {
	UserID    int    `json:"user_id"`
	SubjectID int    `json:"subject_id"`
	Status    string `json:"status"` // 'FRIEND', 'FOE'
}
