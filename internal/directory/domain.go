package directory

// UserProfile public identity of a platform user, resolved from the
// shared user directory
type UserProfile struct {
	UserID      string   `bson:"_id" json:"user_id"`
	Handle      string   `bson:"handle" json:"handle"`
	DisplayName string   `bson:"display_name" json:"display_name"`
	AvatarURL   string   `bson:"avatar_url" json:"avatar_url,omitempty"`
	Following   []string `bson:"following" json:"-"`
}
