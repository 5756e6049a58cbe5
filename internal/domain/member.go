package domain

// Member is the public view of a connection inside a room or voice channel.
// No transport or lifecycle logic here.
type Member struct {
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}
