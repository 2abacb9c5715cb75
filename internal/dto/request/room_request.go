package request

// CreateRoomRequest represents a room creation request
type CreateRoomRequest struct {
	// RoomID is the caller-chosen room code, ephemeral mode only.
	RoomID           string `json:"room_id,omitempty" binding:"omitempty,min=3,max=50"`
	Name             string `json:"name" binding:"required,min=3,max=50"`
	Description      string `json:"description,omitempty" binding:"omitempty,max=500"`
	Password         string `json:"password,omitempty" binding:"omitempty,min=4"`
	BurnAfterReading bool   `json:"burn_after_reading,omitempty"`
	TimeLimit        int    `json:"time_limit,omitempty" binding:"omitempty,min=1"`     // minutes
	MessageExpiry    int    `json:"message_expiry,omitempty" binding:"omitempty,min=1"` // hours
	Mode             string `json:"mode" binding:"required,oneof=durable ephemeral"`
}

// RenameRoomRequest represents a room rename request
type RenameRoomRequest struct {
	Name string `json:"name" binding:"required,min=3,max=50"`
}

// ExtendTimeRequest represents a time extension request
type ExtendTimeRequest struct {
	Minutes int `json:"minutes" binding:"required,min=1,max=60"`
}
