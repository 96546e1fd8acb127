package rooms

type createRoomRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}
