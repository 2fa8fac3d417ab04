package notification

type RegisterDeviceRequest struct {
	Token    string   `json:"token" validate:"required"`
	Platform Platform `json:"platform" validate:"required,oneof=ios android web"`
}
