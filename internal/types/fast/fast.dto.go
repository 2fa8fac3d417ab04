package fast

type StartFastRequest struct {
	PlannedDurationHours float64 `json:"planned_duration_hours" validate:"required,gt=0"`
}

type EndFastRequest struct {
	Status Status `json:"status" validate:"required,oneof=completed stopped_early"`
}

type AddWaterRequest struct {
	AmountMl int `json:"amount_ml" validate:"required,gt=0"`
}

type CorrectDurationRequest struct {
	ActualDurationHours float64 `json:"actual_duration_hours" validate:"required,gt=0"`
}
