package models

type Restaurant struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	SlugName    string   `json:"slug_name"`
	Town        string   `json:"town"`
	Location    Location `json:"location"`
	Cuisines    []string `json:"cuisines"`
	Rating      float64  `json:"rating"`
	AvgPrepTime float64  `json:"avg_prep_time"` // Average preparation time in minutes
}
