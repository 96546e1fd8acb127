package health

type healthResponse struct {
	Status    string `json:"status"`    // ok or unhealthy
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
	Uptime    string `json:"uptime"`
}
