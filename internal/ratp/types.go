package ratp

// ScheduleResponse is the body of GET /schedules/{type}/{line}/{stop}/{direction}.
type ScheduleResponse struct {
	Result   ScheduleResult `json:"result"`
	Metadata Metadata       `json:"_metadata"`
}

type ScheduleResult struct {
	Schedules []Schedule `json:"schedules"`
}

// Schedule is one upcoming departure. Message is either "A l'arret" or a
// number followed by a two character unit such as "5 mn".
type Schedule struct {
	Message     string `json:"message"`
	Destination string `json:"destination"`
}

type Metadata struct {
	Call    string `json:"call"`
	Date    string `json:"date"`
	Version int    `json:"version"`
}
