package handlers

// HitRequest is the request body for recording a hit.
type HitRequest struct {
	Body struct {
		Identity string `doc:"The subject being rate limited" example:"api-key-123" json:"identity" maxLength:"512" minLength:"1"`
		Scope    string `default:"global"                     doc:"Policy scope to check" example:"global" json:"scope,omitempty"`
	}
}

// HitResponse reports the decision for a recorded hit.
type HitResponse struct {
	Status  int
	Headers struct {
		Limit     string `doc:"Hits allowed per window"         header:"X-RateLimit-Limit"`
		Remaining string `doc:"Hits left in the current window" header:"X-RateLimit-Remaining"`
	}
	Body struct {
		Allowed   bool   `doc:"Whether the hit is within the limit" json:"allowed"`
		Scope     string `doc:"Scope the decision applies to"       json:"scope"`
		Count     int64  `doc:"Hits counted in the window"          json:"count"`
		Limit     int64  `doc:"Hits allowed per window"             json:"limit"`
		Remaining int64  `doc:"Hits left in the current window"     json:"remaining"`
		WindowMs  int64  `doc:"Window size in milliseconds"         json:"windowMs"`
	}
}

// RejectionsRequest names the identity whose rejections are counted.
type RejectionsRequest struct {
	Identity string `doc:"The subject as sent to POST /v1/hits" maxLength:"512" minLength:"1" path:"identity"`
}

// RejectionsResponse reports the persisted rejection count.
type RejectionsResponse struct {
	Body struct {
		Identity   string `doc:"The subject"                  json:"identity"`
		Rejections int64  `doc:"Rejected hits persisted so far" json:"rejections"`
	}
}
