package models

import "encoding/json"

// WeatherRequest is the tool call payload published on the input queue.
type WeatherRequest struct {
	Location      string `json:"location"`
	CorrelationID string `json:"correlationId"`
}

// UnmarshalJSON accepts the correlation id under its legacy misspelling as
// well. Field matching is otherwise case-insensitive.
func (r *WeatherRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Location      string `json:"location"`
		CorrelationID string `json:"correlationId"`
		Legacy        string `json:"coorelationId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Location = raw.Location
	r.CorrelationID = raw.CorrelationID
	if r.CorrelationID == "" {
		r.CorrelationID = raw.Legacy
	}
	return nil
}

// WeatherResult is the worker reply published on the output queue.
type WeatherResult struct {
	Value         string `json:"value"`
	CorrelationID string `json:"correlationId"`
}
