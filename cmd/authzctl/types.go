package main

import "time"

type errorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
}

type typeResponse struct {
	Type string `json:"type"`
}

type group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type groupsResponse struct {
	Groups []group `json:"groups"`
}

type applyResponse struct {
	PolicyName string `json:"policyName"`
	Status     string `json:"status"`
}

type policy struct {
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	Feed          string    `json:"feed"`
	Kind          string    `json:"kind,omitempty"`
	Groups        []string  `json:"groups"`
	Objects       []string  `json:"objects"`
	LastOutcome   string    `json:"lastOutcome,omitempty"`
	LastErrorKind string    `json:"lastErrorKind,omitempty"`
	LastError     string    `json:"lastError,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type policiesResponse struct {
	Policies []policy `json:"policies"`
}

type event struct {
	ID         string    `json:"id"`
	PolicyName string    `json:"policyName"`
	Category   string    `json:"category"`
	Feed       string    `json:"feed"`
	Kind       string    `json:"kind"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	ErrorKind  string    `json:"errorKind,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Actor      string    `json:"actor"`
	Groups     []string  `json:"groups"`
	Objects    []string  `json:"objects"`
	CreatedAt  time.Time `json:"createdAt"`
}

type eventsResponse struct {
	Events        []event `json:"events"`
	NextPageToken string  `json:"nextPageToken"`
	TotalSize     int     `json:"totalSize"`
}

// shorten cuts s to max bytes, marking the cut with "...".
func shorten(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// localTime formats t in the local zone; the zero time is blank.
func localTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.DateTime)
}
